package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meterwerk/meter-import-worker/internal/config"
	"github.com/meterwerk/meter-import-worker/internal/extract"
	"github.com/meterwerk/meter-import-worker/internal/importer"
	"github.com/meterwerk/meter-import-worker/internal/logging"
	"github.com/meterwerk/meter-import-worker/internal/mq"
	"go.uber.org/zap"
)

// Import job types accepted on the job queue.
const (
	ImportTypeCustomers = "customers"
	ImportTypeReadings  = "readings"
)

// ImportJob is the incoming job message: an ordered sequence of raw rows
// plus which pipeline to run them through.
type ImportJob struct {
	RequestID  string           `json:"request_id"`
	ImportType string           `json:"import_type"`
	Rows       []map[string]any `json:"rows"`
}

// EventPublisher publishes import completion events. Implemented by
// mq.Publisher.
type EventPublisher interface {
	PublishImportCompleted(ctx context.Context, event mq.ImportCompletedEvent, routingKey string) error
}

// ProcessorService turns import job messages into pipeline runs.
type ProcessorService struct {
	imports   *importer.Service
	publisher EventPublisher
	cfg       *config.Config
	logger    *zap.Logger
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	imports *importer.Service,
	publisher EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		imports:   imports,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessMessage processes one import job. An undecodable message or an
// unknown import type is a batch-level failure and is returned as an error;
// row-level problems are absorbed by the pipelines and show up only in the
// outcome tallies.
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var job ImportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("failed to unmarshal import job: %w", err)
	}

	reqLogger := logging.WithRequestID(s.logger, job.RequestID)
	reqLogger.Info("processing import job",
		zap.String("import_type", job.ImportType),
		zap.Int("row_count", len(job.Rows)),
	)

	rows := make([]extract.Row, len(job.Rows))
	for i, r := range job.Rows {
		rows[i] = extract.Row(r)
	}

	var outcomes []importer.Outcome
	switch job.ImportType {
	case ImportTypeCustomers:
		outcomes = s.imports.RunCustomerImport(ctx, rows)
	case ImportTypeReadings:
		outcomes = s.imports.RunReadingImport(ctx, rows)
	default:
		return fmt.Errorf("unknown import type %q", job.ImportType)
	}

	event := summarize(job, outcomes)
	if err := s.publisher.PublishImportCompleted(ctx, event, s.cfg.RabbitMQ.EventsRoutingKey); err != nil {
		// The import itself succeeded; a lost event is not worth a requeue.
		reqLogger.Error("failed to publish completion event", zap.Error(err))
	}

	reqLogger.Info("import job finished",
		zap.Int("created", event.Created),
		zap.Int("matched", event.Matched),
		zap.Int("skipped", event.Skipped),
		zap.Int("errors", event.Errors),
	)

	return nil
}

func summarize(job ImportJob, outcomes []importer.Outcome) mq.ImportCompletedEvent {
	event := mq.ImportCompletedEvent{
		RequestID:  job.RequestID,
		ImportType: job.ImportType,
		RowCount:   len(outcomes),
		Messages:   make([]string, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		switch o.Kind {
		case importer.KindCustomerCreated, importer.KindReadingUpserted:
			event.Created++
		case importer.KindCustomerMatched, importer.KindDevicePresent:
			event.Matched++
		case importer.KindNoDevice, importer.KindReadingSkipped:
			event.Skipped++
		case importer.KindError:
			event.Errors++
		}
		event.Messages = append(event.Messages, fmt.Sprintf("%s: %s", o.Kind, o.Message))
	}

	return event
}

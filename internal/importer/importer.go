package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/meterwerk/meter-import-worker/internal/anomaly"
	"github.com/meterwerk/meter-import-worker/internal/db"
	"github.com/meterwerk/meter-import-worker/internal/extract"
	"go.uber.org/zap"
)

// CustomerStore is the customer persistence contract consumed by the
// resolver. Lookups return (nil, nil) when no row matches.
type CustomerStore interface {
	FindByMobile(ctx context.Context, mobile string) (*db.Customer, error)
	FindByNameAndAddress(ctx context.Context, given, family, street, houseNumber string) (*db.Customer, error)
	InsertCustomer(ctx context.Context, c *db.Customer) (int64, error)
}

// DeviceStore is the device persistence contract. InsertDevice is conditional:
// it reports false without error when the meter number already exists, so
// concurrent imports racing on the same serial resolve at the store.
type DeviceStore interface {
	FindByMeterNumber(ctx context.Context, meterNumber string) (*db.Device, error)
	InsertDevice(ctx context.Context, d *db.Device) (bool, error)
}

// ReadingStore is the reading persistence contract. UpsertReading must be an
// atomic insert-or-update on the (meter number, date) key.
type ReadingStore interface {
	UpsertReading(ctx context.Context, r *db.Reading) error
	RecentValues(ctx context.Context, meterNumber string, limit int) ([]float64, error)
}

// Kind classifies the outcome of one processed row.
type Kind string

const (
	KindCustomerCreated Kind = "created-customer"
	KindCustomerMatched Kind = "matched-customer"
	KindDevicePresent   Kind = "device-already-present"
	KindNoDevice        Kind = "warning-no-device"
	KindReadingUpserted Kind = "upserted-reading"
	KindReadingSkipped  Kind = "skipped-invalid-reading"
	KindError           Kind = "error"
)

// Outcome is the tagged result of one row. Exactly one Outcome is produced
// per input row, in input order.
type Outcome struct {
	Kind    Kind
	Message string
}

// Service runs the two import pipelines against the provided stores.
type Service struct {
	customers CustomerStore
	devices   DeviceStore
	readings  ReadingStore
	detector  *anomaly.Detector
	logger    *zap.Logger
}

// NewService creates a new import service.
func NewService(
	customers CustomerStore,
	devices DeviceStore,
	readings ReadingStore,
	detector *anomaly.Detector,
	logger *zap.Logger,
) *Service {
	return &Service{
		customers: customers,
		devices:   devices,
		readings:  readings,
		detector:  detector,
		logger:    logger,
	}
}

// RunCustomerImport processes customer rows strictly in input order. A
// failing row becomes an error outcome; it never aborts the batch.
// Cancellation is row-granular: once ctx is done no further row is started.
func (s *Service) RunCustomerImport(ctx context.Context, rows []extract.Row) []Outcome {
	outcomes := make([]Outcome, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, s.importCustomerRow(ctx, row))
	}
	return outcomes
}

// RunReadingImport processes reading rows strictly in input order with the
// same partial-failure semantics as RunCustomerImport.
func (s *Service) RunReadingImport(ctx context.Context, rows []extract.Row) []Outcome {
	outcomes := make([]Outcome, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, s.importReadingRow(ctx, row))
	}
	return outcomes
}

func (s *Service) importCustomerRow(ctx context.Context, row extract.Row) Outcome {
	rec := extract.CustomerRecord(row)

	res, err := s.resolveCustomer(ctx, rec)
	if err != nil {
		return Outcome{
			Kind:    KindError,
			Message: fmt.Sprintf("failed to import customer %s %s (%s): %v", rec.GivenName, rec.FamilyName, describeRow(row), err),
		}
	}

	if rec.MeterNumber == "" {
		// The customer is still accepted, but without a meter it is
		// incomplete.
		s.logger.Warn("customer row without meter number",
			zap.Int64("customer_id", res.customerID),
			zap.String("given_name", rec.GivenName),
			zap.String("family_name", rec.FamilyName),
		)
		return Outcome{
			Kind:    KindNoDevice,
			Message: fmt.Sprintf("%s; no meter number supplied, nothing linked", res.note),
		}
	}

	if res.matchedByMeter {
		return Outcome{
			Kind:    KindDevicePresent,
			Message: fmt.Sprintf("meter %s already present, linkage unchanged; %s", rec.MeterNumber, res.note),
		}
	}

	inserted, err := s.devices.InsertDevice(ctx, &db.Device{
		MeterNumber: rec.MeterNumber,
		InstalledAt: rec.InstalledAt,
		CustomerID:  res.customerID,
	})
	if err != nil {
		return Outcome{
			Kind:    KindError,
			Message: fmt.Sprintf("failed to register meter %s for customer id=%d: %v", rec.MeterNumber, res.customerID, err),
		}
	}
	if !inserted {
		// A concurrent batch won the insert; the existing linkage stands.
		return Outcome{
			Kind:    KindDevicePresent,
			Message: fmt.Sprintf("meter %s already present, linkage unchanged; %s", rec.MeterNumber, res.note),
		}
	}

	kind := KindCustomerMatched
	if res.created {
		kind = KindCustomerCreated
	}
	return Outcome{
		Kind:    kind,
		Message: fmt.Sprintf("%s; meter %s registered", res.note, rec.MeterNumber),
	}
}

// resolution is the result of the three-tier customer match.
type resolution struct {
	customerID     int64
	created        bool
	matchedByMeter bool
	note           string
}

// resolveCustomer determines which customer a record refers to, trying the
// match strategies in strict priority order: meter number, then mobile
// number, then the exact (given, family, street, house number) tuple. Only
// when all three miss is a new customer inserted. A match never refreshes
// the stored fields.
func (s *Service) resolveCustomer(ctx context.Context, rec extract.ImportRecord) (resolution, error) {
	if rec.MeterNumber != "" {
		d, err := s.devices.FindByMeterNumber(ctx, rec.MeterNumber)
		if err != nil {
			return resolution{}, fmt.Errorf("meter lookup: %w", err)
		}
		if d != nil {
			return resolution{
				customerID:     d.CustomerID,
				matchedByMeter: true,
				note:           fmt.Sprintf("matched customer id=%d via meter %s", d.CustomerID, rec.MeterNumber),
			}, nil
		}
	}

	if rec.MobileNumber != "" {
		c, err := s.customers.FindByMobile(ctx, rec.MobileNumber)
		if err != nil {
			return resolution{}, fmt.Errorf("mobile lookup: %w", err)
		}
		if c != nil {
			return resolution{
				customerID: c.ID,
				note:       fmt.Sprintf("matched customer id=%d via mobile %s", c.ID, rec.MobileNumber),
			}, nil
		}
	}

	if rec.GivenName != "" || rec.FamilyName != "" || rec.Street != "" || rec.HouseNumber != "" {
		c, err := s.customers.FindByNameAndAddress(ctx, rec.GivenName, rec.FamilyName, rec.Street, rec.HouseNumber)
		if err != nil {
			return resolution{}, fmt.Errorf("name/address lookup: %w", err)
		}
		if c != nil {
			return resolution{
				customerID: c.ID,
				note:       fmt.Sprintf("matched customer id=%d via name/address", c.ID),
			}, nil
		}
	}

	id, err := s.customers.InsertCustomer(ctx, &db.Customer{
		GivenName:      rec.GivenName,
		FamilyName:     rec.FamilyName,
		Street:         rec.Street,
		HouseNumber:    rec.HouseNumber,
		MobileNumber:   rec.MobileNumber,
		LandlineNumber: rec.LandlineNumber,
	})
	if err != nil {
		return resolution{}, fmt.Errorf("customer insert: %w", err)
	}

	return resolution{
		customerID: id,
		created:    true,
		note:       fmt.Sprintf("created customer id=%d (%s %s)", id, rec.GivenName, rec.FamilyName),
	}, nil
}

func (s *Service) importReadingRow(ctx context.Context, row extract.Row) Outcome {
	rec := extract.MeterReadingRecord(row)

	if rec.MeterNumber == "" || !rec.DateValid || rec.Value == nil {
		return Outcome{
			Kind:    KindReadingSkipped,
			Message: fmt.Sprintf("invalid reading row skipped (%s)", describeRow(row)),
		}
	}

	s.checkPlausibility(ctx, rec.MeterNumber, *rec.Value)

	reading := &db.Reading{
		MeterNumber: rec.MeterNumber,
		Date:        rec.Date,
		Value:       *rec.Value,
	}
	if err := s.readings.UpsertReading(ctx, reading); err != nil {
		return Outcome{
			Kind:    KindError,
			Message: fmt.Sprintf("failed to store reading for meter %s on %s: %v", rec.MeterNumber, rec.Date.Format("2006-01-02"), err),
		}
	}

	return Outcome{
		Kind:    KindReadingUpserted,
		Message: fmt.Sprintf("reading for meter %s on %s set to %v", rec.MeterNumber, rec.Date.Format("2006-01-02"), *rec.Value),
	}
}

// checkPlausibility flags suspicious reading values against the meter's
// recent history. Detection is advisory: it logs a warning and never
// changes the row's outcome.
func (s *Service) checkPlausibility(ctx context.Context, meterNumber string, value float64) {
	recent, err := s.readings.RecentValues(ctx, meterNumber, 10)
	if err != nil {
		s.logger.Warn("failed to load recent readings for plausibility check",
			zap.Error(err),
			zap.String("meter_number", meterNumber),
		)
		return
	}

	if suspicious, reason := s.detector.Check(value, recent); suspicious {
		s.logger.Warn("implausible reading value",
			zap.String("meter_number", meterNumber),
			zap.Float64("value", value),
			zap.String("reason", reason),
		)
	}
}

// describeRow renders a row's cells deterministically for skip and error
// messages.
func describeRow(row extract.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}

package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/meterwerk/meter-import-worker/internal/anomaly"
	"github.com/meterwerk/meter-import-worker/internal/config"
	"github.com/meterwerk/meter-import-worker/internal/db"
	"github.com/meterwerk/meter-import-worker/internal/importer"
	"github.com/meterwerk/meter-import-worker/internal/mq"
	"github.com/meterwerk/meter-import-worker/internal/service"
	"go.uber.org/zap"
)

type memStore struct {
	customers []*db.Customer
	devices   map[string]*db.Device
	readings  map[string]*db.Reading
}

func newMemStore() *memStore {
	return &memStore{devices: map[string]*db.Device{}, readings: map[string]*db.Reading{}}
}

func (m *memStore) FindByMobile(_ context.Context, mobile string) (*db.Customer, error) {
	for _, c := range m.customers {
		if c.MobileNumber == mobile {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByNameAndAddress(_ context.Context, given, family, street, house string) (*db.Customer, error) {
	for _, c := range m.customers {
		if c.GivenName == given && c.FamilyName == family && c.Street == street && c.HouseNumber == house {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertCustomer(_ context.Context, c *db.Customer) (int64, error) {
	c.ID = int64(len(m.customers) + 1)
	m.customers = append(m.customers, c)
	return c.ID, nil
}

func (m *memStore) FindByMeterNumber(_ context.Context, meter string) (*db.Device, error) {
	return m.devices[meter], nil
}

func (m *memStore) InsertDevice(_ context.Context, d *db.Device) (bool, error) {
	if _, ok := m.devices[d.MeterNumber]; ok {
		return false, nil
	}
	m.devices[d.MeterNumber] = d
	return true, nil
}

func (m *memStore) UpsertReading(_ context.Context, r *db.Reading) error {
	m.readings[r.MeterNumber+"|"+r.Date.Format("2006-01-02")] = r
	return nil
}

func (m *memStore) RecentValues(_ context.Context, meter string, limit int) ([]float64, error) {
	return nil, nil
}

type capturePublisher struct {
	events []mq.ImportCompletedEvent
}

func (p *capturePublisher) PublishImportCompleted(_ context.Context, event mq.ImportCompletedEvent, _ string) error {
	p.events = append(p.events, event)
	return nil
}

func newProcessor(store *memStore, pub *capturePublisher) *service.ProcessorService {
	imports := importer.NewService(store, store, store, anomaly.NewDetector(3.0, 3), zap.NewNop())
	cfg := &config.Config{}
	cfg.RabbitMQ.EventsRoutingKey = "import.job.completed"
	return service.NewProcessorService(imports, pub, cfg, zap.NewNop())
}

func TestProcessMessage_ReadingsJob(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	proc := newProcessor(store, pub)

	job := service.ImportJob{
		RequestID:  "req-1",
		ImportType: service.ImportTypeReadings,
		Rows: []map[string]any{
			{"Zählernummer": "M1", "Datum": "01.03.2024", "Zählerstand": "42"},
			{"Zählernummer": "M1", "Datum": "01.03.2024"}, // value missing
		},
	}
	body, _ := json.Marshal(job)

	if err := proc.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.RequestID != "req-1" || ev.RowCount != 2 || ev.Created != 1 || ev.Skipped != 1 || ev.Errors != 0 {
		t.Errorf("unexpected event summary: %+v", ev)
	}
	if len(ev.Messages) != 2 {
		t.Errorf("expected one message per row, got %d", len(ev.Messages))
	}
	if len(store.readings) != 1 {
		t.Errorf("expected one stored reading, got %d", len(store.readings))
	}
}

func TestProcessMessage_CustomersJob(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	proc := newProcessor(store, pub)

	job := service.ImportJob{
		RequestID:  "req-2",
		ImportType: service.ImportTypeCustomers,
		Rows: []map[string]any{
			{"Name": "Max Mustermann", "Zählernummer": "M1"},
			{"Name": "Max Mustermann", "Zählernummer": "M1"},
		},
	}
	body, _ := json.Marshal(job)

	if err := proc.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := pub.events[0]
	if ev.Created != 1 || ev.Matched != 1 {
		t.Errorf("unexpected event summary: %+v", ev)
	}
}

func TestProcessMessage_BadPayload(t *testing.T) {
	proc := newProcessor(newMemStore(), &capturePublisher{})

	if err := proc.ProcessMessage(context.Background(), []byte("not json")); err == nil {
		t.Error("expected error for undecodable message")
	}
}

func TestProcessMessage_UnknownType(t *testing.T) {
	proc := newProcessor(newMemStore(), &capturePublisher{})

	body, _ := json.Marshal(service.ImportJob{RequestID: "req-3", ImportType: "tariffs"})
	if err := proc.ProcessMessage(context.Background(), body); err == nil {
		t.Error("expected error for unknown import type")
	}
}

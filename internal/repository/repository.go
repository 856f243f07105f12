package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meterwerk/meter-import-worker/internal/db"
)

// Repository implements the importer's store contracts on PostgreSQL.
// Uniqueness on meter numbers and on (meter number, reading date) is
// enforced by the schema; the write paths use conditional inserts so that
// concurrent batches racing on the same key resolve at the database, not
// in application code.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByMobile returns the customer with the given mobile number, or nil
// when none exists.
func (r *Repository) FindByMobile(ctx context.Context, mobile string) (*db.Customer, error) {
	query := `
		SELECT id, given_name, family_name, street, house_number, mobile_number, landline_number, created_at
		FROM customers
		WHERE mobile_number = $1
		LIMIT 1
	`

	c, err := r.scanCustomer(r.pool.QueryRow(ctx, query, mobile))
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by mobile: %w", err)
	}
	return c, nil
}

// FindByNameAndAddress returns the customer whose stored name/address tuple
// matches exactly, empty fields included, or nil when none exists.
func (r *Repository) FindByNameAndAddress(ctx context.Context, given, family, street, houseNumber string) (*db.Customer, error) {
	query := `
		SELECT id, given_name, family_name, street, house_number, mobile_number, landline_number, created_at
		FROM customers
		WHERE given_name = $1 AND family_name = $2 AND street = $3 AND house_number = $4
		LIMIT 1
	`

	c, err := r.scanCustomer(r.pool.QueryRow(ctx, query, given, family, street, houseNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by name and address: %w", err)
	}
	return c, nil
}

// InsertCustomer inserts a new customer and returns its assigned id.
func (r *Repository) InsertCustomer(ctx context.Context, c *db.Customer) (int64, error) {
	query := `
		INSERT INTO customers (given_name, family_name, street, house_number, mobile_number, landline_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		c.GivenName,
		c.FamilyName,
		c.Street,
		c.HouseNumber,
		c.MobileNumber,
		c.LandlineNumber,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert customer: %w", err)
	}

	c.ID = id
	return id, nil
}

// FindByMeterNumber returns the device with the given meter number, or nil
// when none exists.
func (r *Repository) FindByMeterNumber(ctx context.Context, meterNumber string) (*db.Device, error) {
	query := `
		SELECT meter_number, installed_at, customer_id
		FROM devices
		WHERE meter_number = $1
	`

	var d db.Device
	err := r.pool.QueryRow(ctx, query, meterNumber).Scan(
		&d.MeterNumber,
		&d.InstalledAt,
		&d.CustomerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return &d, nil
}

// InsertDevice inserts a device if its meter number is not yet taken. It
// reports false without error when the device already exists, leaving the
// existing customer linkage untouched.
func (r *Repository) InsertDevice(ctx context.Context, d *db.Device) (bool, error) {
	query := `
		INSERT INTO devices (meter_number, installed_at, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (meter_number) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, d.MeterNumber, d.InstalledAt, d.CustomerID)
	if err != nil {
		return false, fmt.Errorf("failed to insert device: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// UpsertReading atomically inserts a reading or overwrites the value of the
// existing (meter number, date) row.
func (r *Repository) UpsertReading(ctx context.Context, reading *db.Reading) error {
	query := `
		INSERT INTO readings (meter_number, reading_date, reading_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (meter_number, reading_date)
		DO UPDATE SET reading_value = EXCLUDED.reading_value
	`

	_, err := r.pool.Exec(ctx, query, reading.MeterNumber, reading.Date, reading.Value)
	if err != nil {
		return fmt.Errorf("failed to upsert reading: %w", err)
	}

	return nil
}

// RecentValues returns up to limit of the most recent reading values for a
// meter, newest first.
func (r *Repository) RecentValues(ctx context.Context, meterNumber string, limit int) ([]float64, error) {
	query := `
		SELECT reading_value
		FROM readings
		WHERE meter_number = $1
		ORDER BY reading_date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, meterNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return values, nil
}

func (r *Repository) scanCustomer(row pgx.Row) (*db.Customer, error) {
	var c db.Customer
	err := row.Scan(
		&c.ID,
		&c.GivenName,
		&c.FamilyName,
		&c.Street,
		&c.HouseNumber,
		&c.MobileNumber,
		&c.LandlineNumber,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

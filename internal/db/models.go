package db

import (
	"time"
)

// Customer represents a customer row in the database. Identity is assigned
// by the store on insert; text fields are stored as empty strings when the
// import row did not supply them.
type Customer struct {
	ID             int64
	GivenName      string
	FamilyName     string
	Street         string
	HouseNumber    string
	MobileNumber   string
	LandlineNumber string
	CreatedAt      time.Time
}

// Device represents a metering device. MeterNumber is the externally
// supplied serial and acts as the natural key.
type Device struct {
	MeterNumber string
	InstalledAt *time.Time
	CustomerID  int64
}

// Reading represents one dated measurement for a device. The pair
// (MeterNumber, Date) is unique in the store.
type Reading struct {
	MeterNumber string
	Date        time.Time
	Value       float64
}

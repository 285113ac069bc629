// Package users holds marketplace account profiles and the behavioral
// counters the trust and fraud engines read. Linkage data (device, IP,
// UPI id) lives here so the fraud aggregator can query it in one place.
package users

import (
	"context"
	"time"
)

// User is a marketplace account.
type User struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Phone             string   `json:"phone"`
	UPIID             string   `json:"upiId,omitempty"`
	DeviceFingerprint string   `json:"-"`
	LastIP            string   `json:"-"`
	HomeLat           *float64 `json:"homeLat,omitempty"`
	HomeLng           *float64 `json:"homeLng,omitempty"`

	HelpCount   int `json:"helpCount"`
	NoShowCount int `json:"noShowCount"`
	ReportCount int `json:"reportCount"`

	Flagged               bool     `json:"flagged"`
	SuspectedMultiAccount bool     `json:"suspectedMultiAccount"`
	LinkedAccounts        []string `json:"linkedAccounts,omitempty"`
	Restricted            bool     `json:"restricted"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Counter names a behavioral counter on a user.
type Counter string

const (
	CounterHelp   Counter = "help_count"
	CounterNoShow Counter = "no_show_count"
	CounterReport Counter = "report_count"
)

// Store persists user accounts and answers linkage queries.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, u *User) error
	Increment(ctx context.Context, id string, counter Counter) error

	// ByDevice returns user ids sharing a device fingerprint.
	ByDevice(ctx context.Context, fingerprint string) ([]string, error)

	// CountByIP counts distinct accounts seen on an IP.
	CountByIP(ctx context.Context, ip string) (int, error)

	// UPIOwner returns the id of the account a UPI id is bound to, or
	// empty when unbound.
	UPIOwner(ctx context.Context, upi string) (string, error)

	// SweepCandidates lists flagged, low-trust-adjacent, or no-show-heavy
	// accounts for the multi-account sweep.
	SweepCandidates(ctx context.Context, limit int) ([]*User, error)
}

// Package store provides relational storage backends for the intake bot.
//
// It defines the Store interface consumed by the intake flow and implements
// it over PostgreSQL, SQLite, and an in-memory map for tests.
package store

import (
	"context"
	"strings"

	"github.com/desklink/intakebot/internal/models"
)

// Store is the data-store collaborator consumed by the intake flow.
type Store interface {
	// GetProfileByPhone looks up a profile by its normalized phone field.
	// Returns nil when no profile matches.
	GetProfileByPhone(ctx context.Context, normalizedPhone string) (*models.Profile, error)

	// CreateProfile inserts a profile and returns it with its generated ID.
	CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error)

	// GetAnyUnit returns an arbitrary existing unit, or nil when none exist.
	// No ordering contract is provided.
	GetAnyUnit(ctx context.Context) (*models.Unit, error)

	// GetUnitByID returns the unit with the given ID, or nil when absent.
	GetUnitByID(ctx context.Context, id string) (*models.Unit, error)

	// CreateTicket inserts a ticket and returns it with its generated ID and
	// human-readable ticket number.
	CreateTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error)

	// ListRecentTicketsByRequester returns the requester's most recent
	// tickets, newest first, bounded by limit.
	ListRecentTicketsByRequester(ctx context.Context, requesterID string, limit int) ([]models.Ticket, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines the database type from a DSN string.
// Returns "postgres" for PostgreSQL-style DSNs and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// Key-value DSNs ("host=... user=...") are also PostgreSQL.
	if strings.Contains(lower, "host=") || strings.Contains(lower, "user=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

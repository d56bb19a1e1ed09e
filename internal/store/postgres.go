// Package store provides relational storage backends for the intake bot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/desklink/intakebot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store over a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetProfileByPhone looks up a profile by its normalized phone field.
func (s *PostgresStore) GetProfileByPhone(ctx context.Context, normalizedPhone string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, COALESCE(unit_id, ''), role, status, created_at FROM profiles WHERE phone = $1`,
		normalizedPhone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfileByPhone failed", "error", err, "phone", normalizedPhone)
		return nil, fmt.Errorf("failed to query profile for %s: %w", normalizedPhone, err)
	}
	return p, nil
}

// CreateProfile inserts a profile and returns it with its generated ID.
func (s *PostgresStore) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, phone, unit_id, role, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Email, p.Phone, nilIfEmpty(p.UnitID), p.Role, p.Status, p.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateProfile failed", "error", err, "phone", p.Phone)
		return nil, fmt.Errorf("failed to insert profile for %s: %w", p.Phone, err)
	}
	slog.Debug("PostgresStore CreateProfile succeeded", "id", p.ID, "phone", p.Phone)
	return &p, nil
}

// GetAnyUnit returns an arbitrary existing unit, or nil when none exist.
func (s *PostgresStore) GetAnyUnit(ctx context.Context) (*models.Unit, error) {
	var u models.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM units LIMIT 1`).Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAnyUnit failed", "error", err)
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	return &u, nil
}

// GetUnitByID returns the unit with the given ID, or nil when absent.
func (s *PostgresStore) GetUnitByID(ctx context.Context, id string) (*models.Unit, error) {
	var u models.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM units WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUnitByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query unit %s: %w", id, err)
	}
	return &u, nil
}

// CreateTicket inserts a ticket and returns it with its generated ID and
// human-readable ticket number.
func (s *PostgresStore) CreateTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()

	var seq int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tickets (id, title, description, category, priority, requester_id, unit_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING seq`,
		t.ID, t.Title, t.Description, t.Category, string(t.Priority), t.RequesterID, t.UnitID, string(t.Status), t.CreatedAt,
	).Scan(&seq)
	if err != nil {
		slog.Error("PostgresStore CreateTicket failed", "error", err, "requester", t.RequesterID)
		return nil, fmt.Errorf("failed to insert ticket: %w", err)
	}
	t.Number = fmt.Sprintf(TicketNumberFormat, seq)
	slog.Info("PostgresStore CreateTicket succeeded", "id", t.ID, "number", t.Number)
	return &t, nil
}

// ListRecentTicketsByRequester returns the requester's most recent tickets, newest first.
func (s *PostgresStore) ListRecentTicketsByRequester(ctx context.Context, requesterID string, limit int) ([]models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, title, description, category, priority, requester_id, unit_id, status, created_at
		 FROM tickets WHERE requester_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		requesterID, limit)
	if err != nil {
		slog.Error("PostgresStore ListRecentTicketsByRequester failed", "error", err, "requester", requesterID)
		return nil, fmt.Errorf("failed to query tickets for %s: %w", requesterID, err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ticket rows: %w", err)
	}
	return tickets, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Package store provides relational storage backends for the intake bot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/desklink/intakebot/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// TicketNumberFormat renders the human-readable ticket number from its sequence.
	TicketNumberFormat = "HD-%06d"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store over a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetProfileByPhone looks up a profile by its normalized phone field.
func (s *SQLiteStore) GetProfileByPhone(ctx context.Context, normalizedPhone string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, COALESCE(unit_id, ''), role, status, created_at FROM profiles WHERE phone = ?`,
		normalizedPhone)
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfileByPhone failed", "error", err, "phone", normalizedPhone)
		return nil, fmt.Errorf("failed to query profile for %s: %w", normalizedPhone, err)
	}
	return p, nil
}

// CreateProfile inserts a profile and returns it with its generated ID.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, phone, unit_id, role, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.Phone, nilIfEmpty(p.UnitID), p.Role, p.Status, p.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateProfile failed", "error", err, "phone", p.Phone)
		return nil, fmt.Errorf("failed to insert profile for %s: %w", p.Phone, err)
	}
	slog.Debug("SQLiteStore CreateProfile succeeded", "id", p.ID, "phone", p.Phone)
	return &p, nil
}

// GetAnyUnit returns an arbitrary existing unit, or nil when none exist.
func (s *SQLiteStore) GetAnyUnit(ctx context.Context) (*models.Unit, error) {
	var u models.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM units LIMIT 1`).Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAnyUnit failed", "error", err)
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	return &u, nil
}

// GetUnitByID returns the unit with the given ID, or nil when absent.
func (s *SQLiteStore) GetUnitByID(ctx context.Context, id string) (*models.Unit, error) {
	var u models.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM units WHERE id = ?`, id).Scan(&u.ID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUnitByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query unit %s: %w", id, err)
	}
	return &u, nil
}

// CreateTicket inserts a ticket and returns it with its generated ID and
// human-readable ticket number.
func (s *SQLiteStore) CreateTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ticket transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO ticket_seq DEFAULT VALUES`)
	if err != nil {
		slog.Error("SQLiteStore CreateTicket sequence failed", "error", err)
		return nil, fmt.Errorf("failed to allocate ticket number: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket number: %w", err)
	}
	t.Number = fmt.Sprintf(TicketNumberFormat, seq)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tickets (id, seq, title, description, category, priority, requester_id, unit_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, seq, t.Title, t.Description, t.Category, string(t.Priority), t.RequesterID, t.UnitID, string(t.Status), t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTicket insert failed", "error", err, "requester", t.RequesterID)
		return nil, fmt.Errorf("failed to insert ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ticket: %w", err)
	}
	slog.Info("SQLiteStore CreateTicket succeeded", "id", t.ID, "number", t.Number)
	return &t, nil
}

// ListRecentTicketsByRequester returns the requester's most recent tickets, newest first.
func (s *SQLiteStore) ListRecentTicketsByRequester(ctx context.Context, requesterID string, limit int) ([]models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, title, description, category, priority, requester_id, unit_id, status, created_at
		 FROM tickets WHERE requester_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		requesterID, limit)
	if err != nil {
		slog.Error("SQLiteStore ListRecentTicketsByRequester failed", "error", err, "requester", requesterID)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/desklink/intakebot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanProfileRow scans a Profile from a single sql.Row.
func scanProfileRow(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.UnitID, &p.Role, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanTicket scans a Ticket from sql.Rows.
func scanTicket(rows *sql.Rows) (models.Ticket, error) {
	var t models.Ticket
	var seq int64
	var priority, status string
	err := rows.Scan(&t.ID, &seq, &t.Title, &t.Description, &t.Category, &priority,
		&t.RequesterID, &t.UnitID, &status, &t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("scan ticket failed: %w", err)
	}
	t.Number = fmt.Sprintf(TicketNumberFormat, seq)
	t.Priority = models.Priority(priority)
	t.Status = models.TicketStatus(status)
	return t, nil
}

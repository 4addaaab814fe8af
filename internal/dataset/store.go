package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("dataset: record not found")

// Store is the persistence surface of the dataset package.
type Store interface {
	CreateIncident(ctx context.Context, in *Incident) (*Incident, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, limit, offset int) ([]*Incident, error)
	UpdateIncident(ctx context.Context, in *Incident) (*Incident, error)
	DeleteIncident(ctx context.Context, id int64) error

	CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error)
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	ListTickets(ctx context.Context, limit, offset int) ([]*Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) (*Ticket, error)
	DeleteTicket(ctx context.Context, id int64) error

	CreateMetadata(ctx context.Context, m *Metadata) (*Metadata, error)
	ListMetadata(ctx context.Context) ([]*Metadata, error)
	DeleteMetadata(ctx context.Context, id int64) error
}

// SQLStore implements Store on PostgreSQL through sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a SQLStore on the given database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const incidentColumns = `incident_id, "timestamp", severity, category, status, description`

// CreateIncident inserts an incident and returns it with its assigned id.
func (s *SQLStore) CreateIncident(ctx context.Context, in *Incident) (*Incident, error) {
	query := `
		INSERT INTO cyber_incidents ("timestamp", severity, category, status, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + incidentColumns

	out := &Incident{}
	err := s.db.GetContext(ctx, out, query,
		in.Timestamp, in.Severity, in.Category, in.Status, in.Description)
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return out, nil
}

// GetIncident fetches a single incident by id.
func (s *SQLStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM cyber_incidents WHERE incident_id = $1`

	out := &Incident{}
	err := s.db.GetContext(ctx, out, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incident %d: %w", id, err)
	}
	return out, nil
}

// ListIncidents returns incidents newest first. limit <= 0 falls back to 100.
func (s *SQLStore) ListIncidents(ctx context.Context, limit, offset int) ([]*Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + incidentColumns + `
		FROM cyber_incidents
		ORDER BY "timestamp" DESC, incident_id DESC
		LIMIT $1 OFFSET $2`

	out := []*Incident{}
	if err := s.db.SelectContext(ctx, &out, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

// UpdateIncident overwrites every mutable column of the incident.
func (s *SQLStore) UpdateIncident(ctx context.Context, in *Incident) (*Incident, error) {
	query := `
		UPDATE cyber_incidents
		SET "timestamp" = $2, severity = $3, category = $4, status = $5, description = $6
		WHERE incident_id = $1
		RETURNING ` + incidentColumns

	out := &Incident{}
	err := s.db.GetContext(ctx, out, query,
		in.ID, in.Timestamp, in.Severity, in.Category, in.Status, in.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update incident %d: %w", in.ID, err)
	}
	return out, nil
}

// DeleteIncident removes an incident by id.
func (s *SQLStore) DeleteIncident(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cyber_incidents WHERE incident_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const ticketColumns = `ticket_id, created, priority, issue_type, assigned_to, status, description`

// CreateTicket inserts a ticket and returns it with its assigned id.
func (s *SQLStore) CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error) {
	query := `
		INSERT INTO it_tickets (created, priority, issue_type, assigned_to, status, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + ticketColumns

	out := &Ticket{}
	err := s.db.GetContext(ctx, out, query,
		t.Created, t.Priority, t.IssueType, t.AssignedTo, t.Status, t.Description)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return out, nil
}

// GetTicket fetches a single ticket by id.
func (s *SQLStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM it_tickets WHERE ticket_id = $1`

	out := &Ticket{}
	err := s.db.GetContext(ctx, out, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return out, nil
}

// ListTickets returns tickets newest first. limit <= 0 falls back to 100.
func (s *SQLStore) ListTickets(ctx context.Context, limit, offset int) ([]*Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + `
		FROM it_tickets
		ORDER BY created DESC, ticket_id DESC
		LIMIT $1 OFFSET $2`

	out := []*Ticket{}
	if err := s.db.SelectContext(ctx, &out, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return out, nil
}

// UpdateTicket overwrites every mutable column of the ticket.
func (s *SQLStore) UpdateTicket(ctx context.Context, t *Ticket) (*Ticket, error) {
	query := `
		UPDATE it_tickets
		SET created = $2, priority = $3, issue_type = $4, assigned_to = $5, status = $6, description = $7
		WHERE ticket_id = $1
		RETURNING ` + ticketColumns

	out := &Ticket{}
	err := s.db.GetContext(ctx, out, query,
		t.ID, t.Created, t.Priority, t.IssueType, t.AssignedTo, t.Status, t.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update ticket %d: %w", t.ID, err)
	}
	return out, nil
}

// DeleteTicket removes a ticket by id.
func (s *SQLStore) DeleteTicket(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM it_tickets WHERE ticket_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const metadataColumns = `dataset_id, name, rows, columns, uploaded_by, upload_date`

// CreateMetadata registers a dataset in the catalog.
func (s *SQLStore) CreateMetadata(ctx context.Context, m *Metadata) (*Metadata, error) {
	query := `
		INSERT INTO datasets_metadata (name, rows, columns, uploaded_by, upload_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + metadataColumns

	out := &Metadata{}
	err := s.db.GetContext(ctx, out, query,
		m.Name, m.Rows, m.Columns, m.UploadedBy, m.UploadDate)
	if err != nil {
		return nil, fmt.Errorf("create dataset metadata: %w", err)
	}
	return out, nil
}

// ListMetadata returns the dataset catalog newest upload first.
func (s *SQLStore) ListMetadata(ctx context.Context) ([]*Metadata, error) {
	query := `SELECT ` + metadataColumns + `
		FROM datasets_metadata
		ORDER BY upload_date DESC, dataset_id DESC`

	out := []*Metadata{}
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list dataset metadata: %w", err)
	}
	return out, nil
}

// DeleteMetadata removes a catalog entry by id.
func (s *SQLStore) DeleteMetadata(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets_metadata WHERE dataset_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dataset metadata %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

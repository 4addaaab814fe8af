// Package dataset manages the cyber-incident and IT-ticket datasets:
// CRUD stores on PostgreSQL, CSV bulk import, and the HTTP handlers
// exposing both.
package dataset

import (
	"time"
)

// Severity levels shared by incidents and tickets (tickets call it
// priority, the scale is the same).
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// Record statuses.
const (
	StatusOpen       = "Open"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
	StatusClosed     = "Closed"
)

// Incident is a row of the cyber_incidents dataset.
type Incident struct {
	ID          int64     `db:"incident_id" json:"incident_id"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	Severity    string    `db:"severity" json:"severity"`
	Category    string    `db:"category" json:"category"`
	Status      string    `db:"status" json:"status"`
	Description string    `db:"description" json:"description"`
}

// Ticket is a row of the it_tickets dataset.
type Ticket struct {
	ID          int64     `db:"ticket_id" json:"ticket_id"`
	Created     time.Time `db:"created" json:"created"`
	Priority    string    `db:"priority" json:"priority"`
	IssueType   string    `db:"issue_type" json:"issue_type"`
	AssignedTo  string    `db:"assigned_to" json:"assigned_to"`
	Status      string    `db:"status" json:"status"`
	Description string    `db:"description" json:"description"`
}

// Metadata describes one registered dataset: its name, shape, and who
// loaded it.
type Metadata struct {
	ID         int64     `db:"dataset_id" json:"dataset_id"`
	Name       string    `db:"name" json:"name"`
	Rows       int       `db:"rows" json:"rows"`
	Columns    int       `db:"columns" json:"columns"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	UploadDate time.Time `db:"upload_date" json:"upload_date"`
}

// validSeverity reports whether s is one of the four known levels.
func validSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// validStatus reports whether s is one of the four known statuses.
func validStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

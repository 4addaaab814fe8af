package api

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// IncidentRequest is the body for creating or updating a cyber incident.
type IncidentRequest struct {
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Severity    string    `json:"severity" validate:"required,oneof=Low Medium High Critical"`
	Category    string    `json:"category" validate:"required,max=200"`
	Status      string    `json:"status" validate:"required,oneof=Open 'In Progress' Resolved Closed"`
	Description string    `json:"description" validate:"max=2000"`
}

// TicketRequest is the body for creating or updating an IT ticket.
type TicketRequest struct {
	Created     time.Time `json:"created" validate:"required"`
	Priority    string    `json:"priority" validate:"required,oneof=Low Medium High Critical"`
	IssueType   string    `json:"issue_type" validate:"required,max=200"`
	AssignedTo  string    `json:"assigned_to" validate:"max=200"`
	Status      string    `json:"status" validate:"required,oneof=Open 'In Progress' Resolved Closed"`
	Description string    `json:"description" validate:"max=2000"`
}

// ListResponse wraps a dataset listing with its paging window.
type ListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Count  int         `json:"count"`
}

var validate = validator.New()

// validationDetails flattens validator errors into the details map of the
// error envelope, keyed by the lowercased field name.
func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["request"] = []string{err.Error()}
		return details
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		details[field] = append(details[field], "failed on "+fe.Tag())
	}
	return details
}

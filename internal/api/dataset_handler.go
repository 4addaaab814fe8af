// Package api exposes the dataset endpoints: incident and ticket CRUD,
// the dataset catalog, and CSV bulk import.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkam25/intelplatform/internal/archive"
	appctx "github.com/arturkam25/intelplatform/internal/context"
	"github.com/arturkam25/intelplatform/internal/dataset"
	"github.com/arturkam25/intelplatform/internal/sanitizer"
)

// Error codes for dataset operations
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeRecordNotFound   = "RECORD_NOT_FOUND"
	CodeImportFailed     = "IMPORT_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeAuthTokenInvalid = "AUTH_TOKEN_INVALID"
	CodeArchiveDisabled  = "ARCHIVE_DISABLED"
)

// maxImportBytes caps the CSV body accepted by the import endpoints.
const maxImportBytes = 16 << 20

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// DatasetHandler handles HTTP requests for the dataset endpoints.
type DatasetHandler struct {
	store     dataset.Store
	importer  *dataset.Importer
	sanitizer sanitizer.TextSanitizer
	archive   *archive.Service // nil when snapshot archival is disabled
	logger    *slog.Logger
}

// NewDatasetHandler creates a new DatasetHandler instance.
func NewDatasetHandler(store dataset.Store, importer *dataset.Importer, s sanitizer.TextSanitizer, logger *slog.Logger) *DatasetHandler {
	if s == nil {
		s = sanitizer.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetHandler{
		store:     store,
		importer:  importer,
		sanitizer: s,
		logger:    logger,
	}
}

// WithArchive enables raw CSV snapshot archival on the import endpoints.
func (h *DatasetHandler) WithArchive(svc *archive.Service) *DatasetHandler {
	h.archive = svc
	return h
}

// ListIncidents handles GET /api/v1/datasets/incidents
func (h *DatasetHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	incidents, err := h.store.ListIncidents(r.Context(), limit, offset)
	if err != nil {
		h.writeInternalError(w, "list incidents", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, ListResponse{
		Items:  incidents,
		Limit:  limit,
		Offset: offset,
		Count:  len(incidents),
	})
}

// GetIncident handles GET /api/v1/datasets/incidents/{id}
func (h *DatasetHandler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	incident, err := h.store.GetIncident(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "get incident", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, incident)
}

// CreateIncident handles POST /api/v1/datasets/incidents
func (h *DatasetHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req IncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	incident, err := h.store.CreateIncident(r.Context(), h.incidentFromRequest(&req, 0))
	if err != nil {
		h.writeInternalError(w, "create incident", err)
		return
	}
	h.writeSuccess(w, http.StatusCreated, incident)
}

// UpdateIncident handles PUT /api/v1/datasets/incidents/{id}
func (h *DatasetHandler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req IncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	incident, err := h.store.UpdateIncident(r.Context(), h.incidentFromRequest(&req, id))
	if err != nil {
		h.writeStoreError(w, "update incident", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /api/v1/datasets/incidents/{id}
func (h *DatasetHandler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteIncident(r.Context(), id); err != nil {
		h.writeStoreError(w, "delete incident", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// ListTickets handles GET /api/v1/datasets/tickets
func (h *DatasetHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	tickets, err := h.store.ListTickets(r.Context(), limit, offset)
	if err != nil {
		h.writeInternalError(w, "list tickets", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, ListResponse{
		Items:  tickets,
		Limit:  limit,
		Offset: offset,
		Count:  len(tickets),
	})
}

// GetTicket handles GET /api/v1/datasets/tickets/{id}
func (h *DatasetHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	ticket, err := h.store.GetTicket(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "get ticket", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, ticket)
}

// CreateTicket handles POST /api/v1/datasets/tickets
func (h *DatasetHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !h.decode(w, r, &req) {
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), h.ticketFromRequest(&req, 0))
	if err != nil {
		h.writeInternalError(w, "create ticket", err)
		return
	}
	h.writeSuccess(w, http.StatusCreated, ticket)
}

// UpdateTicket handles PUT /api/v1/datasets/tickets/{id}
func (h *DatasetHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req TicketRequest
	if !h.decode(w, r, &req) {
		return
	}

	ticket, err := h.store.UpdateTicket(r.Context(), h.ticketFromRequest(&req, id))
	if err != nil {
		h.writeStoreError(w, "update ticket", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, ticket)
}

// DeleteTicket handles DELETE /api/v1/datasets/tickets/{id}
func (h *DatasetHandler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteTicket(r.Context(), id); err != nil {
		h.writeStoreError(w, "delete ticket", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// ListCatalog handles GET /api/v1/datasets
func (h *DatasetHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.store.ListMetadata(r.Context())
	if err != nil {
		h.writeInternalError(w, "list dataset catalog", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, catalog)
}

// DeleteCatalogEntry handles DELETE /api/v1/datasets/{id}
func (h *DatasetHandler) DeleteCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteMetadata(r.Context(), id); err != nil {
		h.writeStoreError(w, "delete dataset catalog entry", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// ListSnapshots handles GET /api/v1/datasets/snapshots
// ?kind= filters by dataset kind.
func (h *DatasetHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeError(w, http.StatusNotFound, CodeArchiveDisabled, "Snapshot archival is not configured", nil)
		return
	}

	snapshots, err := h.archive.List(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		h.writeInternalError(w, "list snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []archive.Snapshot{}
	}
	h.writeSuccess(w, http.StatusOK, snapshots)
}

// ImportIncidents handles POST /api/v1/datasets/incidents/import
// The request body is the raw CSV file; ?name= names the dataset.
func (h *DatasetHandler) ImportIncidents(w http.ResponseWriter, r *http.Request) {
	h.importCSV(w, r, dataset.KindIncidents)
}

// ImportTickets handles POST /api/v1/datasets/tickets/import
func (h *DatasetHandler) ImportTickets(w http.ResponseWriter, r *http.Request) {
	h.importCSV(w, r, dataset.KindTickets)
}

func (h *DatasetHandler) importCSV(w http.ResponseWriter, r *http.Request, kind string) {
	username, ok := appctx.ExtractUsername(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return
	}

	name := h.sanitizer.SanitizeTruncated(r.URL.Query().Get("name"), 100)
	if name == "" {
		name = kind + " import " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	limited := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer limited.Close()
	raw, err := io.ReadAll(limited)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeImportFailed, "Could not read request body", nil)
		return
	}

	var summary *dataset.ImportSummary
	switch kind {
	case dataset.KindIncidents:
		summary, err = h.importer.ImportIncidents(r.Context(), bytes.NewReader(raw), name, username)
	case dataset.KindTickets:
		summary, err = h.importer.ImportTickets(r.Context(), bytes.NewReader(raw), name, username)
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeImportFailed, err.Error(), nil)
		return
	}

	if h.archive != nil && summary.Inserted > 0 {
		if _, err := h.archive.Archive(r.Context(), kind, name, bytes.NewReader(raw)); err != nil {
			h.logger.Warn("failed to archive csv snapshot",
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}
	h.writeSuccess(w, http.StatusOK, summary)
}

func (h *DatasetHandler) incidentFromRequest(req *IncidentRequest, id int64) *dataset.Incident {
	return &dataset.Incident{
		ID:          id,
		Timestamp:   req.Timestamp.UTC(),
		Severity:    req.Severity,
		Category:    h.sanitizer.SanitizeTruncated(req.Category, 200),
		Status:      req.Status,
		Description: h.sanitizer.SanitizeTruncated(req.Description, 2000),
	}
}

func (h *DatasetHandler) ticketFromRequest(req *TicketRequest, id int64) *dataset.Ticket {
	return &dataset.Ticket{
		ID:          id,
		Created:     req.Created.UTC(),
		Priority:    req.Priority,
		IssueType:   h.sanitizer.SanitizeTruncated(req.IssueType, 200),
		AssignedTo:  h.sanitizer.SanitizeTruncated(req.AssignedTo, 200),
		Status:      req.Status,
		Description: h.sanitizer.SanitizeTruncated(req.Description, 2000),
	}
}

// decode reads and validates a JSON request body.
func (h *DatasetHandler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return false
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Validation failed", validationDetails(err))
		return false
	}
	return true
}

func (h *DatasetHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid record id", nil)
		return 0, false
	}
	return id, true
}

func (h *DatasetHandler) writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, dataset.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, CodeRecordNotFound, "Record not found", nil)
		return
	}
	h.writeInternalError(w, op, err)
}

func (h *DatasetHandler) writeInternalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("dataset operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error", nil)
}

// writeSuccess writes a success response envelope.
func (h *DatasetHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error response envelope.
func (h *DatasetHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}

// pageParams reads limit/offset query parameters with sane bounds.
func pageParams(r *http.Request) (limit, offset int) {
	limit = 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
			if limit > 500 {
				limit = 500
			}
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

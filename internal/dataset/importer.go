package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/arturkam25/intelplatform/internal/metrics"
	"github.com/arturkam25/intelplatform/internal/sanitizer"
)

// Import kinds, used as the metric label and the catalog name prefix.
const (
	KindIncidents = "incidents"
	KindTickets   = "tickets"
)

// maxDescriptionLen caps sanitized free text before it reaches the store.
const maxDescriptionLen = 2000

// ImportSummary reports the outcome of one CSV import.
type ImportSummary struct {
	Kind     string    `json:"kind"`
	Inserted int       `json:"inserted"`
	Skipped  int       `json:"skipped"`
	Errors   []string  `json:"errors,omitempty"`
	Dataset  *Metadata `json:"dataset,omitempty"`
}

// maxReportedErrors keeps the summary bounded for hostile inputs.
const maxReportedErrors = 20

// Importer loads incident and ticket CSV files into the store, sanitizing
// free text on the way in and registering each import in the catalog.
type Importer struct {
	store     Store
	sanitizer sanitizer.TextSanitizer
	logger    *slog.Logger
}

// NewImporter creates an Importer. A nil logger discards log output.
func NewImporter(store Store, s sanitizer.TextSanitizer, logger *slog.Logger) *Importer {
	if s == nil {
		s = sanitizer.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{store: store, sanitizer: s, logger: logger}
}

// ImportIncidents reads an incident CSV (columns timestamp, severity,
// category, status, description) and inserts every valid row. Invalid rows
// are skipped and reported in the summary, never aborting the import.
func (i *Importer) ImportIncidents(ctx context.Context, r io.Reader, name, uploadedBy string) (*ImportSummary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}
	required := []string{"timestamp", "severity", "category", "status", "description"}
	cols, err := resolveColumns(header, required, nil)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{Kind: KindIncidents}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			summary.skip(line, err)
			continue
		}

		in, err := i.parseIncident(record, cols)
		if err != nil {
			summary.skip(line, err)
			continue
		}
		if _, err := i.store.CreateIncident(ctx, in); err != nil {
			summary.skip(line, err)
			continue
		}
		summary.Inserted++
	}

	metrics.DatasetRowsImported.WithLabelValues(KindIncidents).Add(float64(summary.Inserted))
	i.register(ctx, summary, name, uploadedBy, len(required))
	i.logger.Info("incident import finished",
		slog.String("name", name),
		slog.Int("inserted", summary.Inserted),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// ImportTickets reads a ticket CSV (columns created_at, priority,
// issue_type, assigned_to, status, description). The created_at column is
// also accepted under the name created.
func (i *Importer) ImportTickets(ctx context.Context, r io.Reader, name, uploadedBy string) (*ImportSummary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}
	required := []string{"created_at", "priority", "issue_type", "assigned_to", "status", "description"}
	aliases := map[string]string{"created": "created_at"}
	cols, err := resolveColumns(header, required, aliases)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{Kind: KindTickets}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			summary.skip(line, err)
			continue
		}

		t, err := i.parseTicket(record, cols)
		if err != nil {
			summary.skip(line, err)
			continue
		}
		if _, err := i.store.CreateTicket(ctx, t); err != nil {
			summary.skip(line, err)
			continue
		}
		summary.Inserted++
	}

	metrics.DatasetRowsImported.WithLabelValues(KindTickets).Add(float64(summary.Inserted))
	i.register(ctx, summary, name, uploadedBy, len(required))
	i.logger.Info("ticket import finished",
		slog.String("name", name),
		slog.Int("inserted", summary.Inserted),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (i *Importer) parseIncident(record []string, cols map[string]int) (*Incident, error) {
	ts, err := parseTimestamp(field(record, cols, "timestamp"))
	if err != nil {
		return nil, err
	}

	in := &Incident{
		Timestamp:   ts,
		Severity:    strings.TrimSpace(field(record, cols, "severity")),
		Category:    i.sanitizer.SanitizeTruncated(field(record, cols, "category"), 200),
		Status:      strings.TrimSpace(field(record, cols, "status")),
		Description: i.sanitizer.SanitizeTruncated(field(record, cols, "description"), maxDescriptionLen),
	}
	if !validSeverity(in.Severity) {
		return nil, fmt.Errorf("unknown severity %q", in.Severity)
	}
	if !validStatus(in.Status) {
		return nil, fmt.Errorf("unknown status %q", in.Status)
	}
	if in.Category == "" {
		return nil, errors.New("empty category")
	}
	return in, nil
}

func (i *Importer) parseTicket(record []string, cols map[string]int) (*Ticket, error) {
	created, err := parseTimestamp(field(record, cols, "created_at"))
	if err != nil {
		return nil, err
	}

	t := &Ticket{
		Created:     created,
		Priority:    strings.TrimSpace(field(record, cols, "priority")),
		IssueType:   i.sanitizer.SanitizeTruncated(field(record, cols, "issue_type"), 200),
		AssignedTo:  i.sanitizer.SanitizeTruncated(field(record, cols, "assigned_to"), 200),
		Status:      strings.TrimSpace(field(record, cols, "status")),
		Description: i.sanitizer.SanitizeTruncated(field(record, cols, "description"), maxDescriptionLen),
	}
	if !validSeverity(t.Priority) {
		return nil, fmt.Errorf("unknown priority %q", t.Priority)
	}
	if !validStatus(t.Status) {
		return nil, fmt.Errorf("unknown status %q", t.Status)
	}
	if t.IssueType == "" {
		return nil, errors.New("empty issue_type")
	}
	return t, nil
}

// register records the import in the dataset catalog. A catalog failure is
// logged, not returned: the rows are already in.
func (i *Importer) register(ctx context.Context, summary *ImportSummary, name, uploadedBy string, columns int) {
	if summary.Inserted == 0 {
		return
	}
	meta, err := i.store.CreateMetadata(ctx, &Metadata{
		Name:       name,
		Rows:       summary.Inserted,
		Columns:    columns,
		UploadedBy: uploadedBy,
		UploadDate: time.Now().UTC(),
	})
	if err != nil {
		i.logger.Warn("failed to register dataset in catalog",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	summary.Dataset = meta
}

func (s *ImportSummary) skip(line int, err error) {
	s.Skipped++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, fmt.Sprintf("line %d: %v", line, err))
	}
}

func readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv file")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return header, nil
}

// resolveColumns maps required column names to their indexes in the header,
// case-insensitively, applying aliases first.
func resolveColumns(header, required []string, aliases map[string]string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		index[name] = i
	}

	cols := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("missing csv column %q", name)
		}
		cols[name] = i
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	i := cols[name]
	if i >= len(record) {
		return ""
	}
	return record[i]
}

// timestampLayouts accepted in CSV files, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

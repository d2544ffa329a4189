package manifest

import (
	"fmt"
	"time"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

// Status is the lifecycle state of a manifest entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMigrated  Status = "migrated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists statuses in reporting order.
var AllStatuses = []Status{StatusPending, StatusMigrated, StatusSkipped, StatusFailed, StatusCancelled}

// Terminal reports whether s ends an entry's visit for a run.
func (s Status) Terminal() bool { return s != StatusPending && s != "" }

func (s Status) valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ErrorRecord is the persisted form of one failure.
type ErrorRecord struct {
	Category string            `json:"category"`
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Time     time.Time         `json:"time"`
}

// Error lets records flow through error-typed APIs.
func (r ErrorRecord) Error() string {
	return fmt.Sprintf("%s (%s): %s", r.Category, r.Severity, r.Message)
}

// SeverityLevel returns the parsed severity.
func (r ErrorRecord) SeverityLevel() merrors.ErrorSeverity {
	return merrors.ParseSeverity(r.Severity)
}

// RecordFromError converts err into a record timestamped now. Unclassified
// errors are recorded as internal errors with error severity.
func RecordFromError(err error) ErrorRecord {
	rec := ErrorRecord{
		Category: string(merrors.CategoryInternal),
		Severity: string(merrors.SeverityError),
		Message:  err.Error(),
		Time:     time.Now().UTC(),
	}
	if me, ok := merrors.As(err); ok {
		rec.Category = string(me.Category)
		rec.Severity = string(me.Severity)
		rec.Message = me.Error()
		if len(me.Context) > 0 {
			rec.Context = make(map[string]string, len(me.Context))
			for k, v := range me.Context {
				rec.Context[k] = fmt.Sprint(v)
			}
		}
	}
	return rec
}

// RecordsFromError expands joined errors into one record each.
func RecordsFromError(err error) []ErrorRecord {
	if err == nil {
		return nil
	}
	flat := merrors.Flatten(err)
	out := make([]ErrorRecord, 0, len(flat))
	for _, e := range flat {
		out = append(out, RecordFromError(e))
	}
	return out
}

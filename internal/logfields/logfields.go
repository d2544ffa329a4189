package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyContentType = "content_type"
	KeySourceID    = "source_id"
	KeyLocation    = "location"
	KeyBatch       = "batch"
	KeyHookPoint   = "hook_point"
	KeyAction      = "action"
	KeyStatus      = "status"
	KeyDurationMS  = "duration_ms"
	KeyAttempt     = "attempt"
	KeyCount       = "count"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func ContentType(t string) slog.Attr  { return slog.String(KeyContentType, t) }
func SourceID(id string) slog.Attr    { return slog.String(KeySourceID, id) }
func Location(l string) slog.Attr     { return slog.String(KeyLocation, l) }
func Batch(n int) slog.Attr           { return slog.Int(KeyBatch, n) }
func HookPoint(p string) slog.Attr    { return slog.String(KeyHookPoint, p) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

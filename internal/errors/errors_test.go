package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestMigrationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *MigrationError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("connection reset"), CategoryPublish, SeverityError, "publishing item failed"),
			expected: "publish (error): publishing item failed: connection reset",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestMigrationError_WithContext(t *testing.T) {
	err := New(CategoryMapping, SeverityError, "mapping failed").
		WithContext("source_id", "wb-1").
		WithContext("content_type", "workbooks")

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}
	if err.Context["source_id"] != "wb-1" {
		t.Errorf("Context[source_id] = %v, want wb-1", err.Context["source_id"])
	}
	if err.Context["content_type"] != "workbooks" {
		t.Errorf("Context[content_type] = %v, want workbooks", err.Context["content_type"])
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	base := PublishFailed("wb-1", stdErrors.New("boom"))
	wrapped := fmt.Errorf("batch 3: %w", base)

	if !IsCategory(wrapped, CategoryPublish) {
		t.Error("IsCategory should see through fmt wrapping")
	}
	if GetCategory(wrapped) != CategoryPublish {
		t.Errorf("GetCategory = %s, want publish", GetCategory(wrapped))
	}
	if GetCategory(stdErrors.New("plain")) != CategoryInternal {
		t.Error("plain errors should classify as internal")
	}
	if SeverityOf(stdErrors.New("plain")) != SeverityError {
		t.Error("plain errors should default to error severity")
	}
	if SeverityOf(wrapped) != SeverityError {
		t.Errorf("SeverityOf = %s", SeverityOf(wrapped))
	}
}

type temporaryErr struct{}

func (temporaryErr) Error() string   { return "temporary" }
func (temporaryErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable", WrapRetryable(stdErrors.New("x"), CategoryPublish, SeverityWarning, "x"), true},
		{"non retryable", PublishFailed("1", stdErrors.New("x")), false},
		{"temporary", fmt.Errorf("wrap: %w", temporaryErr{}), true},
		{"plain", stdErrors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverityRanking(t *testing.T) {
	if !SeverityFatal.AtLeast(SeverityError) {
		t.Error("fatal should be at least error")
	}
	if SeverityWarning.AtLeast(SeverityError) {
		t.Error("warning should be below error")
	}
	if !SeverityError.AtLeast(SeverityError) {
		t.Error("error should be at least error")
	}
	if ParseSeverity("bogus") != "" {
		t.Error("unknown severity should parse to empty")
	}
}

func TestFlatten(t *testing.T) {
	a, b, c := stdErrors.New("a"), stdErrors.New("b"), stdErrors.New("c")
	got := Flatten(stdErrors.Join(a, stdErrors.Join(b, c)))
	if len(got) != 3 {
		t.Fatalf("Flatten returned %d errors, want 3", len(got))
	}
	if Flatten(nil) != nil {
		t.Error("Flatten(nil) should be nil")
	}
}

func TestCanceledWrapsContextError(t *testing.T) {
	err := Canceled(nil)
	if !stdErrors.Is(err, context.Canceled) {
		t.Error("Canceled(nil) should wrap context.Canceled")
	}
	if !IsCategory(err, CategoryCanceled) {
		t.Error("expected canceled category")
	}
}

func TestCLIErrorAdapterExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ConfigNotFound("x.yaml"), 7},
		{ValidationFailed("batch_size", "must be positive"), 2},
		{UnsupportedManifestVersion("9.0", "1.0"), 9},
		{fmt.Errorf("wrapped: %w", Canceled(nil)), 130},
		{stdErrors.New("plain"), 1},
	}
	for _, c := range cases {
		if got := a.ExitCodeFor(c.err); got != c.want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

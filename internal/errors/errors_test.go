package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// TransientFetchError Tests
// -----------------------------------------------------------------------------

func TestNewTransientFetchError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransientFetchError("query failed", cause)

	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestTransientFetchError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TransientFetchError
		want string
	}{
		{
			name: "message only",
			err:  NewTransientFetchError("query failed", nil),
			want: "fetch error: query failed",
		},
		{
			name: "with cluster and source",
			err:  NewTransientFetchError("query failed", nil).WithClusterID("bt-1").WithSource("prometheus"),
			want: "fetch error [cluster=bt-1, source=prometheus]: query failed",
		},
		{
			name: "with cause",
			err:  NewTransientFetchError("query failed", ErrSampleUnavailable).WithClusterID("bt-1"),
			want: "fetch error [cluster=bt-1]: query failed: load sample unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransientFetchError_Is(t *testing.T) {
	err := NewTransientFetchError("no data", ErrSampleUnavailable)

	if !errors.Is(err, &TransientFetchError{}) {
		t.Error("errors.Is(err, &TransientFetchError{}) = false, want true")
	}
	if !errors.Is(err, ErrSampleUnavailable) {
		t.Error("errors.Is(err, ErrSampleUnavailable) = false, want true")
	}
	if errors.Is(err, ErrInvalidSample) {
		t.Error("errors.Is(err, ErrInvalidSample) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// InvalidSampleError Tests
// -----------------------------------------------------------------------------

func TestInvalidSampleError(t *testing.T) {
	err := NewInvalidSampleError("node count must be positive").
		WithClusterID("bt-1").
		WithSample(0, 0.5)

	want := "invalid sample [cluster=bt-1, nodes=0, utilization=0.5]: node count must be positive"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !errors.Is(err, ErrInvalidSample) {
		t.Error("errors.Is(err, ErrInvalidSample) = false, want true")
	}
	if !IsAlertable(err) {
		t.Error("IsAlertable() = false, want true")
	}
}

// -----------------------------------------------------------------------------
// AdminApplyError Tests
// -----------------------------------------------------------------------------

func TestAdminApplyError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AdminApplyError
		want string
	}{
		{
			name: "no target",
			err:  NewAdminApplyError("resize failed", nil),
			want: "apply error: resize failed",
		},
		{
			name: "zero target is rendered",
			err:  NewAdminApplyError("resize failed", nil).WithTargetNodes(0),
			want: "apply error [target=0]: resize failed",
		},
		{
			name: "full context",
			err:  NewAdminApplyError("resize failed", errors.New("quota exceeded")).WithClusterID("bt-1").WithTargetNodes(16),
			want: "apply error [cluster=bt-1, target=16]: resize failed: quota exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminApplyError_Is(t *testing.T) {
	err := NewAdminApplyError("resize failed", nil)

	if !errors.Is(err, ErrAdminRejected) {
		t.Error("errors.Is(err, ErrAdminRejected) = false, want true")
	}
	if !errors.Is(err, &AdminApplyError{}) {
		t.Error("errors.Is(err, &AdminApplyError{}) = false, want true")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
	if err.WithRetryable(false).IsRetryable() {
		t.Error("WithRetryable(false).IsRetryable() = true, want false")
	}
}

// -----------------------------------------------------------------------------
// HistoryWriteError Tests
// -----------------------------------------------------------------------------

func TestHistoryWriteError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewHistoryWriteError("append failed", cause).WithClusterID("bt-1").WithEventID("evt-1")

	want := "history write error [cluster=bt-1, event=evt-1]: append failed: disk full"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrHistoryWrite) {
		t.Error("errors.Is(err, ErrHistoryWrite) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
}

// -----------------------------------------------------------------------------
// RegistryUnavailableError Tests
// -----------------------------------------------------------------------------

func TestRegistryUnavailableError(t *testing.T) {
	err := NewRegistryUnavailableError("list clusters", errors.New("timeout")).WithBackend("mongo")

	want := "registry unavailable [backend=mongo]: list clusters: timeout"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Error("errors.Is(err, ErrRegistryUnavailable) = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "message only",
			err:  NewValidationError("invalid"),
			want: "validation error: invalid",
		},
		{
			name: "with field and value",
			err:  NewValidationError("must be >= min_nodes").WithField("max_nodes").WithValue(2),
			want: "validation error [field=max_nodes, value=2]: must be >= min_nodes",
		},
		{
			name: "with cause",
			err:  NewValidationError("bad config").WithCause(ErrInvalidConfig),
			want: "validation error: bad config: invalid cluster config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Is(t *testing.T) {
	err := NewValidationError("bad").WithCause(ErrInvalidConfig)

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("errors.Is(err, ErrInvalidInput) = false, want true")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("errors.Is(err, ErrInvalidConfig) = false, want true")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

// -----------------------------------------------------------------------------
// TimeoutError Tests
// -----------------------------------------------------------------------------

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("resize bt-1", 10*time.Second)

	want := "timeout error: resize bt-1 (timeout: 10s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}

	withCause := NewTimeoutError("fetch", time.Second).WithCause(ErrCanceled)
	if !errors.Is(withCause, ErrCanceled) {
		t.Error("errors.Is(withCause, ErrCanceled) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"wrapped timeout sentinel", fmt.Errorf("call: %w", ErrTimeout), true},
		{"fetch error", NewTransientFetchError("x", nil), true},
		{"invalid sample", NewInvalidSampleError("x"), false},
		{"wrapped apply error", fmt.Errorf("cycle: %w", NewAdminApplyError("x", nil)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain error", errors.New("boom"), SeverityError},
		{"invalid sample", NewInvalidSampleError("x"), SeverityCritical},
		{"history write", Wrap(NewHistoryWriteError("x", nil), "append"), SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	err := Wrapf(ErrCycleInProgress, "tick %d", 3)
	if got, want := err.Error(), "tick 3: cycle already in progress"; got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if !Is(err, ErrCycleInProgress) {
		t.Error("Is(err, ErrCycleInProgress) = false, want true")
	}
}

// Package errors provides centralized error definitions and error handling utilities
// for clusterscaler. It defines the autoscaler's failure taxonomy, semantic error
// types, error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain errors map one-to-one onto the ways a cluster evaluation can fail:
//   - TransientFetchError: the load source was unreachable, slow, or had no data
//   - InvalidSampleError: the load source returned nonsensical data
//   - AdminApplyError: the cluster admin API rejected or failed a resize
//   - HistoryWriteError: the scaling history store could not persist an event
//   - RegistryUnavailableError: the cluster registry could not be listed
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid configuration or input
//   - TimeoutError: an external call exceeded its deadline
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewAdminApplyError("resize rejected", cause).
//	    WithClusterID("prod-eu/bigtable-1").
//	    WithTargetNodes(16)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSampleUnavailable) { ... }
//
//	var applyErr *errors.AdminApplyError
//	if errors.As(err, &applyErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors carry a severity and a retryable flag. Retryable errors are expected to
// clear on a later cycle without operator action; critical errors are alertable.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Evaluation sentinel errors
var (
	// ErrSampleUnavailable indicates the load source has no usable sample.
	ErrSampleUnavailable = New("load sample unavailable")
	// ErrInvalidSample indicates a sample with nonsensical values.
	ErrInvalidSample = New("invalid load sample")
	// ErrInvalidConfig indicates a malformed cluster configuration.
	ErrInvalidConfig = New("invalid cluster config")
	// ErrAdminRejected indicates the admin API refused a resize.
	ErrAdminRejected = New("resize rejected")
	// ErrHistoryWrite indicates a scaling event could not be persisted.
	ErrHistoryWrite = New("history write failed")
	// ErrHistoryRead indicates scaling history could not be read.
	ErrHistoryRead = New("history read failed")
)

// Scheduling sentinel errors
var (
	// ErrRegistryUnavailable indicates the cluster registry could not be listed.
	ErrRegistryUnavailable = New("cluster registry unavailable")
	// ErrCycleInProgress indicates a cycle was requested while one is running.
	ErrCycleInProgress = New("cycle already in progress")
	// ErrEvaluationInFlight indicates a cluster is already being evaluated.
	ErrEvaluationInFlight = New("evaluation already in flight")
	// ErrNotRunning indicates a lifecycle operation on a stopped component.
	ErrNotRunning = New("not running")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ScalerError is the base interface for all clusterscaler errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type ScalerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the condition is transient and a later
	// cycle may succeed.
	IsRetryable() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TransientFetchError represents a load source that was unreachable, slow,
// or returned no data. The cluster is held for the cycle and retried on the next.
//
// Example:
//
//	err := errors.NewTransientFetchError("query failed", cause).
//	    WithClusterID("bt-1").WithSource("prometheus")
//	fmt.Println(err) // "fetch error [cluster=bt-1, source=prometheus]: query failed: ..."
type TransientFetchError struct {
	baseError
	ClusterID string
	Source    string
}

// NewTransientFetchError creates a new TransientFetchError.
func NewTransientFetchError(message string, cause error) *TransientFetchError {
	return &TransientFetchError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
	}
}

// WithClusterID adds a cluster ID to the error context.
func (e *TransientFetchError) WithClusterID(id string) *TransientFetchError {
	e.ClusterID = id
	return e
}

// WithSource names the load source backend.
func (e *TransientFetchError) WithSource(source string) *TransientFetchError {
	e.Source = source
	return e
}

// Error returns the formatted error message.
func (e *TransientFetchError) Error() string {
	var parts []string
	if e.ClusterID != "" {
		parts = append(parts, fmt.Sprintf("cluster=%s", e.ClusterID))
	}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	return e.format("fetch error", parts)
}

// Is checks if this error matches the target.
func (e *TransientFetchError) Is(target error) bool {
	if _, ok := target.(*TransientFetchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InvalidSampleError represents a sample the engine refuses to act on, such
// as a zero node count. It is alertable.
type InvalidSampleError struct {
	baseError
	ClusterID   string
	Nodes       int
	Utilization float64
}

// NewInvalidSampleError creates a new InvalidSampleError.
func NewInvalidSampleError(message string) *InvalidSampleError {
	return &InvalidSampleError{
		baseError: baseError{
			message:   message,
			cause:     ErrInvalidSample,
			severity:  SeverityCritical,
			retryable: false,
		},
	}
}

// WithClusterID adds a cluster ID to the error context.
func (e *InvalidSampleError) WithClusterID(id string) *InvalidSampleError {
	e.ClusterID = id
	return e
}

// WithSample records the offending sample values.
func (e *InvalidSampleError) WithSample(nodes int, utilization float64) *InvalidSampleError {
	e.Nodes = nodes
	e.Utilization = utilization
	return e
}

// Error returns the formatted error message.
func (e *InvalidSampleError) Error() string {
	var parts []string
	if e.ClusterID != "" {
		parts = append(parts, fmt.Sprintf("cluster=%s", e.ClusterID))
	}
	parts = append(parts, fmt.Sprintf("nodes=%d", e.Nodes), fmt.Sprintf("utilization=%g", e.Utilization))
	return fmt.Sprintf("invalid sample [%s]: %s", strings.Join(parts, ", "), e.message)
}

// Is checks if this error matches the target.
func (e *InvalidSampleError) Is(target error) bool {
	if _, ok := target.(*InvalidSampleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AdminApplyError represents a resize that the admin API rejected or failed.
// The node count is assumed unchanged; the next cycle re-evaluates from a
// freshly observed sample.
type AdminApplyError struct {
	baseError
	ClusterID   string
	TargetNodes int
}

// NewAdminApplyError creates a new AdminApplyError.
func NewAdminApplyError(message string, cause error) *AdminApplyError {
	return &AdminApplyError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		TargetNodes: -1,
	}
}

// WithClusterID adds a cluster ID to the error context.
func (e *AdminApplyError) WithClusterID(id string) *AdminApplyError {
	e.ClusterID = id
	return e
}

// WithTargetNodes records the node count the resize asked for.
func (e *AdminApplyError) WithTargetNodes(n int) *AdminApplyError {
	e.TargetNodes = n
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *AdminApplyError) WithRetryable(r bool) *AdminApplyError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *AdminApplyError) Error() string {
	var parts []string
	if e.ClusterID != "" {
		parts = append(parts, fmt.Sprintf("cluster=%s", e.ClusterID))
	}
	if e.TargetNodes >= 0 {
		parts = append(parts, fmt.Sprintf("target=%d", e.TargetNodes))
	}
	return e.format("apply error", parts)
}

// Is checks if this error matches the target.
func (e *AdminApplyError) Is(target error) bool {
	if _, ok := target.(*AdminApplyError); ok {
		return true
	}
	if target == ErrAdminRejected {
		return true
	}
	return e.baseError.Is(target)
}

// HistoryWriteError represents a scaling event that could not be persisted.
// It never unwinds an already-applied resize.
type HistoryWriteError struct {
	baseError
	ClusterID string
	EventID   string
}

// NewHistoryWriteError creates a new HistoryWriteError.
func NewHistoryWriteError(message string, cause error) *HistoryWriteError {
	return &HistoryWriteError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
	}
}

// WithClusterID adds a cluster ID to the error context.
func (e *HistoryWriteError) WithClusterID(id string) *HistoryWriteError {
	e.ClusterID = id
	return e
}

// WithEventID adds the ID of the event that was lost.
func (e *HistoryWriteError) WithEventID(id string) *HistoryWriteError {
	e.EventID = id
	return e
}

// Error returns the formatted error message.
func (e *HistoryWriteError) Error() string {
	var parts []string
	if e.ClusterID != "" {
		parts = append(parts, fmt.Sprintf("cluster=%s", e.ClusterID))
	}
	if e.EventID != "" {
		parts = append(parts, fmt.Sprintf("event=%s", e.EventID))
	}
	return e.format("history write error", parts)
}

// Is checks if this error matches the target.
func (e *HistoryWriteError) Is(target error) bool {
	if _, ok := target.(*HistoryWriteError); ok {
		return true
	}
	if target == ErrHistoryWrite {
		return true
	}
	return e.baseError.Is(target)
}

// RegistryUnavailableError represents a failed cluster listing. The whole
// cycle is skipped and retried on the next tick.
type RegistryUnavailableError struct {
	baseError
	Backend string
}

// NewRegistryUnavailableError creates a new RegistryUnavailableError.
func NewRegistryUnavailableError(message string, cause error) *RegistryUnavailableError {
	return &RegistryUnavailableError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
	}
}

// WithBackend names the registry backend.
func (e *RegistryUnavailableError) WithBackend(backend string) *RegistryUnavailableError {
	e.Backend = backend
	return e
}

// Error returns the formatted error message.
func (e *RegistryUnavailableError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	return e.format("registry unavailable", parts)
}

// Is checks if this error matches the target.
func (e *RegistryUnavailableError) Is(target error) bool {
	if _, ok := target.(*RegistryUnavailableError); ok {
		return true
	}
	if target == ErrRegistryUnavailable {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("max_nodes must be >= min_nodes")
//	err = err.WithField("max_nodes").WithValue(2)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:   message,
			severity:  SeverityWarning,
			retryable: false,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("resize bt-1", 10*time.Second)
//	fmt.Println(err) // "timeout error: resize bt-1 (timeout: 10s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true, // Timeouts are generally retryable
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on a later cycle. This checks for:
//   - Errors implementing ScalerError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var scalerErr ScalerError
	if As(err, &scalerErr) {
		return scalerErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ScalerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var scalerErr ScalerError
	if As(err, &scalerErr) {
		return scalerErr.Severity()
	}

	return SeverityError
}

// IsAlertable reports whether an error warrants paging an operator.
func IsAlertable(err error) bool {
	return GetSeverity(err) >= SeverityCritical
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to list clusters")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to resize %s", clusterID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// internal/common/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotificationInsertFailed  ErrorCode = "NOTIFICATION_INSERT_FAILED"
	ErrCodeRepositoryOperationFailed ErrorCode = "REPOSITORY_OPERATION_FAILED"

	ErrCodePreferencesLookupFailed ErrorCode = "PREFERENCES_LOOKUP_FAILED"
	ErrCodePreferencesUpdateFailed ErrorCode = "PREFERENCES_UPDATE_FAILED"
	ErrCodeInvalidPreferences      ErrorCode = "INVALID_PREFERENCES"

	ErrCodeInvalidEventPayload ErrorCode = "INVALID_EVENT_PAYLOAD"
	ErrCodeInvalidFilter       ErrorCode = "INVALID_FILTER"

	ErrCodeSubscriptionFailed  ErrorCode = "SUBSCRIPTION_FAILED"
	ErrCodeSubscriptionTimeout ErrorCode = "SUBSCRIPTION_TIMEOUT"

	ErrCodeBroadcastPartialFailure ErrorCode = "BROADCAST_PARTIAL_FAILURE"
	ErrCodePushDeliveryFailed      ErrorCode = "PUSH_DELIVERY_FAILED"
	ErrCodeInvalidBroadcast        ErrorCode = "INVALID_BROADCAST"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is keeps working through the wrapper.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error thrown back to the Zeebe engine by job workers.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewNotificationInsertFailedError wraps a failed inbox insert.
func NewNotificationInsertFailedError(userID string, err error) *StandardError {
	e := newError(ErrCodeNotificationInsertFailed, "Notification insert failed",
		fmt.Sprintf("userId: %s, error: %v", userID, err), true, err)
	e.Metadata = map[string]interface{}{"userId": userID}
	return e
}

// NewRepositoryOperationFailedError wraps a failed inbox housekeeping call.
func NewRepositoryOperationFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeRepositoryOperationFailed, "Notification repository operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

// NewPreferencesLookupFailedError wraps a failed preference read.
func NewPreferencesLookupFailedError(userID string, err error) *StandardError {
	return newError(ErrCodePreferencesLookupFailed, "Preference lookup failed",
		fmt.Sprintf("userId: %s, error: %v", userID, err), true, err)
}

// NewPreferencesUpdateFailedError wraps a failed preference write.
func NewPreferencesUpdateFailedError(userID string, err error) *StandardError {
	return newError(ErrCodePreferencesUpdateFailed, "Preference update failed",
		fmt.Sprintf("userId: %s, error: %v", userID, err), true, err)
}

// NewInvalidPreferencesError reports a rejected preference value.
func NewInvalidPreferencesError(details string) *StandardError {
	return newError(ErrCodeInvalidPreferences, "Invalid preference value", details, false, nil)
}

// NewInvalidEventPayloadError reports a malformed change-feed row.
func NewInvalidEventPayloadError(table, details string) *StandardError {
	return newError(ErrCodeInvalidEventPayload, "Malformed change payload",
		fmt.Sprintf("table: %s, %s", table, details), false, nil)
}

// NewInvalidFilterError reports an unparseable row filter.
func NewInvalidFilterError(filter string) *StandardError {
	return newError(ErrCodeInvalidFilter, "Invalid row filter",
		fmt.Sprintf("filter: %q (expected column=eq.value)", filter), false, nil)
}

// NewSubscriptionFailedError wraps a CHANNEL_ERROR from the change feed.
func NewSubscriptionFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeSubscriptionFailed, "Change feed subscription failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), false, err)
}

// NewSubscriptionTimeoutError reports a TIMED_OUT subscription.
func NewSubscriptionTimeoutError(channel string, after time.Duration) *StandardError {
	return newError(ErrCodeSubscriptionTimeout, "Change feed subscription timed out",
		fmt.Sprintf("channel: %s, after: %s", channel, after), false, nil)
}

// NewPushDeliveryFailedError wraps a failed OS-level push forward.
func NewPushDeliveryFailedError(channel string, err error) *StandardError {
	return newError(ErrCodePushDeliveryFailed, "Push delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

// NewInvalidBroadcastError reports a broadcast request that cannot be served.
func NewInvalidBroadcastError(details string) *StandardError {
	return newError(ErrCodeInvalidBroadcast, "Invalid broadcast request", details, false, nil)
}

// ==========================
// 4. Partial batch failures
// ==========================

// BatchError accumulates per-item failures of a fan-out without aborting it.
type BatchError struct {
	Total  int
	failed map[string]error
	errs   error
}

// NewBatchError prepares an accumulator for total items.
func NewBatchError(total int) *BatchError {
	return &BatchError{Total: total, failed: make(map[string]error)}
}

// Add records the failure of one item.
func (b *BatchError) Add(item string, err error) {
	if err == nil {
		return
	}
	b.failed[item] = err
	b.errs = multierr.Append(b.errs, fmt.Errorf("%s: %w", item, err))
}

// Failed returns the number of failed items.
func (b *BatchError) Failed() int {
	return len(b.failed)
}

// FailedItems returns the failure of each item keyed by item id.
func (b *BatchError) FailedItems() map[string]error {
	out := make(map[string]error, len(b.failed))
	for k, v := range b.failed {
		out[k] = v
	}
	return out
}

// ErrOrNil returns nil when no item failed, the BatchError otherwise.
func (b *BatchError) ErrOrNil() error {
	if b == nil || len(b.failed) == 0 {
		return nil
	}
	return b
}

func (b *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d items failed: %v", ErrCodeBroadcastPartialFailure, len(b.failed), b.Total, b.errs)
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (b *BatchError) Unwrap() []error {
	return multierr.Errors(b.errs)
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many times a job failing with code should be retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeNotificationInsertFailed,
		ErrCodeRepositoryOperationFailed,
		ErrCodePreferencesLookupFailed,
		ErrCodePreferencesUpdateFailed,
		ErrCodePushDeliveryFailed:
		return 3
	case ErrCodeSubscriptionTimeout:
		return 2
	case ErrCodeBroadcastPartialFailure:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError maps a StandardError onto the workflow error shape.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// IsRetryableErrorCode reports whether code is worth retrying.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory buckets a code for logging and dashboards.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SUBSCRIPTION") || strings.Contains(codeStr, "FILTER"):
		return "REALTIME"
	case strings.Contains(codeStr, "PREFERENCES"):
		return "PREFERENCES"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "REPOSITORY"):
		return "REPOSITORY"
	case strings.Contains(codeStr, "BROADCAST") || strings.Contains(codeStr, "PUSH"):
		return "DELIVERY"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// CodeOf extracts the ErrorCode carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var batchErr *BatchError
	if stderrors.As(err, &batchErr) {
		return ErrCodeBroadcastPartialFailure, true
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code, true
	}
	return "", false
}

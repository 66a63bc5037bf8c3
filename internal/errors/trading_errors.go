package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop trading
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Expected rejections, returned before any state change
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryFunds      ErrorCategory = "FUNDS"
	ErrorCategoryPosition   ErrorCategory = "POSITION"

	// Exchange-originated
	ErrorCategoryExchange       ErrorCategory = "EXCHANGE"
	ErrorCategoryOrderRejected  ErrorCategory = "ORDER_REJECTED"
	ErrorCategoryOrderExpired   ErrorCategory = "ORDER_EXPIRED"
	ErrorCategoryReconciliation ErrorCategory = "RECONCILIATION"

	// Transient, subject to the retry budget
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// TradingError represents a categorized error with context
type TradingError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *TradingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *TradingError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *TradingError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop trading
func (e *TradingError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// New creates a new categorized trading error
func New(category ErrorCategory, component, operation, message string) *TradingError {
	return &TradingError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with trading error context
func Wrap(err error, category ErrorCategory, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	return &TradingError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *TradingError) WithContext(key string, value interface{}) *TradingError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *TradingError) WithRetryable(retryable bool) *TradingError {
	e.Retryable = retryable
	return e
}

// isRetryableCategory determines if an error category is generally retryable
func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit:
		return true
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration,
		ErrorCategoryValidation, ErrorCategoryFunds, ErrorCategoryPosition,
		ErrorCategoryOrderRejected, ErrorCategoryOrderExpired, ErrorCategoryReconciliation:
		return false
	default:
		return true
	}
}

// Categorize attempts to categorize a generic error
func Categorize(err error, component, operation string) *TradingError {
	if err == nil {
		return nil
	}

	var tradingErr *TradingError
	if stderrors.As(err, &tradingErr) {
		return tradingErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "api secret") ||
		strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "insufficient") || strings.Contains(errMsg, "balance") {
		return Wrap(err, ErrorCategoryFunds, component, operation)
	}

	if strings.Contains(errMsg, "rejected") {
		return Wrap(err, ErrorCategoryOrderRejected, component, operation)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "constraint") ||
		strings.Contains(errMsg, "minimum") || strings.Contains(errMsg, "maximum") {
		return Wrap(err, ErrorCategoryValidation, component, operation)
	}

	return Wrap(err, ErrorCategoryTemporary, component, operation)
}

// Typed constructors for the error kinds the core surfaces to callers.

func NewInvalidParameterError(component, operation, message string) *TradingError {
	return New(ErrorCategoryValidation, component, operation, message)
}

func NewInsufficientFundsError(component string, required, available float64) *TradingError {
	return New(ErrorCategoryFunds, component, "open_position",
		fmt.Sprintf("insufficient funds: required %.2f, available %.2f", required, available)).
		WithContext("required", required).
		WithContext("available", available)
}

func NewTooManyPositionsError(component string, current, max int) *TradingError {
	return New(ErrorCategoryPosition, component, "open_position",
		fmt.Sprintf("too many open positions: %d of %d", current, max)).
		WithContext("open_positions", current).
		WithContext("max_positions", max)
}

func NewExchangeUnavailableError(component, exchange string) *TradingError {
	return New(ErrorCategoryExchange, component, "place_order",
		fmt.Sprintf("exchange %s is unavailable", exchange)).WithRetryable(true)
}

func NewOrderRejectedError(component, operation string, err error) *TradingError {
	return Wrap(err, ErrorCategoryOrderRejected, component, operation)
}

func NewOrderExpiredError(component, orderID string) *TradingError {
	return New(ErrorCategoryOrderExpired, component, "poll_order",
		fmt.Sprintf("order %s expired on the exchange", orderID))
}

func NewReconciliationError(component, operation, message string) *TradingError {
	return New(ErrorCategoryReconciliation, component, operation, message)
}

// Category predicates used at call sites to branch on error kind.

func IsCategory(err error, category ErrorCategory) bool {
	var tradingErr *TradingError
	if stderrors.As(err, &tradingErr) {
		return tradingErr.Category == category
	}
	return false
}

func IsInsufficientFunds(err error) bool { return IsCategory(err, ErrorCategoryFunds) }
func IsTooManyPositions(err error) bool  { return IsCategory(err, ErrorCategoryPosition) }
func IsValidation(err error) bool        { return IsCategory(err, ErrorCategoryValidation) }
func IsOrderRejected(err error) bool     { return IsCategory(err, ErrorCategoryOrderRejected) }
func IsReconciliation(err error) bool    { return IsCategory(err, ErrorCategoryReconciliation) }

// IsRetryable reports whether err may be retried under the transport retry budget.
func IsRetryable(err error) bool {
	var tradingErr *TradingError
	if stderrors.As(err, &tradingErr) {
		return tradingErr.Retryable
	}
	// Unknown errors default to retryable so transient transport faults
	// from lower layers are not misclassified as terminal.
	return true
}

// Error recovery strategies
type RecoveryAction string

const (
	RecoveryActionRetry    RecoveryAction = "RETRY"
	RecoveryActionSkip     RecoveryAction = "SKIP"
	RecoveryActionStop     RecoveryAction = "STOP"
	RecoveryActionWait     RecoveryAction = "WAIT"
	RecoveryActionEscalate RecoveryAction = "ESCALATE"
)

// GetRecoveryAction suggests a recovery action based on error category
func (e *TradingError) GetRecoveryAction() RecoveryAction {
	switch e.Category {
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration:
		return RecoveryActionStop
	case ErrorCategoryRateLimit:
		return RecoveryActionWait
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary:
		return RecoveryActionRetry
	case ErrorCategoryReconciliation:
		// Bookkeeping disagreements are never auto-corrected; they go to
		// manual review via an alert.
		return RecoveryActionEscalate
	case ErrorCategoryValidation, ErrorCategoryFunds, ErrorCategoryPosition,
		ErrorCategoryOrderRejected, ErrorCategoryOrderExpired:
		return RecoveryActionSkip
	default:
		return RecoveryActionRetry
	}
}

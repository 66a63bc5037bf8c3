package exchange

import "errors"

// ExchangeError represents standardized errors from exchanges
type ExchangeError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	IsRetryable bool   `json:"is_retryable"`
}

func (e *ExchangeError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Common error types
var (
	ErrInsufficientBalance = &ExchangeError{
		Code:        "INSUFFICIENT_BALANCE",
		Message:     "Insufficient balance for trade",
		IsRetryable: false,
	}

	ErrInvalidSymbol = &ExchangeError{
		Code:        "INVALID_SYMBOL",
		Message:     "Invalid trading symbol",
		IsRetryable: false,
	}

	ErrOrderNotFound = &ExchangeError{
		Code:        "ORDER_NOT_FOUND",
		Message:     "Order not found on exchange",
		IsRetryable: false,
	}

	ErrOrderRejected = &ExchangeError{
		Code:        "ORDER_REJECTED",
		Message:     "Order rejected by exchange",
		IsRetryable: false,
	}

	ErrRateLimitExceeded = &ExchangeError{
		Code:        "RATE_LIMIT_EXCEEDED",
		Message:     "API rate limit exceeded",
		IsRetryable: true,
	}

	ErrConnectionFailed = &ExchangeError{
		Code:        "CONNECTION_FAILED",
		Message:     "Failed to connect to exchange",
		IsRetryable: true,
	}

	ErrNotConnected = &ExchangeError{
		Code:        "NOT_CONNECTED",
		Message:     "Exchange adapter is not connected",
		IsRetryable: true,
	}

	ErrAuthenticationFailed = &ExchangeError{
		Code:        "AUTHENTICATION_FAILED",
		Message:     "Exchange authentication failed",
		IsRetryable: false,
	}
)

// NewConnectivityError wraps a transport failure as a retryable exchange error.
func NewConnectivityError(details string) *ExchangeError {
	return &ExchangeError{
		Code:        "CONNECTION_FAILED",
		Message:     "Failed to reach exchange",
		Details:     details,
		IsRetryable: true,
	}
}

// NewRejectionError wraps an exchange-side order rejection. Terminal, never retried.
func NewRejectionError(details string) *ExchangeError {
	return &ExchangeError{
		Code:        "ORDER_REJECTED",
		Message:     "Order rejected by exchange",
		Details:     details,
		IsRetryable: false,
	}
}

// IsRetryableError reports whether an error is a transient transport failure.
func IsRetryableError(err error) bool {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.IsRetryable
	}
	// Raw transport errors from lower layers default to retryable.
	return true
}

// IsRejection reports whether the exchange rejected the order outright.
func IsRejection(err error) bool {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Code == "ORDER_REJECTED"
	}
	return false
}

// IsOrderNotFound reports whether the exchange has no record of the order.
func IsOrderNotFound(err error) bool {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Code == "ORDER_NOT_FOUND"
	}
	return false
}

package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the kinds of failures the risk core can hit.
type ErrorCategory string

const (
	// Errors that must stop the trading session
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryDependency    ErrorCategory = "DEPENDENCY"

	// Recoverable errors
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategorySafety     ErrorCategory = "SAFETY"
	ErrorCategoryExecution  ErrorCategory = "EXECUTION"
	ErrorCategoryMarketData ErrorCategory = "MARKET_DATA"
	ErrorCategoryNetwork    ErrorCategory = "NETWORK"
	ErrorCategoryTimeout    ErrorCategory = "TIMEOUT"
)

// RiskError is a categorized error with component and operation context.
type RiskError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface.
func (e *RiskError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *RiskError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the operation may be retried on the next
// natural cycle. The core never busy-retries.
func (e *RiskError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal reports whether this error should end the session.
func (e *RiskError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryConfiguration
}

// New creates a categorized risk error.
func New(category ErrorCategory, component, operation, message string) *RiskError {
	return &RiskError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with risk error context.
func Wrap(err error, category ErrorCategory, component, operation string) *RiskError {
	if err == nil {
		return nil
	}
	return &RiskError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext attaches a key/value to the error.
func (e *RiskError) WithContext(key string, value interface{}) *RiskError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the retryable flag.
func (e *RiskError) WithRetryable(retryable bool) *RiskError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryMarketData, ErrorCategoryExecution:
		return true
	case ErrorCategoryFatal, ErrorCategoryConfiguration, ErrorCategoryValidation, ErrorCategorySafety:
		return false
	default:
		return false
	}
}

// Categorize maps a generic error onto the risk taxonomy.
func Categorize(err error, component, operation string) *RiskError {
	if err == nil {
		return nil
	}
	if riskErr, ok := err.(*RiskError); ok {
		return riskErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dial") {
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}
	if strings.Contains(errMsg, "rejected") || strings.Contains(errMsg, "insufficient") {
		return Wrap(err, ErrorCategoryExecution, component, operation)
	}
	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "minimum") ||
		strings.Contains(errMsg, "maximum") {
		return Wrap(err, ErrorCategoryValidation, component, operation).WithRetryable(false)
	}

	return Wrap(err, ErrorCategoryExecution, component, operation)
}

// Common constructors

func NewValidationError(component, operation, message string) *RiskError {
	return New(ErrorCategoryValidation, component, operation, message)
}

func NewSafetyError(component, operation, message string) *RiskError {
	return New(ErrorCategorySafety, component, operation, message)
}

func NewDependencyError(component, operation, message string) *RiskError {
	return New(ErrorCategoryDependency, component, operation, message).WithRetryable(false)
}

func NewConfigurationError(component, operation, message string) *RiskError {
	return New(ErrorCategoryConfiguration, component, operation, message)
}

func NewExecutionError(component, operation string, err error) *RiskError {
	return Wrap(err, ErrorCategoryExecution, component, operation)
}

func NewMarketDataError(component, operation string, err error) *RiskError {
	return Wrap(err, ErrorCategoryMarketData, component, operation)
}

func NewFatalError(component, operation, message string) *RiskError {
	return New(ErrorCategoryFatal, component, operation, message)
}

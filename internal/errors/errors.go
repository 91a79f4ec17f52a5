// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrStrategyDisabled  = errors.New("strategy is disabled")
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrNoCandidates      = errors.New("no candidates passed universe filters")
	ErrNoPrices          = errors.New("no candidate has a usable price")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPositionNotFound  = errors.New("position not found")
	ErrVersionConflict   = errors.New("portfolio modified concurrently")
	ErrRunCancelled      = errors.New("run cancelled")
	ErrLeaseLost         = errors.New("job lease lost")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("operation timed out")
	ErrConfigInvalid     = errors.New("invalid configuration")
)

// RunError is a fatal run-level error: the run is aborted and marked failed.
type RunError struct {
	RunID string
	Phase string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run error [%s] phase %s: %v", e.RunID, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(runID, phase string, err error) *RunError {
	return &RunError{RunID: runID, Phase: phase, Err: err}
}

// StepError is a degraded symbol-level error: logged to the run event log,
// the symbol is excluded or marked neutral, and the run continues.
type StepError struct {
	Symbol string
	Step   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step error [%s] %s: %v", e.Step, e.Symbol, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a new StepError.
func NewStepError(symbol, step string, err error) *StepError {
	return &StepError{Symbol: symbol, Step: step, Err: err}
}

// ServiceError is an error from an external collaborator (AI service,
// market-data provider). Call sites retry once, then degrade.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error [%s] %s: %v", e.Service, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, operation string, err error) *ServiceError {
	return &ServiceError{Service: service, Operation: operation, Err: err}
}

// TradeError represents a failure executing a single trade.
type TradeError struct {
	PortfolioID string
	Symbol      string
	Side        string
	Reason      string
	Err         error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error %s %s: %s: %v", e.Side, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error %s %s: %s", e.Side, e.Symbol, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(portfolioID, symbol, side, reason string, err error) *TradeError {
	return &TradeError{PortfolioID: portfolioID, Symbol: symbol, Side: side, Reason: reason, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

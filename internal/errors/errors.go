package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// BuildError is a failure attributed to one step of a site-data build
type BuildError struct {
	Component string
	Message   string
	Severity  ErrorSeverity
	Cause     error
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", be.Component, be.Severity, be.Message)
	if be.Cause != nil {
		msg += ": " + be.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (be *BuildError) Unwrap() error {
	return be.Cause
}

// ErrorCollector collects build errors from concurrently running steps
type ErrorCollector struct {
	buildErrors []BuildError
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		buildErrors: make([]BuildError, 0),
	}
}

// Add adds a build error to the collector
func (ec *ErrorCollector) Add(err BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	ec.buildErrors = append(ec.buildErrors, err)
}

// AddError records err for component with error severity. Nil errors are ignored.
func (ec *ErrorCollector) AddError(component string, err error) {
	if err == nil {
		return
	}
	ec.Add(BuildError{
		Component: component,
		Message:   "step failed",
		Severity:  ErrorSeverityError,
		Cause:     err,
	})
}

// GetErrors returns a copy of the collected errors ordered by component
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]BuildError, len(ec.buildErrors))
	copy(result, ec.buildErrors)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Component < result[j].Component
	})
	return result
}

// HasErrors returns true if any collected error is at least error severity
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	for _, err := range ec.buildErrors {
		if err.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// Err joins every error-severity entry into a single error, or returns nil
func (ec *ErrorCollector) Err() error {
	var errs []error
	for _, be := range ec.GetErrors() {
		if be.Severity >= ErrorSeverityError {
			be := be
			errs = append(errs, &be)
		}
	}
	return errors.Join(errs...)
}

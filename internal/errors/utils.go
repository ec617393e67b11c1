package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a SiteError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *SiteError {
	if err == nil {
		return nil
	}

	// Keep the component and recoverability of an existing SiteError
	var se *SiteError
	if errors.As(err, &se) {
		return &SiteError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       err,
			Context:     se.Context,
			Component:   se.Component,
			Recoverable: se.Recoverable,
		}
	}

	return &SiteError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapBuild wraps an error as a build error with component context
func WrapBuild(err error, code, message, component string) *SiteError {
	siteErr := Wrap(err, ErrorTypeBuild, code, message)
	if siteErr != nil {
		siteErr.Component = component
	}
	return siteErr
}

// WrapValidation wraps an error as a validation error
func WrapValidation(err error, code, message string) *SiteError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// WrapUpstream wraps an error returned while talking to an external API
func WrapUpstream(err error, code, message string) *SiteError {
	siteErr := Wrap(err, ErrorTypeUpstream, code, message)
	if siteErr != nil {
		siteErr.Recoverable = false
	}
	return siteErr
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *SiteError {
	siteErr := Wrap(err, ErrorTypeIO, code, message)
	if siteErr != nil {
		siteErr.Recoverable = false
	}
	return siteErr
}

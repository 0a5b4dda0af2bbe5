package models

import (
	"fmt"
	"strings"
)

// SchemaError reports a required input column that could not be found
type SchemaError struct {
	Field  string
	Source string
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("required column %q not found", e.Field)
	}
	return fmt.Sprintf("required column %q not found in %s", e.Field, e.Source)
}

// DataInsufficientError reports a stage that did not get enough rows or classes
type DataInsufficientError struct {
	Stage  string
	Reason string
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s", e.Stage, e.Reason)
}

// MissingFeatureError lists manifest columns absent from an inference feature set
type MissingFeatureError struct {
	Missing []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing features: %s", strings.Join(e.Missing, ", "))
}

// UpstreamError wraps a failure of an external collaborator
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

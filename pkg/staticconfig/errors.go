package staticconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a bootstrap YAML file was not found.
	ErrConfigNotFound = errors.New("bootstrap configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrUnknownScope indicates scopes.yaml named a scope outside the closed set.
	ErrUnknownScope = errors.New("unknown scope")

	// ErrDuplicatePluginID indicates plugins.yaml declared the same plugin id twice.
	ErrDuplicatePluginID = errors.New("duplicate plugin id")
)

// LoadError wraps a bootstrap file load failure with file context, in the
// style of the rest of the module's typed errors.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}
func (e *LoadError) Unwrap() error { return e.Err }

func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

// ValidationError wraps a bootstrap validation failure with component context.
type ValidationError struct {
	Component string
	ID        string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

package mhe

import (
	"fmt"
	"strings"
)

// ConfigurationError indicates a missing or invalid estimator configuration:
// a mandatory registration was not made before setup or an unrecognized
// configuration key was supplied.
type ConfigurationError struct {
	// Op is the operation that failed
	Op string
	// Msg describes the configuration problem
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// ShapeMismatchError indicates that a callback output does not match its
// structural template
type ShapeMismatchError struct {
	// Op is the operation that failed
	Op string
	// Want are the expected labels
	Want []string
	// Got are the labels of the supplied value
	Got []string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: output does not match template: want %v, got %v", e.Op, e.Want, e.Got)
}

// DomainError indicates that a registered objective function could not be
// evaluated on its declared domain
type DomainError struct {
	// Op is the operation that failed
	Op string
	// Msg describes the domain violation
	Msg string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// BoundsError indicates declared bounds with lower > upper.
// Components lists every offending component label.
type BoundsError struct {
	// Components are the labels of all violating components
	Components []string
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("inconsistent bounds (lower > upper) for: %s", strings.Join(e.Components, ", "))
}

// StateError indicates a call that is not valid in the estimator's current
// lifecycle phase: mutating configuration after setup or stepping before it.
type StateError struct {
	// Op is the operation that failed
	Op string
	// Msg describes the lifecycle violation
	Msg string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

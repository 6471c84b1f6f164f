// Package apperr classifies runtime failures into the small set of kinds
// the supervisor and error-reporting paths branch on.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a coarse failure category used to pick a recovery policy and,
// at startup, a process exit code.
type Kind int

const (
	// KindUnknown is the zero value; never constructed directly.
	KindUnknown Kind = iota
	// KindConfiguration marks a missing or invalid mandatory config key.
	KindConfiguration
	// KindResourceUnavailable marks a camera, GPIO pin, or model file that
	// could not be opened.
	KindResourceUnavailable
	// KindInference marks a detector/embedder failure on a single frame.
	KindInference
	// KindQualityRejected marks an informational rejection by the quality filter.
	KindQualityRejected
	// KindNoMatch marks a normal recognition miss.
	KindNoMatch
	// KindIndexIO marks a face-index persistence failure.
	KindIndexIO
	// KindNetwork marks a transient sync or log-upload failure.
	KindNetwork
	// KindGateHardware marks a relay/GPIO drive failure.
	KindGateHardware
	// KindShutdown marks a deliberate, signalled shutdown.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResourceUnavailable:
		return "resource_unavailable"
	case KindInference:
		return "inference"
	case KindQualityRejected:
		return "quality_rejected"
	case KindNoMatch:
		return "no_match"
	case KindIndexIO:
		return "index_io"
	case KindNetwork:
		return "network"
	case KindGateHardware:
		return "gate_hardware"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the process exit code documented for the node.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfiguration, KindResourceUnavailable:
		return 1
	case KindShutdown, KindUnknown:
		return 0
	default:
		return 2
	}
}

// Error wraps an underlying cause with a Kind and the component that raised it.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Component, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the component name that observed it.
// Returns nil if err is nil.
func New(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

// Of extracts the Kind from err, walking the wrap chain. Returns KindUnknown
// when no *Error is present.
func Of(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Fatal reports whether a failure of this kind should abort the process at
// startup.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindResourceUnavailable
}

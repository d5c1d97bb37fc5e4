package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSetup         = errors.New("setup failure")
	ErrStartup       = errors.New("startup failure")
	ErrSubmission    = errors.New("submission failure")
	ErrEngine        = errors.New("engine failure")
	ErrTimeout       = errors.New("timeout")
	ErrLocate        = errors.New("artifact discovery failure")
	ErrStorage       = errors.New("storage failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Kind is the coarse failure classification recorded on run ledger rows and
// used as a metrics label. Values stay stable; dashboards key off them.
type Kind string

const (
	KindSetup         Kind = "setup"
	KindStartup       Kind = "startup"
	KindSubmission    Kind = "submission"
	KindEngine        Kind = "engine"
	KindTimeout       Kind = "timeout"
	KindLocate        Kind = "locate"
	KindStorage       Kind = "storage"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTransient     Kind = "transient"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error chain to the failure kind the worker records. The
// first matching marker wins; untagged errors classify as transient.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrSetup):
		return KindSetup
	case errors.Is(err, ErrStartup):
		return KindStartup
	case errors.Is(err, ErrSubmission):
		return KindSubmission
	case errors.Is(err, ErrEngine):
		return KindEngine
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrLocate):
		return KindLocate
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindTransient
	}
}

// Fatal reports whether the error should abort the run outright. Setup and
// per-artifact storage failures reduce capability without killing the run.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindSetup, KindStorage:
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// ─── Error Kinds ────────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

// AdjError is the closed set of failure kinds surfaced by the access layer.
// The first five carry the driver's own numeric codes; the rest are raised
// locally and never reach native code.
type AdjError int

const (
	ErrFamilyUnsupported    AdjError = -1
	ErrCommTimeout          AdjError = -2
	ErrOperationUnsupported AdjError = -3
	ErrOperationRejected    AdjError = -4
	ErrMemoryAccess         AdjError = -5

	ErrSessionClosed      AdjError = -100
	ErrTableNotReady      AdjError = -101
	ErrCapabilityMismatch AdjError = -102
	ErrValueOutOfDomain   AdjError = -103
	ErrAcquireFailed      AdjError = -104
	ErrAlreadyReleased    AdjError = -105
	ErrSessionBusy        AdjError = -106
)

// AllErrors returns every AdjError kind, native kinds first.
func AllErrors() []AdjError {
	return []AdjError{
		ErrFamilyUnsupported, ErrCommTimeout, ErrOperationUnsupported,
		ErrOperationRejected, ErrMemoryAccess,
		ErrSessionClosed, ErrTableNotReady, ErrCapabilityMismatch,
		ErrValueOutOfDomain, ErrAcquireFailed, ErrAlreadyReleased,
		ErrSessionBusy,
	}
}

func (e AdjError) Error() string { return ErrorDescription(e) }

// Native reports whether e originates from a driver return code.
func (e AdjError) Native() bool {
	return e <= ErrFamilyUnsupported && e >= ErrMemoryAccess
}

// Kind returns a stable snake_case identifier for logs, metrics and JSON.
func (e AdjError) Kind() string {
	switch e {
	case ErrFamilyUnsupported:
		return "family_unsupported"
	case ErrCommTimeout:
		return "comm_timeout"
	case ErrOperationUnsupported:
		return "operation_unsupported"
	case ErrOperationRejected:
		return "operation_rejected"
	case ErrMemoryAccess:
		return "memory_access"
	case ErrSessionClosed:
		return "session_closed"
	case ErrTableNotReady:
		return "table_not_ready"
	case ErrCapabilityMismatch:
		return "capability_mismatch"
	case ErrValueOutOfDomain:
		return "value_out_of_domain"
	case ErrAcquireFailed:
		return "acquire_failed"
	case ErrAlreadyReleased:
		return "already_released"
	case ErrSessionBusy:
		return "session_busy"
	}
	return "error_" + strconv.Itoa(int(e))
}

// ErrorDescription returns a human-readable description. Total.
func ErrorDescription(e AdjError) string {
	switch e {
	case ErrFamilyUnsupported:
		return "CPU family not supported by the driver"
	case ErrCommTimeout:
		return "SMU communication timed out"
	case ErrOperationUnsupported:
		return "operation not supported on this CPU"
	case ErrOperationRejected:
		return "operation rejected by SMU firmware"
	case ErrMemoryAccess:
		return "physical memory access failed"
	case ErrSessionClosed:
		return "device session is closed"
	case ErrTableNotReady:
		return "power metrics table not ready; refresh first"
	case ErrCapabilityMismatch:
		return "parameter has no accessor for the requested mode"
	case ErrValueOutOfDomain:
		return "value outside the accepted domain"
	case ErrAcquireFailed:
		return "could not acquire device session"
	case ErrAlreadyReleased:
		return "device session already released"
	case ErrSessionBusy:
		return "device session already held"
	}
	return fmt.Sprintf("unrecognized error code %d", int(e))
}

// FromCode lifts a driver return code into the typed model. Zero and
// positive codes are success. Negative codes outside the documented five
// map to ErrOperationRejected; the raw value is kept on the OpError.
func FromCode(code int) error {
	if code >= 0 {
		return nil
	}
	k := AdjError(code)
	if !k.Native() {
		k = ErrOperationRejected
	}
	return &OpError{Code: code, Err: k}
}

// ─── Operation Errors ───────────────────────────────────────────────────────

// OpError names the operation or parameter that failed.
type OpError struct {
	Op    string // lifecycle or table operation, e.g. "refresh_table"
	Param string // parameter name for get/set
	Code  int    // raw driver code, 0 when raised locally
	Err   error
}

func (e *OpError) Error() string {
	subject := e.Op
	if e.Param != "" {
		if subject != "" {
			subject += " " + e.Param
		} else {
			subject = e.Param
		}
	}
	if subject == "" {
		return e.Err.Error()
	}
	return subject + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Wrap annotates err with an operation and parameter. An existing OpError
// keeps its code and inherits any missing names.
func Wrap(op, param string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		out := *oe
		if out.Op == "" {
			out.Op = op
		}
		if out.Param == "" {
			out.Param = param
		}
		return &out
	}
	return &OpError{Op: op, Param: param, Err: err}
}

// KindOf extracts the AdjError kind from err, if any.
func KindOf(err error) (AdjError, bool) {
	var k AdjError
	if errors.As(err, &k) {
		return k, true
	}
	return 0, false
}

// ParamOf returns the parameter name carried by err, or "".
func ParamOf(err error) string {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Param
	}
	return ""
}

// ─── Host Application Errors ────────────────────────────────────────────────

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileInvalid  = errors.New("profile is invalid")
	ErrUnknownDriver   = errors.New("unknown driver")
)

package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers and transports.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindBadRequest
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is an expected, caller-recoverable outcome of a dispatch operation.
// Two Errors are considered equal by errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrJobNotFound          = newError(KindNotFound, "JOB_NOT_FOUND", "job not found")
	ErrMatchNotFound        = newError(KindNotFound, "MATCH_NOT_FOUND", "match not found")
	ErrContractorNotFound   = newError(KindNotFound, "CONTRACTOR_NOT_FOUND", "contractor not found")
	ErrOrganizationNotFound = newError(KindNotFound, "ORGANIZATION_NOT_FOUND", "organization not found")
	ErrEquipmentNotFound    = newError(KindNotFound, "EQUIPMENT_NOT_FOUND", "equipment not found")
	ErrSuspensionNotFound   = newError(KindNotFound, "SUSPENSION_NOT_FOUND", "suspension not found")

	ErrAlreadyMatched   = newError(KindConflict, "ALREADY_MATCHED", "job is no longer open")
	ErrAlreadySigned    = newError(KindConflict, "ALREADY_SIGNED", "match is already signed")
	ErrAlreadyCancelled = newError(KindConflict, "ALREADY_CANCELLED", "job is already cancelled")
	ErrAlreadyConfirmed = newError(KindConflict, "ALREADY_CONFIRMED", "organization confirmation already recorded")
	ErrAlreadySuspended = newError(KindConflict, "ALREADY_SUSPENDED", "actor already has an active suspension")
	ErrAlreadyLifted    = newError(KindConflict, "ALREADY_LIFTED", "suspension is no longer active")
	ErrAlreadyRated     = newError(KindConflict, "ALREADY_RATED", "match is already rated")
	ErrAlreadyExists    = newError(KindConflict, "ALREADY_EXISTS", "resource already exists")

	ErrNoMatchingEquipment         = newError(KindBadRequest, "NO_MATCHING_EQUIPMENT", "no active equipment matches the job requirements")
	ErrInvalidTransition           = newError(KindBadRequest, "INVALID_STATE_FOR_TRANSITION", "transition is not allowed from the current state")
	ErrContractorSignatureRequired = newError(KindBadRequest, "CONTRACTOR_SIGNATURE_REQUIRED", "contractor signature is required first")
	ErrClientSignatureRequired     = newError(KindBadRequest, "CLIENT_SIGNATURE_REQUIRED", "client signature is required first")
	ErrJobCompleted                = newError(KindBadRequest, "JOB_COMPLETED", "completed jobs cannot be cancelled")
	ErrInvalidArgument             = newError(KindBadRequest, "INVALID_ARGUMENT", "invalid argument")

	ErrNotVerified = newError(KindForbidden, "NOT_VERIFIED", "contractor is not verified")
	ErrSuspended   = newError(KindForbidden, "SUSPENDED", "actor is suspended")
	ErrNotAllowed  = newError(KindForbidden, "NOT_ALLOWED", "actor is not allowed to perform this operation")
)

// Invalid returns an ErrInvalidArgument carrying a specific message.
func Invalid(format string, args ...any) error {
	return newError(KindBadRequest, ErrInvalidArgument.Code, fmt.Sprintf(format, args...))
}

// KindOf reports the Kind of err, or 0 when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// CodeOf reports the code of err, or "" when err is not a domain error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

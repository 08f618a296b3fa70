// Package apperr defines the closed error taxonomy of the coordination
// engine. Every failure an engine operation can report carries a Kind the
// boundary layer maps to a transport response, a stable machine code, and a
// human message. The engine never returns transport types.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidTransition
	KindNotAuthorized
	KindPreconditionFailed
	KindValidationFailed
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindNotAuthorized:
		return "not_authorized"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindValidationFailed:
		return "validation_failed"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// HTTPStatus is a hint only; the engine does not know about transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidTransition, KindPreconditionFailed, KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf unwraps err looking for an *Error and reports its Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf unwraps err looking for an *Error and reports its machine code.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Incidents

func IncidentNotFound() *Error {
	return New(KindNotFound, "INCIDENT_NOT_FOUND", "The requested incident could not be found.")
}

func CategoryNotFound() *Error {
	return New(KindNotFound, "CATEGORY_NOT_FOUND", "The selected incident category does not exist.")
}

func CategoryInactive() *Error {
	return New(KindPreconditionFailed, "CATEGORY_INACTIVE", "The selected incident category is no longer active.")
}

func InvalidStatusTransition(from, to string) *Error {
	return Newf(KindInvalidTransition, "INVALID_STATUS_TRANSITION", "Cannot transition incident from %s to %s.", from, to)
}

func IncidentNotCloseable(status string) *Error {
	return Newf(KindInvalidTransition, "INVALID_STATUS_TRANSITION", "You cannot close an incident at the current %s stage.", status)
}

func ClosureNoteRequired() *Error {
	return New(KindValidationFailed, "CLOSURE_NOTE_REQUIRED", "Please provide a reason for closing this incident.")
}

func IncidentNotVerifiable(status string) *Error {
	return Newf(KindPreconditionFailed, "INCIDENT_NOT_VERIFIABLE", "Incidents in the %s stage cannot be verified.", status)
}

// Missions

func MissionNotFound() *Error {
	return New(KindNotFound, "MISSION_NOT_FOUND", "The requested mission could not be found.")
}

func IncidentNotVerified() *Error {
	return New(KindPreconditionFailed, "INCIDENT_NOT_VERIFIED", "A mission can only be dispatched for a verified incident.")
}

func MissionAlreadyActive() *Error {
	return New(KindConflict, "MISSION_ALREADY_ACTIVE", "An active mission already exists for this incident.")
}

func LeaderRequired() *Error {
	return New(KindPreconditionFailed, "LEADER_REQUIRED", "A mission requires exactly one leader assignment.")
}

func AssignmentRoleRequired() *Error {
	return New(KindValidationFailed, "ASSIGNMENT_ROLE_REQUIRED", "Every mission assignment requires a role.")
}

func InvalidMissionTransition(from, to string) *Error {
	return Newf(KindInvalidTransition, "INVALID_MISSION_TRANSITION", "Cannot advance mission from %s to %s.", from, to)
}

func TransitionNotAuthorized() *Error {
	return New(KindNotAuthorized, "TRANSITION_NOT_AUTHORIZED", "Only the assigned leader or an administrator may advance this mission.")
}

func TrackingNotEnRoute(status string) *Error {
	return Newf(KindPreconditionFailed, "TRACKING_NOT_EN_ROUTE", "Tracking points are only recorded while the mission is en route (current: %s).", status)
}

func ReportAlreadyExists() *Error {
	return New(KindPreconditionFailed, "REPORT_ALREADY_EXISTS", "A report has already been filed for this mission.")
}

func MissionNotCompleted(status string) *Error {
	return Newf(KindPreconditionFailed, "MISSION_NOT_COMPLETED", "A report can only be filed once the mission is completed (current: %s).", status)
}

func NotApprovedVolunteer() *Error {
	return New(KindPreconditionFailed, "NOT_AN_APPROVED_VOLUNTEER", "You must be an approved volunteer to perform this action.")
}

// Applications

func AgencyNotFound() *Error {
	return New(KindNotFound, "AGENCY_NOT_FOUND", "The selected agency could not be found.")
}

func ApplicationNotFound() *Error {
	return New(KindNotFound, "APPLICATION_NOT_FOUND", "The requested application could not be found.")
}

func ApplicationAlreadyActive(agency string) *Error {
	return Newf(KindConflict, "APPLICATION_ALREADY_ACTIVE", "You already have an active application with %s.", agency)
}

func ApplicationNotEditable() *Error {
	return New(KindPreconditionFailed, "APPLICATION_NOT_EDITABLE", "This application can no longer be edited.")
}

func CannotWithdraw() *Error {
	return New(KindPreconditionFailed, "CANNOT_WITHDRAW_AFTER_REVIEW", "Applications cannot be withdrawn after review has concluded.")
}

func ApplicationNotPending(status string) *Error {
	return Newf(KindInvalidTransition, "APPLICATION_NOT_PENDING", "Only pending applications can be reviewed (current: %s).", status)
}

// Profiles

func ProfileAlreadyExists() *Error {
	return New(KindConflict, "PROFILE_ALREADY_EXISTS", "An emergency profile already exists for this account.")
}

func ProfileNotFound() *Error {
	return New(KindNotFound, "PROFILE_NOT_FOUND", "The requested profile could not be found.")
}

// Shared

func Forbidden() *Error {
	return New(KindNotAuthorized, "FORBIDDEN", "Access denied.")
}

func UserNotFound() *Error {
	return New(KindNotFound, "USER_NOT_FOUND", "The requested user could not be found.")
}

// Conflict marks an optimistic-concurrency collision: the persisted state
// moved between read and write. Callers may retry with fresh state.
func Conflict() *Error {
	return New(KindConflict, "CONFLICT", "The record was modified concurrently; retry with fresh state.")
}

func Validation(message string) *Error {
	return New(KindValidationFailed, "VALIDATION_FAILED", message)
}

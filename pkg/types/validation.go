package types

import (
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks identifier format for calls, students, classes and users.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// ParseCallStatus converts a wire value into a known CallStatus.
func ParseCallStatus(s string) (CallStatus, error) {
	status := CallStatus(s)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s CallStatus) Valid() bool {
	switch s {
	case StatusPending,
		StatusAcknowledged,
		StatusCompleted,
		StatusCancelledByParent,
		StatusCancelledBySchool,
		StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no staff or parent transition leaves this status.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelledByParent, StatusCancelledBySchool, StatusExpired:
		return true
	default:
		return false
	}
}

// Active reports whether the call still awaits completion.
func (s CallStatus) Active() bool {
	return s == StatusPending || s == StatusAcknowledged
}

// ActiveStatuses lists the statuses matched by active-only listings.
func ActiveStatuses() []CallStatus {
	return []CallStatus{StatusPending, StatusAcknowledged}
}

// ParseRole converts a wire value into a known Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSuperAdmin, RoleSchoolAdmin, RoleTeacher, RoleParent:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Validate checks that an identity is usable for authorization.
// Staff identities must carry a tenant.
func (i Identity) Validate() error {
	if !IsValidID(i.UserID) {
		return ErrInvalidID
	}
	if _, err := ParseRole(string(i.Role)); err != nil {
		return err
	}
	if i.IsStaff() && i.SchoolID == "" {
		return ErrForbidden
	}
	return nil
}

// Normalize applies list defaults and bounds.
func (f CallFilter) Normalize() CallFilter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Order != OrderOldestFirst {
		f.Order = OrderNewestFirst
	}
	return f
}

package types

import (
	"time"
)

// CallStatus is the lifecycle state of a pickup call.
type CallStatus string

// ARCHITECTURAL DISCOVERY: Status values are the wire and storage representation;
// they are persisted as-is and appear verbatim in broadcast envelopes
const (
	StatusPending           CallStatus = "pending"
	StatusAcknowledged      CallStatus = "acknowledged"
	StatusCompleted         CallStatus = "completed"
	StatusCancelledByParent CallStatus = "cancelled_by_parent"
	StatusCancelledBySchool CallStatus = "cancelled_by_school"
	StatusExpired           CallStatus = "expired"
)

// Role identifies the class of actor performing an operation.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSchoolAdmin Role = "school_admin"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
)

// Envelope types sent to classroom clients
const (
	EnvelopeNewCall     = "new_call"
	EnvelopeCallUpdated = "call_updated"
)

// Identity is the resolved caller of an operation.
// SchoolID is empty for parents and super admins.
type Identity struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
}

// IsStaff reports whether the identity acts on behalf of a school.
func (i Identity) IsStaff() bool {
	return i.Role == RoleTeacher || i.Role == RoleSchoolAdmin
}

// Call is a persisted pickup request for one student.
// FUNCTIONAL DISCOVERY: ClassID and SchoolID are captured when the call is created
// and never change afterwards, even if the student is reassigned
type Call struct {
	ID        string     `json:"id" db:"id"`
	StudentID string     `json:"student_id" db:"student_id"`
	ParentID  string     `json:"parent_user_id" db:"parent_user_id"`
	SchoolID  string     `json:"school_id" db:"school_id"`
	ClassID   string     `json:"class_id" db:"class_id"`
	Status    CallStatus `json:"status" db:"status"`
	Version   int64      `json:"-" db:"version"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// StudentSummary is the student portion of a call detail.
type StudentSummary struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	StudentNumber string `json:"student_number,omitempty"`
}

// UserSummary is the parent portion of a call detail.
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// SchoolSummary is the school portion of a call detail.
type SchoolSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClassSummary is the class portion of a call detail.
type ClassSummary struct {
	ID        string `json:"id"`
	ClassName string `json:"class_name"`
	SchoolID  string `json:"school_id"`
}

// CallDetail is a call joined with its student, parent, school and class.
// This is the representation classroom clients receive.
type CallDetail struct {
	Call
	Student *StudentSummary `json:"student,omitempty"`
	Parent  *UserSummary    `json:"parent,omitempty"`
	School  *SchoolSummary  `json:"school,omitempty"`
	Class   *ClassSummary   `json:"class_info,omitempty"`
}

// Channel returns the broadcast channel for the call's class.
// The channel is keyed by the class display name; a class without a
// loaded name falls back to an id-based key.
func (d *CallDetail) Channel() string {
	if d.Class != nil && d.Class.ClassName != "" {
		return d.Class.ClassName
	}
	return "class_id_" + d.ClassID
}

// Envelope is the notification frame pushed to classroom sockets.
type Envelope struct {
	Type string      `json:"type"`
	Data *CallDetail `json:"data"`
}

// ListOrder selects the creation-time ordering of list results.
type ListOrder string

const (
	OrderNewestFirst ListOrder = "newest"
	OrderOldestFirst ListOrder = "oldest"
)

// Paging limits applied to every list query
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// CallFilter selects calls for listing. Empty id fields are not filtered on.
type CallFilter struct {
	SchoolID   string
	ClassID    string
	ParentID   string
	StudentID  string
	ActiveOnly bool
	Skip       int
	Limit      int
	Order      ListOrder
}

// Class is the collaborator view of a classroom.
type Class struct {
	ID        string `json:"id"`
	SchoolID  string `json:"school_id"`
	ClassName string `json:"class_name"`
}

// StudentPlacement is the student's current tenant and class assignment.
type StudentPlacement struct {
	StudentID string
	SchoolID  string
	ClassID   string
}

// School is a tenant directory record.
type School struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Student is a student directory record. ClassID may be empty for an
// unassigned student.
type Student struct {
	ID            string `json:"id"`
	SchoolID      string `json:"school_id"`
	ClassID       string `json:"class_id,omitempty"`
	FullName      string `json:"full_name"`
	StudentNumber string `json:"student_number,omitempty"`
}

// User is a parent or staff directory record.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
	SchoolID string `json:"school_id,omitempty"`
}

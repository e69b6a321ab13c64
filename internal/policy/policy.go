// Package policy holds the call lifecycle state machine and the tenant
// authorization rules shared by every call operation.
package policy

import (
	"fmt"
	"strings"

	"callboard/pkg/types"
)

// actorClass groups roles that share a row of the transition table.
type actorClass int

const (
	actorNone actorClass = iota
	actorParent
	actorStaff
	actorSuperAdmin
)

func classOf(role types.Role) actorClass {
	switch role {
	case types.RoleParent:
		return actorParent
	case types.RoleTeacher, types.RoleSchoolAdmin:
		return actorStaff
	case types.RoleSuperAdmin:
		return actorSuperAdmin
	default:
		return actorNone
	}
}

// transitionTable lists the permitted edges per actor class.
// Super admins bypass the table.
var transitionTable = map[actorClass]map[types.CallStatus][]types.CallStatus{
	actorParent: {
		types.StatusPending: {types.StatusCancelledByParent},
	},
	actorStaff: {
		types.StatusPending:      {types.StatusAcknowledged, types.StatusCancelledBySchool},
		types.StatusAcknowledged: {types.StatusCompleted, types.StatusCancelledBySchool},
	},
}

// Policy evaluates authorization and transitions for call operations.
// It is stateless; the zero value is ready to use.
type Policy struct{}

// New returns a Policy.
func New() *Policy {
	return &Policy{}
}

// CanTransition reports whether the role may move a call from one status to another.
// It only consults the table; ownership and tenancy are checked by Authorize.
func (p *Policy) CanTransition(role types.Role, from, to types.CallStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	class := classOf(role)
	if class == actorSuperAdmin {
		return true
	}
	for _, allowed := range transitionTable[class][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses the role may move a call to from the given status.
func (p *Policy) AllowedTargets(role types.Role, from types.CallStatus) []types.CallStatus {
	if classOf(role) == actorSuperAdmin {
		return []types.CallStatus{
			types.StatusPending,
			types.StatusAcknowledged,
			types.StatusCompleted,
			types.StatusCancelledByParent,
			types.StatusCancelledBySchool,
			types.StatusExpired,
		}
	}
	targets := transitionTable[classOf(role)][from]
	out := make([]types.CallStatus, len(targets))
	copy(out, targets)
	return out
}

// CanView reports whether the actor may read the call.
func (p *Policy) CanView(actor types.Identity, call *types.Call) bool {
	return p.authorizeAccess(actor, call) == nil
}

// Authorize checks that the actor may move the call to the requested status.
// Ownership and tenancy are evaluated before the transition table, so a
// foreign actor always gets ErrForbidden regardless of the requested status.
func (p *Policy) Authorize(actor types.Identity, call *types.Call, to types.CallStatus) error {
	if err := p.authorizeAccess(actor, call); err != nil {
		return err
	}
	if !p.CanTransition(actor.Role, call.Status, to) {
		allowed := p.AllowedTargets(actor.Role, call.Status)
		if len(allowed) == 0 {
			return fmt.Errorf("%w: %s cannot move call from %s to %s (call is final for this role)",
				types.ErrInvalidTransition, actor.Role, call.Status, to)
		}
		return fmt.Errorf("%w: %s cannot move call from %s to %s (allowed: %s)",
			types.ErrInvalidTransition, actor.Role, call.Status, to, joinStatuses(allowed))
	}
	return nil
}

// AuthorizeCreate checks that the actor may open a call. The parent-student
// relation itself is a directory lookup done by the caller.
func (p *Policy) AuthorizeCreate(actor types.Identity) error {
	if classOf(actor.Role) != actorParent {
		return fmt.Errorf("%w: only parents can create calls", types.ErrForbidden)
	}
	return nil
}

// AuthorizeClass checks that the actor may read a class's call queue.
func (p *Policy) AuthorizeClass(actor types.Identity, class *types.Class) error {
	switch classOf(actor.Role) {
	case actorSuperAdmin:
		return nil
	case actorStaff:
		if actor.SchoolID != "" && actor.SchoolID == class.SchoolID {
			return nil
		}
	}
	return fmt.Errorf("%w: class %s belongs to another school", types.ErrForbidden, class.ID)
}

// Scope clamps a requested list filter to what the actor may see.
// Parents only see their own calls; staff only see their own school.
func (p *Policy) Scope(actor types.Identity, requested types.CallFilter) (types.CallFilter, error) {
	scoped := requested
	switch classOf(actor.Role) {
	case actorSuperAdmin:
		// unrestricted
	case actorStaff:
		if actor.SchoolID == "" {
			return types.CallFilter{}, fmt.Errorf("%w: staff identity without school", types.ErrForbidden)
		}
		if requested.SchoolID != "" && requested.SchoolID != actor.SchoolID {
			return types.CallFilter{}, fmt.Errorf("%w: cannot list calls of another school", types.ErrForbidden)
		}
		scoped.SchoolID = actor.SchoolID
	case actorParent:
		if requested.ParentID != "" && requested.ParentID != actor.UserID {
			return types.CallFilter{}, fmt.Errorf("%w: cannot list calls of another parent", types.ErrForbidden)
		}
		scoped.ParentID = actor.UserID
	default:
		return types.CallFilter{}, fmt.Errorf("%w: role %q", types.ErrForbidden, actor.Role)
	}
	return scoped.Normalize(), nil
}

func (p *Policy) authorizeAccess(actor types.Identity, call *types.Call) error {
	switch classOf(actor.Role) {
	case actorSuperAdmin:
		return nil
	case actorStaff:
		if actor.SchoolID != "" && actor.SchoolID == call.SchoolID {
			return nil
		}
		return fmt.Errorf("%w: call %s belongs to another school", types.ErrForbidden, call.ID)
	case actorParent:
		if actor.UserID == call.ParentID {
			return nil
		}
		return fmt.Errorf("%w: call %s belongs to another parent", types.ErrForbidden, call.ID)
	default:
		return fmt.Errorf("%w: role %q", types.ErrForbidden, actor.Role)
	}
}

func joinStatuses(statuses []types.CallStatus) string {
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

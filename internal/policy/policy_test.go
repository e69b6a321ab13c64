package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callboard/pkg/types"
)

var allStatuses = []types.CallStatus{
	types.StatusPending,
	types.StatusAcknowledged,
	types.StatusCompleted,
	types.StatusCancelledByParent,
	types.StatusCancelledBySchool,
	types.StatusExpired,
}

func newCall(status types.CallStatus) *types.Call {
	return &types.Call{
		ID:        "call1",
		StudentID: "st1",
		ParentID:  "p1",
		SchoolID:  "s1",
		ClassID:   "c1",
		Status:    status,
	}
}

var (
	parent     = types.Identity{UserID: "p1", Role: types.RoleParent}
	otherPar   = types.Identity{UserID: "p2", Role: types.RoleParent}
	teacher    = types.Identity{UserID: "t1", Role: types.RoleTeacher, SchoolID: "s1"}
	admin      = types.Identity{UserID: "a1", Role: types.RoleSchoolAdmin, SchoolID: "s1"}
	foreignTch = types.Identity{UserID: "t2", Role: types.RoleTeacher, SchoolID: "s2"}
	root       = types.Identity{UserID: "root", Role: types.RoleSuperAdmin}
)

func TestAuthorize_TransitionTable(t *testing.T) {
	p := New()

	tests := []struct {
		name    string
		actor   types.Identity
		from    types.CallStatus
		to      types.CallStatus
		wantErr error
	}{
		{"parent cancels pending", parent, types.StatusPending, types.StatusCancelledByParent, nil},
		{"parent cannot cancel acknowledged", parent, types.StatusAcknowledged, types.StatusCancelledByParent, types.ErrInvalidTransition},
		{"parent cannot acknowledge", parent, types.StatusPending, types.StatusAcknowledged, types.ErrInvalidTransition},
		{"teacher acknowledges", teacher, types.StatusPending, types.StatusAcknowledged, nil},
		{"teacher cancels pending", teacher, types.StatusPending, types.StatusCancelledBySchool, nil},
		{"teacher completes acknowledged", teacher, types.StatusAcknowledged, types.StatusCompleted, nil},
		{"admin cancels acknowledged", admin, types.StatusAcknowledged, types.StatusCancelledBySchool, nil},
		{"teacher cannot skip acknowledgement", teacher, types.StatusPending, types.StatusCompleted, types.ErrInvalidTransition},
		{"teacher cannot reopen completed", teacher, types.StatusCompleted, types.StatusPending, types.ErrInvalidTransition},
		{"teacher cannot cancel for parent", teacher, types.StatusPending, types.StatusCancelledByParent, types.ErrInvalidTransition},
		{"super admin reopens", root, types.StatusCompleted, types.StatusPending, nil},
		{"super admin expires", root, types.StatusPending, types.StatusExpired, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Authorize(tt.actor, newCall(tt.from), tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAuthorize_TerminalStatesAreAbsorbing(t *testing.T) {
	p := New()
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			for _, actor := range []types.Identity{parent, teacher, admin} {
				err := p.Authorize(actor, newCall(from), to)
				assert.ErrorIs(t, err, types.ErrInvalidTransition, "%s %s -> %s", actor.Role, from, to)
			}
		}
	}
}

func TestAuthorize_ForbiddenBeforeTransition(t *testing.T) {
	p := New()

	// A foreign actor gets forbidden even for an edge that would otherwise be invalid.
	for _, to := range allStatuses {
		assert.ErrorIs(t, p.Authorize(otherPar, newCall(types.StatusPending), to), types.ErrForbidden)
		assert.ErrorIs(t, p.Authorize(foreignTch, newCall(types.StatusCompleted), to), types.ErrForbidden)
	}

	unknown := types.Identity{UserID: "x", Role: "janitor"}
	assert.ErrorIs(t, p.Authorize(unknown, newCall(types.StatusPending), types.StatusAcknowledged), types.ErrForbidden)
}

func TestCanTransition_RejectsUnknownStatus(t *testing.T) {
	p := New()
	assert.False(t, p.CanTransition(types.RoleSuperAdmin, "bogus", types.StatusPending))
	assert.False(t, p.CanTransition(types.RoleSuperAdmin, types.StatusPending, "bogus"))
}

func TestAllowedTargets(t *testing.T) {
	p := New()
	assert.ElementsMatch(t,
		[]types.CallStatus{types.StatusAcknowledged, types.StatusCancelledBySchool},
		p.AllowedTargets(types.RoleTeacher, types.StatusPending))
	assert.Empty(t, p.AllowedTargets(types.RoleParent, types.StatusAcknowledged))
	assert.Len(t, p.AllowedTargets(types.RoleSuperAdmin, types.StatusCompleted), len(allStatuses))

	// Callers must not be able to mutate the table through the returned slice.
	targets := p.AllowedTargets(types.RoleParent, types.StatusPending)
	require.Len(t, targets, 1)
	targets[0] = types.StatusCompleted
	assert.Equal(t, []types.CallStatus{types.StatusCancelledByParent}, p.AllowedTargets(types.RoleParent, types.StatusPending))
}

func TestAuthorize_InvalidTransitionNamesAllowedTargets(t *testing.T) {
	p := New()

	err := p.Authorize(teacher, newCall(types.StatusPending), types.StatusCompleted)
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "allowed: acknowledged, cancelled_by_school")

	err = p.Authorize(parent, newCall(types.StatusAcknowledged), types.StatusCancelledByParent)
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "final for this role")
}

func TestCanView(t *testing.T) {
	p := New()
	call := newCall(types.StatusPending)

	assert.True(t, p.CanView(parent, call))
	assert.True(t, p.CanView(teacher, call))
	assert.True(t, p.CanView(root, call))
	assert.False(t, p.CanView(otherPar, call))
	assert.False(t, p.CanView(foreignTch, call))
	assert.False(t, p.CanView(types.Identity{UserID: "t3", Role: types.RoleTeacher}, call))
}

func TestAuthorizeCreate(t *testing.T) {
	p := New()
	assert.NoError(t, p.AuthorizeCreate(parent))
	assert.ErrorIs(t, p.AuthorizeCreate(teacher), types.ErrForbidden)
	assert.ErrorIs(t, p.AuthorizeCreate(root), types.ErrForbidden)
}

func TestAuthorizeClass(t *testing.T) {
	p := New()
	class := &types.Class{ID: "c1", SchoolID: "s1", ClassName: "5A"}

	assert.NoError(t, p.AuthorizeClass(teacher, class))
	assert.NoError(t, p.AuthorizeClass(root, class))
	assert.ErrorIs(t, p.AuthorizeClass(foreignTch, class), types.ErrForbidden)
	assert.ErrorIs(t, p.AuthorizeClass(parent, class), types.ErrForbidden)
}

func TestScope(t *testing.T) {
	p := New()

	t.Run("parent is pinned to own calls", func(t *testing.T) {
		f, err := p.Scope(parent, types.CallFilter{SchoolID: "s9"})
		require.NoError(t, err)
		assert.Equal(t, "p1", f.ParentID)
		assert.Equal(t, types.DefaultListLimit, f.Limit)
	})

	t.Run("parent cannot ask for another parent", func(t *testing.T) {
		_, err := p.Scope(parent, types.CallFilter{ParentID: "p2"})
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("staff is pinned to own school", func(t *testing.T) {
		f, err := p.Scope(teacher, types.CallFilter{ClassID: "c1", ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, "s1", f.SchoolID)
		assert.Equal(t, "c1", f.ClassID)
		assert.True(t, f.ActiveOnly)
	})

	t.Run("staff cannot ask for another school", func(t *testing.T) {
		_, err := p.Scope(teacher, types.CallFilter{SchoolID: "s2"})
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("super admin keeps requested filter", func(t *testing.T) {
		f, err := p.Scope(root, types.CallFilter{SchoolID: "s2", Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, "s2", f.SchoolID)
		assert.Equal(t, types.MaxListLimit, f.Limit)
	})
}

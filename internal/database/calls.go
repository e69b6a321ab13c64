package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"callboard/pkg/types"
)

const callColumns = `c.id, c.student_id, c.parent_user_id, c.school_id, c.class_id, c.status, c.version, c.created_at, c.updated_at`

const callDetailQuery = `
	SELECT ` + callColumns + `,
		st.full_name, st.student_number, u.full_name, sc.name, cl.class_name
	FROM calls c
	JOIN students st ON st.id = c.student_id
	JOIN users u ON u.id = c.parent_user_id
	JOIN schools sc ON sc.id = c.school_id
	JOIN classes cl ON cl.id = c.class_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateCall inserts a pending call for the student, capturing the student's
// current class and school.
func (m *Manager) CreateCall(ctx context.Context, studentID, parentID string) (*types.Call, error) {
	call := &types.Call{
		ID:        uuid.New().String(),
		StudentID: studentID,
		ParentID:  parentID,
		Status:    types.StatusPending,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// FUNCTIONAL DISCOVERY: placement is read inside the write so the frozen
		// class is the one the student had when the call was committed
		var classID sql.NullString
		err = tx.QueryRowContext(ctx,
			m.rebind(`SELECT school_id, class_id FROM students WHERE id = ?`), studentID,
		).Scan(&call.SchoolID, &classID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("student %s: %w", studentID, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve student placement: %w", err)
		}
		if !classID.Valid || classID.String == "" {
			return fmt.Errorf("student %s has no class assignment: %w", studentID, types.ErrNotFound)
		}
		call.ClassID = classID.String

		_, err = tx.ExecContext(ctx, m.rebind(`
			INSERT INTO calls (id, student_id, parent_user_id, school_id, class_id, status, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`),
			call.ID,
			call.StudentID,
			call.ParentID,
			call.SchoolID,
			call.ClassID,
			call.Status,
			call.Version,
			call.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert call: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit call creation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return call, nil
}

// GetCall retrieves a call by ID
func (m *Manager) GetCall(ctx context.Context, callID string) (*types.Call, error) {
	row := m.db.QueryRowContext(ctx,
		m.rebind(`SELECT `+callColumns+` FROM calls c WHERE c.id = ?`), callID)

	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call %s: %w", callID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call: %w", err)
	}
	return call, nil
}

// GetCallDetail retrieves a call joined with its student, parent, school and class.
func (m *Manager) GetCallDetail(ctx context.Context, callID string) (*types.CallDetail, error) {
	row := m.db.QueryRowContext(ctx, m.rebind(callDetailQuery+` WHERE c.id = ?`), callID)

	detail, err := scanCallDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call %s: %w", callID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call detail: %w", err)
	}
	return detail, nil
}

// UpdateCallStatus moves the call to status if its row version still equals
// expectedVersion. The version is bumped on success.
func (m *Manager) UpdateCallStatus(ctx context.Context, callID string, expectedVersion int64, status types.CallStatus) (*types.Call, error) {
	var updated *types.Call

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, m.rebind(`
			UPDATE calls
			SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`), status, time.Now().UTC(), callID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update call: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			var count int
			if err := tx.QueryRowContext(ctx,
				m.rebind(`SELECT COUNT(*) FROM calls WHERE id = ?`), callID,
			).Scan(&count); err != nil {
				return fmt.Errorf("failed to check call existence: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("call %s: %w", callID, types.ErrNotFound)
			}
			return fmt.Errorf("call %s at version %d: %w", callID, expectedVersion, types.ErrVersionConflict)
		}

		updated, err = scanCall(tx.QueryRowContext(ctx,
			m.rebind(`SELECT `+callColumns+` FROM calls c WHERE c.id = ?`), callID))
		if err != nil {
			return fmt.Errorf("failed to reload call: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit call update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListCalls returns call details matching the filter. The filter is
// normalized before use.
func (m *Manager) ListCalls(ctx context.Context, filter types.CallFilter) ([]*types.CallDetail, error) {
	filter = filter.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	if filter.SchoolID != "" {
		conds = append(conds, "c.school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.ClassID != "" {
		conds = append(conds, "c.class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.ParentID != "" {
		conds = append(conds, "c.parent_user_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.StudentID != "" {
		conds = append(conds, "c.student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.ActiveOnly {
		active := types.ActiveStatuses()
		placeholders := make([]string, len(active))
		for i, s := range active {
			placeholders[i] = "?"
			args = append(args, s)
		}
		conds = append(conds, "c.status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := callDetailQuery
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.Order == types.OrderOldestFirst {
		query += " ORDER BY c.created_at ASC, c.id ASC"
	} else {
		query += " ORDER BY c.created_at DESC, c.id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Skip)

	rows, err := m.db.QueryContext(ctx, m.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	details := make([]*types.CallDetail, 0)
	for rows.Next() {
		detail, err := scanCallDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		details = append(details, detail)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call rows: %w", err)
	}
	return details, nil
}

func scanCall(row rowScanner) (*types.Call, error) {
	var call types.Call
	var updatedAt sql.NullTime

	err := row.Scan(
		&call.ID,
		&call.StudentID,
		&call.ParentID,
		&call.SchoolID,
		&call.ClassID,
		&call.Status,
		&call.Version,
		&call.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		call.UpdatedAt = &t
	}
	return &call, nil
}

func scanCallDetail(row rowScanner) (*types.CallDetail, error) {
	var (
		d         types.CallDetail
		updatedAt sql.NullTime
		student   types.StudentSummary
		parent    types.UserSummary
		school    types.SchoolSummary
		class     types.ClassSummary
	)

	err := row.Scan(
		&d.ID,
		&d.StudentID,
		&d.ParentID,
		&d.SchoolID,
		&d.ClassID,
		&d.Status,
		&d.Version,
		&d.CreatedAt,
		&updatedAt,
		&student.FullName,
		&student.StudentNumber,
		&parent.FullName,
		&school.Name,
		&class.ClassName,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		d.UpdatedAt = &t
	}

	student.ID = d.StudentID
	parent.ID = d.ParentID
	school.ID = d.SchoolID
	class.ID = d.ClassID
	class.SchoolID = d.SchoolID

	d.Student = &student
	d.Parent = &parent
	d.School = &school
	d.Class = &class
	return &d, nil
}

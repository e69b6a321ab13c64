package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"callboard/pkg/types"
)

// IsParentOf reports whether the parent is linked to the student.
func (m *Manager) IsParentOf(ctx context.Context, parentID, studentID string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		m.rebind(`SELECT COUNT(*) FROM parent_students WHERE parent_id = ? AND student_id = ?`),
		parentID, studentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query parent relation: %w", err)
	}
	return count > 0, nil
}

// GetStudentPlacement returns the student's current school and class.
// ClassID is empty for an unassigned student.
func (m *Manager) GetStudentPlacement(ctx context.Context, studentID string) (*types.StudentPlacement, error) {
	var (
		p       types.StudentPlacement
		classID sql.NullString
	)
	err := m.db.QueryRowContext(ctx,
		m.rebind(`SELECT id, school_id, class_id FROM students WHERE id = ?`), studentID,
	).Scan(&p.StudentID, &p.SchoolID, &classID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", studentID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	p.ClassID = classID.String
	return &p, nil
}

// GetClass retrieves a class by ID
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.Class, error) {
	var c types.Class
	err := m.db.QueryRowContext(ctx,
		m.rebind(`SELECT id, school_id, class_name FROM classes WHERE id = ?`), classID,
	).Scan(&c.ID, &c.SchoolID, &c.ClassName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("class %s: %w", classID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query class: %w", err)
	}
	return &c, nil
}

// UpsertSchool creates or renames a school.
func (m *Manager) UpsertSchool(ctx context.Context, school types.School) error {
	return m.upsert(ctx, `
		INSERT INTO schools (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`, school.ID, school.Name)
}

// UpsertClass creates or updates a class.
func (m *Manager) UpsertClass(ctx context.Context, class types.Class) error {
	return m.upsert(ctx, `
		INSERT INTO classes (id, school_id, class_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET school_id = excluded.school_id, class_name = excluded.class_name
	`, class.ID, class.SchoolID, class.ClassName)
}

// UpsertStudent creates or updates a student and its class placement.
func (m *Manager) UpsertStudent(ctx context.Context, student types.Student) error {
	return m.upsert(ctx, `
		INSERT INTO students (id, school_id, class_id, full_name, student_number) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			school_id = excluded.school_id,
			class_id = excluded.class_id,
			full_name = excluded.full_name,
			student_number = excluded.student_number
	`, student.ID, student.SchoolID, nullString(student.ClassID), student.FullName, student.StudentNumber)
}

// UpsertUser creates or updates a parent or staff user.
func (m *Manager) UpsertUser(ctx context.Context, user types.User) error {
	return m.upsert(ctx, `
		INSERT INTO users (id, full_name, role, school_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role,
			school_id = excluded.school_id
	`, user.ID, user.FullName, user.Role, nullString(user.SchoolID))
}

// LinkParent records the parent-student relation. Linking twice is a no-op.
func (m *Manager) LinkParent(ctx context.Context, parentID, studentID string) error {
	return m.upsert(ctx, `
		INSERT INTO parent_students (parent_id, student_id) VALUES (?, ?)
		ON CONFLICT (parent_id, student_id) DO NOTHING
	`, parentID, studentID)
}

func (m *Manager) upsert(ctx context.Context, query string, args ...interface{}) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, m.rebind(query), args...); err != nil {
			return fmt.Errorf("failed to write directory record: %w", err)
		}
		return nil
	})
}

package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that a migrated database has the structure the
// call store queries against.
type SchemaValidator struct {
	db     *sql.DB
	driver string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, driver string) *SchemaValidator {
	return &SchemaValidator{db: db, driver: driver}
}

var requiredTables = map[string]string{
	"schools":           "Tenant directory",
	"classes":           "Class directory",
	"students":          "Student placement",
	"users":             "Parents and staff",
	"parent_students":   "Parent-student relation",
	"calls":             "Pickup calls",
	"schema_migrations": "Migration tracking",
}

var requiredIndexes = map[string]string{
	"idx_calls_school_created": "School listing",
	"idx_calls_class_status":   "Class queue reads",
	"idx_calls_parent":         "Parent listing",
	"idx_calls_student":        "Student listing",
}

// callColumns must exist on the calls table
var callColumns = []string{
	"id", "student_id", "parent_user_id", "school_id", "class_id",
	"status", "version", "created_at", "updated_at",
}

// Validate runs every structural check.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateCallColumns()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range requiredTables {
		exists, err := v.exists(v.tableQuery(), table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies that all listing indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range requiredIndexes {
		exists, err := v.exists(v.indexQuery(), index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateCallColumns verifies the calls table carries every column the
// store reads, including the row version.
func (v *SchemaValidator) ValidateCallColumns() error {
	found, err := v.columns("calls")
	if err != nil {
		return fmt.Errorf("failed to read calls columns: %w", err)
	}
	for _, col := range callColumns {
		if !found[col] {
			return fmt.Errorf("calls table structure invalid: column %s not found", col)
		}
	}
	return nil
}

func (v *SchemaValidator) tableQuery() string {
	if v.driver == DriverPostgres {
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	return "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
}

func (v *SchemaValidator) indexQuery() string {
	if v.driver == DriverPostgres {
		return "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1"
	}
	return "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?"
}

func (v *SchemaValidator) exists(query, name string) (bool, error) {
	var count int
	if err := v.db.QueryRow(query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) columns(table string) (map[string]bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if v.driver == DriverPostgres {
		rows, err = v.db.Query(
			"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1",
			table)
	} else {
		rows, err = v.db.Query("SELECT name FROM pragma_table_info(?)", table)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	return found, rows.Err()
}

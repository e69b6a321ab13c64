package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Driver != DriverSQLite {
		t.Errorf("Expected driver %s, got %s", DriverSQLite, config.Driver)
	}
	if config.DatabasePath != "./data/callboard.db" {
		t.Errorf("Expected DatabasePath './data/callboard.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout 30s, got %v", config.WriteTimeout)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "empty database path", modify: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "postgres needs dsn", modify: func(c *Config) { c.Driver = DriverPostgres }, wantErr: true},
		{name: "postgres with dsn", modify: func(c *Config) {
			c.Driver = DriverPostgres
			c.DSN = "postgres://localhost/callboard?sslmode=disable"
		}},
		{name: "unknown driver", modify: func(c *Config) { c.Driver = "mysql" }, wantErr: true},
		{name: "zero max connections", modify: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "zero lifetime", modify: func(c *Config) { c.ConnMaxLifetime = 0 }, wantErr: true},
		{name: "zero idle time", modify: func(c *Config) { c.ConnMaxIdleTime = 0 }, wantErr: true},
		{name: "zero write timeout", modify: func(c *Config) { c.WriteTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DataSourceName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabasePath = "/tmp/x.db"
	if dsn := cfg.DataSourceName(); dsn[:len("/tmp/x.db?")] != "/tmp/x.db?" {
		t.Errorf("sqlite dsn should start with the path, got %s", dsn)
	}

	cfg.Driver = DriverPostgres
	cfg.DSN = "postgres://u@h/db"
	if dsn := cfg.DataSourceName(); dsn != "postgres://u@h/db" {
		t.Errorf("postgres dsn = %s", dsn)
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	mm := NewMigrationManager(db, DriverSQLite)

	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	// Second run is a no-op
	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations should be idempotent: %v", err)
	}

	version, dirty, err := mm.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Expected clean version 2, got %d (dirty=%v)", version, dirty)
	}
}

func TestMigrationManager_SharedPoolStaysOpen(t *testing.T) {
	db := openTestDB(t)
	mm := NewMigrationManager(db, DriverSQLite)

	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if _, _, err := mm.Version(); err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("database should remain open after migrations: %v", err)
	}
}

// Set CALLBOARD_TEST_POSTGRES_DSN to run against a live server.
func TestMigrationManager_PostgresReleasesConnection(t *testing.T) {
	dsn := os.Getenv("CALLBOARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALLBOARD_TEST_POSTGRES_DSN not set")
	}

	cfg := DefaultConfig()
	cfg.Driver = DriverPostgres
	cfg.DSN = dsn
	cfg.MaxConnections = 1

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	mm := NewMigrationManager(db, DriverPostgres)
	for i := 0; i < 2; i++ {
		if err := mm.ApplyMigrations(); err != nil {
			t.Fatalf("ApplyMigrations run %d failed: %v", i+1, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, _, err := mm.Version(); err != nil {
			t.Fatalf("Version call %d failed: %v", i+1, err)
		}
	}

	// With a single pooled connection this only succeeds if every
	// migrator handed its connection back.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calls").Scan(&n); err != nil {
		t.Fatalf("query after migrations failed: %v", err)
	}
}

func TestMigrationManager_UnsupportedDriver(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, "mysql").ApplyMigrations(); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSchemaValidator_Validate(t *testing.T) {
	db := openTestDB(t)

	validator := NewSchemaValidator(db, DriverSQLite)
	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("validation should fail before migrations")
	}

	if err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if err := validator.Validate(); err != nil {
		t.Errorf("Validate failed after migrations: %v", err)
	}
}

func TestSchema_CallConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	seed := []string{
		`INSERT INTO schools (id, name) VALUES ('s1', 'School')`,
		`INSERT INTO classes (id, school_id, class_name) VALUES ('c1', 's1', '5A')`,
		`INSERT INTO students (id, school_id, class_id, full_name) VALUES ('st1', 's1', 'c1', 'Ada')`,
		`INSERT INTO users (id, full_name, role) VALUES ('p1', 'Parent', 'parent')`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q failed: %v", stmt, err)
		}
	}

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO calls (id, student_id, parent_user_id, school_id, class_id, created_at)
		VALUES ('call1', 'st1', 'p1', 's1', 'c1', ?)`, now)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	var status string
	var version int64
	if err := db.QueryRow(`SELECT status, version FROM calls WHERE id = 'call1'`).Scan(&status, &version); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if status != "pending" || version != 1 {
		t.Errorf("defaults: status=%s version=%d", status, version)
	}

	_, err = db.Exec(`INSERT INTO calls (id, student_id, parent_user_id, school_id, class_id, status, created_at)
		VALUES ('call2', 'st1', 'p1', 's1', 'c1', 'bogus', ?)`, now)
	if err == nil {
		t.Error("status check constraint not enforced")
	}

	_, err = db.Exec(`INSERT INTO calls (id, student_id, parent_user_id, school_id, class_id, created_at)
		VALUES ('call3', 'missing', 'p1', 's1', 'c1', ?)`, now)
	if err == nil {
		t.Error("foreign key constraint not enforced: calls.student_id")
	}

	_, err = db.Exec(`INSERT INTO users (id, full_name, role) VALUES ('x', 'X', 'janitor')`)
	if err == nil {
		t.Error("role check constraint not enforced")
	}
}

func TestDatabase_SQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign keys enabled, got %d", foreignKeys)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callboard/internal/auth"
	"callboard/internal/config"
	"callboard/pkg/types"
)

func TestRun_SeedsAndPrintsTokens(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{
		"schools": [{"id": "s1", "name": "One"}],
		"classes": [{"id": "c1", "school_id": "s1", "class_name": "5A"}],
		"students": [{"id": "st1", "school_id": "s1", "class_id": "c1", "full_name": "Ada"}],
		"users": [
			{"id": "p1", "full_name": "Parent", "role": "parent"},
			{"id": "t1", "full_name": "Teacher", "role": "teacher", "school_id": "s1"}
		],
		"parents": [{"parent_id": "p1", "student_id": "st1"}]
	}`), 0o600))

	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("CALLBOARD_DATABASE_PATH", filepath.Join(dir, "seed.db"))
	t.Setenv("CALLBOARD_AUTH_JWT_SECRET", "seed-secret")
	t.Setenv("CALLBOARD_WEBSOCKET_CLASSROOM_TOKEN", "display")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-fixture", fixture, "-ttl", "1h"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 2)
	assert.Equal(t, "p1", fields[0])

	resolver, err := auth.NewResolver("seed-secret")
	require.NoError(t, err)
	identity, err := resolver.Resolve(fields[1])
	require.NoError(t, err)
	assert.Equal(t, types.RoleParent, identity.Role)
}

func TestRun_RequiresFixture(t *testing.T) {
	assert.Error(t, run(nil, &bytes.Buffer{}))
}

// Package seed loads directory fixtures (schools, classes, students, users
// and parent links) into the store.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"callboard/pkg/types"
)

// Writer is the subset of the store that seeding needs.
type Writer interface {
	UpsertSchool(ctx context.Context, school types.School) error
	UpsertClass(ctx context.Context, class types.Class) error
	UpsertStudent(ctx context.Context, student types.Student) error
	UpsertUser(ctx context.Context, user types.User) error
	LinkParent(ctx context.Context, parentID, studentID string) error
}

// TokenIssuer signs bearer tokens for seeded users.
type TokenIssuer interface {
	Issue(identity types.Identity, ttl time.Duration) (string, error)
}

// ParentLink relates a parent user to one student.
type ParentLink struct {
	ParentID  string `json:"parent_id"`
	StudentID string `json:"student_id"`
}

// Fixture is the JSON document accepted by callboard-seed.
type Fixture struct {
	Schools  []types.School  `json:"schools"`
	Classes  []types.Class   `json:"classes"`
	Students []types.Student `json:"students"`
	Users    []types.User    `json:"users"`
	Parents  []ParentLink    `json:"parents"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Schools  int
	Classes  int
	Students int
	Users    int
	Links    int
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if err := fixture.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", path, err)
	}
	return &fixture, nil
}

// Validate checks ids, roles and that every reference resolves inside the fixture.
func (f *Fixture) Validate() error {
	schools := make(map[string]bool, len(f.Schools))
	for _, s := range f.Schools {
		if !types.IsValidID(s.ID) {
			return fmt.Errorf("school %q: %w", s.ID, types.ErrInvalidID)
		}
		schools[s.ID] = true
	}

	classes := make(map[string]string, len(f.Classes))
	for _, c := range f.Classes {
		if !types.IsValidID(c.ID) {
			return fmt.Errorf("class %q: %w", c.ID, types.ErrInvalidID)
		}
		if !schools[c.SchoolID] {
			return fmt.Errorf("class %s references unknown school %q", c.ID, c.SchoolID)
		}
		if c.ClassName == "" {
			return fmt.Errorf("class %s has no name", c.ID)
		}
		classes[c.ID] = c.SchoolID
	}

	students := make(map[string]bool, len(f.Students))
	for _, s := range f.Students {
		if !types.IsValidID(s.ID) {
			return fmt.Errorf("student %q: %w", s.ID, types.ErrInvalidID)
		}
		if !schools[s.SchoolID] {
			return fmt.Errorf("student %s references unknown school %q", s.ID, s.SchoolID)
		}
		if s.ClassID != "" && classes[s.ClassID] != s.SchoolID {
			return fmt.Errorf("student %s references class %q outside its school", s.ID, s.ClassID)
		}
		students[s.ID] = true
	}

	parents := make(map[string]bool)
	for _, u := range f.Users {
		identity := types.Identity{UserID: u.ID, Role: u.Role, SchoolID: u.SchoolID}
		if err := identity.Validate(); err != nil {
			return fmt.Errorf("user %q: %w", u.ID, err)
		}
		if u.SchoolID != "" && !schools[u.SchoolID] {
			return fmt.Errorf("user %s references unknown school %q", u.ID, u.SchoolID)
		}
		if u.Role == types.RoleParent {
			parents[u.ID] = true
		}
	}

	for _, l := range f.Parents {
		if !parents[l.ParentID] {
			return fmt.Errorf("link references unknown parent %q", l.ParentID)
		}
		if !students[l.StudentID] {
			return fmt.Errorf("link references unknown student %q", l.StudentID)
		}
	}
	return nil
}

// Apply writes the fixture in dependency order. Every write is an upsert, so
// applying the same fixture twice is harmless.
func Apply(ctx context.Context, w Writer, f *Fixture, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sum Summary

	for _, s := range f.Schools {
		if err := w.UpsertSchool(ctx, s); err != nil {
			return sum, fmt.Errorf("school %s: %w", s.ID, err)
		}
		sum.Schools++
	}
	for _, c := range f.Classes {
		if err := w.UpsertClass(ctx, c); err != nil {
			return sum, fmt.Errorf("class %s: %w", c.ID, err)
		}
		sum.Classes++
	}
	for _, s := range f.Students {
		if err := w.UpsertStudent(ctx, s); err != nil {
			return sum, fmt.Errorf("student %s: %w", s.ID, err)
		}
		sum.Students++
	}
	for _, u := range f.Users {
		if err := w.UpsertUser(ctx, u); err != nil {
			return sum, fmt.Errorf("user %s: %w", u.ID, err)
		}
		sum.Users++
	}
	for _, l := range f.Parents {
		if err := w.LinkParent(ctx, l.ParentID, l.StudentID); err != nil {
			return sum, fmt.Errorf("link %s->%s: %w", l.ParentID, l.StudentID, err)
		}
		sum.Links++
	}

	logger.Info("directory seeded",
		zap.Int("schools", sum.Schools),
		zap.Int("classes", sum.Classes),
		zap.Int("students", sum.Students),
		zap.Int("users", sum.Users),
		zap.Int("links", sum.Links),
	)
	return sum, nil
}

// Tokens issues one bearer token per fixture user, keyed by user id.
func Tokens(issuer TokenIssuer, f *Fixture, ttl time.Duration) (map[string]string, error) {
	tokens := make(map[string]string, len(f.Users))
	for _, u := range f.Users {
		token, err := issuer.Issue(types.Identity{UserID: u.ID, Role: u.Role, SchoolID: u.SchoolID}, ttl)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		tokens[u.ID] = token
	}
	return tokens, nil
}

// SortedUserIDs returns the token map keys in stable order for printing.
func SortedUserIDs(tokens map[string]string) []string {
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

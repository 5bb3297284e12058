package projects

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/internal/storage/sqlite"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	project := &models.Project{ID: "proj-1", OrganizationID: "org-1", ManagerID: "manager-1", CreatedAt: time.Now()}
	if err := db.InsertProject(project); err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	if err := db.AddOrgMember("org-1", "member-1"); err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}

	return NewGate(db)
}

func TestCanAccessProject(t *testing.T) {
	gate := newTestGate(t)

	if err := gate.CanAccessProject("proj-1", "manager-1"); err != nil {
		t.Errorf("manager access denied: %v", err)
	}
	if err := gate.CanAccessProject("proj-1", "member-1"); err != nil {
		t.Errorf("org member access denied: %v", err)
	}
	if err := gate.CanAccessProject("proj-1", "stranger"); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger error = %v, want ErrForbidden", err)
	}
	if err := gate.CanAccessProject("missing", "manager-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project error = %v, want ErrNotFound", err)
	}
}

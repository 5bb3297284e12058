package projects

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/storage/sqlite"
	"github.com/instabids/smartscope/pkg/logger"
)

var (
	// ErrNotFound indicates the project does not exist.
	ErrNotFound = errors.New("project not found")
	// ErrForbidden indicates the requester may not touch the project.
	ErrForbidden = errors.New("access to project denied")
)

// Gate answers project access questions for the analysis pipeline. A user may
// access a project when they manage it or belong to its organization.
type Gate struct {
	db *sqlite.Client
}

func NewGate(db *sqlite.Client) *Gate {
	return &Gate{db: db}
}

func (g *Gate) CanAccessProject(projectID, userID string) error {
	project, err := g.db.GetProject(projectID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load project for access check: %w", err)
	}

	if project.ManagerID == userID {
		return nil
	}

	member, err := g.db.IsOrgMember(project.OrganizationID, userID)
	if err != nil {
		return fmt.Errorf("failed to check org membership: %w", err)
	}
	if member {
		return nil
	}

	logger.Warn("Project access denied",
		zap.String("project_id", projectID),
		zap.String("user_id", userID),
	)

	return ErrForbidden
}

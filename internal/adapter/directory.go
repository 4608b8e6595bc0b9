package adapter

import (
	"context"
	"fmt"

	"jml/internal/directory"
	"jml/internal/domain"
)

// DirectoryAdapter terminates the identity-provider account: sessions
// cleared, account deactivated, group memberships removed.
type DirectoryAdapter struct {
	Phase     string
	Directory directory.Service
}

// NewDirectoryAdapter binds the identity phase to a directory service.
func NewDirectoryAdapter(phase string, dir directory.Service) *DirectoryAdapter {
	return &DirectoryAdapter{Phase: phase, Directory: dir}
}

func (a *DirectoryAdapter) Name() string { return a.Phase }

func (a *DirectoryAdapter) TestConnectivity(ctx context.Context) error {
	if a.Directory == nil {
		return fmt.Errorf("directory not configured")
	}
	_, err := a.Directory.SearchByDisplayName(ctx, "")
	return err
}

func (a *DirectoryAdapter) Execute(ctx context.Context, id domain.Identity) (string, error) {
	if err := a.Directory.ClearSessions(ctx, id.Email); err != nil {
		return "", fmt.Errorf("clear sessions: %w", err)
	}
	if err := a.Directory.DeactivateUser(ctx, id.Email); err != nil {
		return "", fmt.Errorf("deactivate: %w", err)
	}
	removed, err := a.Directory.RemoveFromGroups(ctx, id.Email)
	if err != nil {
		return "", fmt.Errorf("remove groups: %w", err)
	}
	return fmt.Sprintf("sessions cleared, account deactivated, removed from %d groups", removed), nil
}

func (a *DirectoryAdapter) Plan(id domain.Identity) string {
	return fmt.Sprintf("clear sessions, deactivate account, and strip groups for %s", id.Email)
}

// GroupGated wraps an adapter whose phase only applies when the user
// belongs to a directory group.
type GroupGated struct {
	Adapter
	Group     string
	Directory directory.Service
}

// Gate wraps a when group is non-empty, otherwise returns a unchanged.
func Gate(a Adapter, group string, dir directory.Service) Adapter {
	if group == "" {
		return a
	}
	return &GroupGated{Adapter: a, Group: group, Directory: dir}
}

func (g *GroupGated) IsApplicable(ctx context.Context, id domain.Identity) (bool, error) {
	return g.Directory.IsMemberOfGroup(ctx, id.Email, g.Group)
}

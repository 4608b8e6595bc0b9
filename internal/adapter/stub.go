package adapter

import (
	"context"
	"fmt"

	"jml/internal/domain"
)

// Stub stands in for a service that has no automation wired yet. It
// succeeds with a message flagging the manual follow-up, so the run
// record shows what still needs a human.
type Stub struct {
	Phase string
}

// NewStub builds a stub for a phase name.
func NewStub(phase string) *Stub { return &Stub{Phase: phase} }

func (s *Stub) Name() string { return s.Phase }

func (s *Stub) TestConnectivity(ctx context.Context) error { return nil }

func (s *Stub) Execute(ctx context.Context, id domain.Identity) (string, error) {
	return fmt.Sprintf("no automation for %s; manual removal of %s required", s.Phase, id.Email), nil
}

func (s *Stub) Plan(id domain.Identity) string {
	return fmt.Sprintf("flag %s for manual removal of %s", s.Phase, id.Email)
}

// Package adaptertest provides configurable fake adapters for tests.
package adaptertest

import (
	"context"
	"sync"

	"jml/internal/domain"
)

// Fake is a scriptable adapter that records every call.
type Fake struct {
	Phase string

	ExecuteErr      error
	ExecuteMsg      string
	ExecutePanic    any
	ExecuteBlocks   bool
	ConnectivityErr error

	Applicable    bool
	ApplicableErr error
	Conditional   bool

	TransferMsg string
	TransferErr error
	Transfers   bool

	mu             sync.Mutex
	ExecuteCalls   []domain.Identity
	TransferCalls  []domain.Identity
	CheckCalls     int
	ConnectivityOK int
}

// New builds an unconditional fake that succeeds.
func New(phase string) *Fake {
	return &Fake{Phase: phase, ExecuteMsg: phase + " done", Applicable: true}
}

func (f *Fake) Name() string { return f.Phase }

func (f *Fake) TestConnectivity(ctx context.Context) error {
	f.mu.Lock()
	f.ConnectivityOK++
	f.mu.Unlock()
	return f.ConnectivityErr
}

func (f *Fake) Execute(ctx context.Context, id domain.Identity) (string, error) {
	f.mu.Lock()
	f.ExecuteCalls = append(f.ExecuteCalls, id)
	f.mu.Unlock()
	if f.ExecutePanic != nil {
		panic(f.ExecutePanic)
	}
	if f.ExecuteBlocks {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.ExecuteMsg, f.ExecuteErr
}

func (f *Fake) Executed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ExecuteCalls)
}

// Conditional fakes expose the applicability check.

type ConditionalFake struct{ *Fake }

// AsConditional upgrades f so the engine sees an applicability check.
func AsConditional(f *Fake) *ConditionalFake {
	f.Conditional = true
	return &ConditionalFake{Fake: f}
}

func (f *ConditionalFake) IsApplicable(ctx context.Context, id domain.Identity) (bool, error) {
	f.mu.Lock()
	f.CheckCalls++
	f.mu.Unlock()
	return f.Applicable, f.ApplicableErr
}

// TransferFake upgrades a fake with manager data hand-off.

type TransferFake struct{ *Fake }

// AsTransferrer upgrades f so the engine runs a transfer first.
func AsTransferrer(f *Fake) *TransferFake {
	f.Transfers = true
	return &TransferFake{Fake: f}
}

func (f *TransferFake) TransferData(ctx context.Context, id domain.Identity) (string, error) {
	f.mu.Lock()
	f.TransferCalls = append(f.TransferCalls, id)
	f.mu.Unlock()
	if f.TransferErr != nil {
		return "", f.TransferErr
	}
	if f.TransferMsg != "" {
		return f.TransferMsg, nil
	}
	return "data transferred to " + id.ManagerEmail, nil
}

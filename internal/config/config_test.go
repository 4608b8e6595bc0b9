package config

import (
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default("example.com")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Org.Domain != "example.com" {
		t.Fatalf("expected org domain example.com, got %s", cfg.Org.Domain)
	}
	if got := cfg.Run.PacingDelay.Std(); got != 3*time.Second {
		t.Fatalf("expected pacing delay 3s, got %s", got)
	}
	if got := cfg.Run.PhaseTimeout.Std(); got != 2*time.Minute {
		t.Fatalf("expected phase timeout 2m, got %s", got)
	}
}

func TestPhaseOrderSorted(t *testing.T) {
	cfg := Default("example.com")
	order := cfg.PhaseOrder()
	want := []string{
		"device-lock", "identity", "messaging", "workspace", "conferencing",
		"analytics", "diagramming", "creative", "door-access", "integration",
	}
	if len(order) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestDeviceLockBeforeIdentity(t *testing.T) {
	cfg := Default("example.com")
	order := cfg.PhaseOrder()
	lock, idp := -1, -1
	for i, name := range order {
		switch name {
		case "device-lock":
			lock = i
		case "identity":
			idp = i
		}
	}
	if lock < 0 || idp < 0 || lock >= idp {
		t.Fatalf("device-lock (%d) must precede identity (%d)", lock, idp)
	}
}

func TestFromYAMLRejectsDuplicates(t *testing.T) {
	cases := []struct {
		name string
		yml  string
	}{
		{"duplicate name", `
org: {domain: example.com}
run: {confirmation_phrase: TERMINATE}
phases:
  - {name: identity, order: 1}
  - {name: identity, order: 2}
`},
		{"duplicate order", `
org: {domain: example.com}
run: {confirmation_phrase: TERMINATE}
phases:
  - {name: identity, order: 1}
  - {name: messaging, order: 1}
`},
		{"missing phrase", `
org: {domain: example.com}
phases:
  - {name: identity, order: 1}
`},
		{"missing domain", `
run: {confirmation_phrase: TERMINATE}
phases:
  - {name: identity, order: 1}
`},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yml)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConditionalPhases(t *testing.T) {
	cfg := Default("example.com")
	spec, ok := cfg.PhaseSpec("analytics")
	if !ok {
		t.Fatalf("analytics phase missing")
	}
	if !spec.Conditional() {
		t.Fatalf("analytics should be group-gated")
	}
	spec, ok = cfg.PhaseSpec("identity")
	if !ok || spec.Conditional() {
		t.Fatalf("identity should be unconditional")
	}
	spec, _ = cfg.PhaseSpec("workspace")
	if !spec.TransfersData {
		t.Fatalf("workspace should transfer data")
	}
}

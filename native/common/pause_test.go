package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	view := pauseMap{"sale": true}

	if err := Guard(view, "sale"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(view, "other"); err != nil {
		t.Fatalf("unpaused module must pass: %v", err)
	}
	if err := Guard(nil, "sale"); err != nil {
		t.Fatalf("nil view must pass: %v", err)
	}
	if err := Guard(view, ""); err != nil {
		t.Fatalf("empty module must pass: %v", err)
	}
}

package id_test

import (
	"testing"

	"github.com/mathspractice/adaptive/internal/id"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v := id.New()
		if !id.Valid(v) {
			t.Fatalf("expected valid uuid, got %q", v)
		}
		if seen[v] {
			t.Fatalf("duplicate id %q", v)
		}
		seen[v] = true
	}
}

func TestValid_Rejects(t *testing.T) {
	if id.Valid("abc") {
		t.Error("expected short string to be rejected")
	}
}

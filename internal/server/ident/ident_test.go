package ident

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Run("generates correct length", func(t *testing.T) {
		for _, length := range []int{7, 24, 32, 48} {
			id, err := Generate(length)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(id) != length {
				t.Errorf("expected length %d, got %d", length, len(id))
			}
		}
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		for _, length := range []int{0, -1} {
			if _, err := Generate(length); err == nil {
				t.Errorf("expected error for length %d", length)
			}
		}
	})

	t.Run("only contains alphabet characters", func(t *testing.T) {
		id, err := Generate(200)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, c := range id {
			if !strings.ContainsRune(Alphabet, c) {
				t.Errorf("identifier contains invalid character: %c", c)
			}
		}
	})

	t.Run("generates unique identifiers", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id, err := Generate(32)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[id] {
				t.Fatalf("duplicate identifier generated: %s", id)
			}
			seen[id] = true
		}
	})
}

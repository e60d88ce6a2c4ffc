package database

import "testing"

// The tags columns are TEXT[] NOT NULL; pgx encodes a nil slice as SQL NULL,
// so every value bound to them must pass through normalizeTags first.
func TestNormalizeTags(t *testing.T) {
	t.Run("nil becomes an empty set", func(t *testing.T) {
		got := normalizeTags(nil)
		if got == nil {
			t.Fatal("expected a non-nil slice")
		}
		if len(got) != 0 {
			t.Errorf("expected empty slice, got %v", got)
		}
	})

	t.Run("non-nil passes through", func(t *testing.T) {
		in := []string{"work", "screenshots"}
		got := normalizeTags(in)
		if len(got) != 2 || got[0] != "work" || got[1] != "screenshots" {
			t.Errorf("expected %v unchanged, got %v", in, got)
		}
	})

	t.Run("empty passes through", func(t *testing.T) {
		got := normalizeTags([]string{})
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty slice, got %v", got)
		}
	})
}

package badger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetPut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, "a", []byte("[1]")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "[1]" {
		t.Fatalf("value: got %q", got)
	}
}

func TestStore_KeysInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"zeta", "alpha", "mid"} {
		if err := s.Put(ctx, k, []byte("[]")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := s.Put(ctx, "zeta", []byte("[0]")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if want := []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys: got %v, want %v", got, want)
	}

	if err := s.Delete(ctx, "zeta", "nope"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if want := []string{"alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys after delete: got %v, want %v", got, want)
	}
	if _, err := s.Get(ctx, "zeta"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted key still readable: %v", err)
	}
}

//go:build !integration

package postgres

import (
	"testing"

	"bookmarks-billing/internal/domain"
)

func TestHashToInt64(t *testing.T) {
	a := hashToInt64("stripe:pi_1")
	if a != hashToInt64("stripe:pi_1") {
		t.Fatal("hash must be stable")
	}
	if a < 0 {
		t.Fatalf("hash must be non-negative, got %d", a)
	}
	if a == hashToInt64("stripe:pi_2") {
		t.Fatal("distinct keys collided")
	}
}

func TestGetExecutor(t *testing.T) {
	if _, err := getExecutor(nil, nil); err != domain.ErrInvalidArgument {
		t.Fatalf("nil pool and tx: got %v", err)
	}
	if _, err := getExecutor(nil, "not a tx"); err != domain.ErrInvalidExecContext {
		t.Fatalf("foreign tx: got %v", err)
	}
}

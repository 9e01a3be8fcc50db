package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/reportdesk/backend/internal/testutil"
)

func TestRedeemOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := NewSerialRegistry(db)
	ctx := context.Background()

	serials, err := reg.IssueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("IssueBatch: %v", err)
	}
	code := serials[0].Serial

	if err := reg.Redeem(ctx, code); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if err := reg.Redeem(ctx, code); !errors.Is(err, ErrInvalidSerial) {
		t.Fatalf("second redeem: expected ErrInvalidSerial, got %v", err)
	}
}

func TestRedeemConcurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := NewSerialRegistry(db)
	ctx := context.Background()

	serials, _ := reg.IssueBatch(ctx, 1)
	code := serials[0].Serial

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.Redeem(ctx, code) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", wins)
	}
}

func TestRedeemInvalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := NewSerialRegistry(db)

	for _, code := range []string{"", "   ", "not-a-serial"} {
		if err := reg.Redeem(context.Background(), code); !errors.Is(err, ErrInvalidSerial) {
			t.Fatalf("Redeem(%q): expected ErrInvalidSerial, got %v", code, err)
		}
	}
}

func TestIssueBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := NewSerialRegistry(db)
	ctx := context.Background()

	serials, err := reg.IssueBatch(ctx, 5)
	if err != nil {
		t.Fatalf("IssueBatch: %v", err)
	}
	seen := map[string]bool{}
	for _, s := range serials {
		parsed, err := uuid.Parse(s.Serial)
		if err != nil || parsed.Version() != 4 {
			t.Fatalf("expected UUIDv4, got %q", s.Serial)
		}
		if s.CreatedAt.IsZero() {
			t.Fatalf("expected creation timestamp on %s", s.Serial)
		}
		seen[s.Serial] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct serials, got %d", len(seen))
	}

	listed, err := reg.List(ctx)
	if err != nil || len(listed) != 5 {
		t.Fatalf("expected 5 listed serials, got %d (%v)", len(listed), err)
	}

	for _, n := range []int{0, -1, MaxSerialBatch + 1} {
		if _, err := reg.IssueBatch(ctx, n); !errors.Is(err, ErrInvalidCount) {
			t.Fatalf("IssueBatch(%d): expected ErrInvalidCount, got %v", n, err)
		}
	}
}

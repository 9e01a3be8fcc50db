package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/reportdesk/backend/internal/testutil"
)

func TestCreateRejectsDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()

	if _, err := store.Create(ctx, "alice", "alice@example.com", "hash", false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name     string
		username string
		email    string
		want     error
	}{
		{"same username", "alice", "other@example.com", ErrDuplicateUsername},
		{"same email", "bob", "alice@example.com", ErrDuplicateEmail},
		{"both taken", "alice", "alice@example.com", ErrDuplicateUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.username, tt.email, "hash", false); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	var count int64
	db.Table("users").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one user, found %d", count)
	}
}

func TestAppendReportKeepsOrderWithoutDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, db, "alice", false)

	for _, id := range []string{"r1", "r2", "r1", "r3"} {
		if _, err := store.AppendReport(ctx, user.ID, id); err != nil {
			t.Fatalf("AppendReport(%s): %v", id, err)
		}
	}

	added, err := store.AppendReport(ctx, user.ID, "r2")
	if err != nil || added {
		t.Fatalf("expected duplicate append to be a no-op, got added=%v err=%v", added, err)
	}
	if _, err := store.AppendReport(ctx, user.ID, ""); !errors.Is(err, ErrMissingReportID) {
		t.Fatalf("expected ErrMissingReportID, got %v", err)
	}

	ids, err := store.ReportIDs(ctx, user.ID)
	if err != nil {
		t.Fatalf("ReportIDs: %v", err)
	}
	if want := []string{"r1", "r2", "r3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}

	loaded, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if got := loaded.ReportIDList(); got != "r1;r2;r3" {
		t.Fatalf("expected r1;r2;r3, got %q", got)
	}
}

func TestRemoveReport(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()
	alice := testutil.CreateTestUser(t, db, "alice", false)
	bob := testutil.CreateTestUser(t, db, "bob", false)

	store.AppendReport(ctx, alice.ID, "r1")
	store.AppendReport(ctx, bob.ID, "r1")

	removed, err := store.RemoveReport(ctx, alice.ID, "r1")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	if removed, _ := store.RemoveReport(ctx, alice.ID, "r1"); removed {
		t.Fatal("second removal must report nothing removed")
	}

	ids, _ := store.ReportIDs(ctx, bob.ID)
	if len(ids) != 1 {
		t.Fatalf("other users' lists must be untouched, got %v", ids)
	}
}

func TestSetAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()
	testutil.CreateTestUser(t, db, "alice", false)

	user, err := store.SetAdmin(ctx, "alice", true)
	if err != nil || !user.IsAdmin {
		t.Fatalf("expected admin, got %+v (%v)", user, err)
	}
	user, err = store.SetAdmin(ctx, "alice", false)
	if err != nil || user.IsAdmin {
		t.Fatalf("expected admin revoked, got %+v (%v)", user, err)
	}
	if _, err := store.SetAdmin(ctx, "nobody", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFindUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()
	testutil.CreateTestUser(t, db, "alice", false)

	if u, err := store.FindByEmail(ctx, "alice@example.com"); err != nil || u.Username != "alice" {
		t.Fatalf("FindByEmail: %+v %v", u, err)
	}
	if _, err := store.FindByUsername(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	u, _ := store.FindByUsername(ctx, "alice")
	if err := store.TouchLastLogin(ctx, u.ID); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	if err := store.SetTwoFactor(ctx, u.ID, "SECRET", true); err != nil {
		t.Fatalf("SetTwoFactor: %v", err)
	}
	u, _ = store.FindByUsername(ctx, "alice")
	if u.LastLogin == nil || !u.TwoFactorEnabled || u.TwoFactorSecret != "SECRET" {
		t.Fatalf("expected login time and 2FA recorded, got %+v", u)
	}
}

package keys

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	st, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gwCfg := config.GatewayConfig{SuperAdminRole: "Super Admin"}
	return NewService(testKeysConfig(), gwCfg, st, logger), st
}

func TestServiceCreateAndVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, raw, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key.ID == "" {
		t.Error("created key has no id")
	}
	if !key.IsActive {
		t.Error("created key is not active")
	}
	if key.Digest == "" {
		t.Error("created key has no digest")
	}
	if key.Digest == raw {
		t.Error("stored digest equals the raw key")
	}

	if got := svc.Verify(ctx, raw); !got.Verified {
		t.Error("Verify rejected a freshly issued key")
	}
}

func TestServiceVerifyFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, raw, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Flip one hex character of the secret without touching the owner tail.
	pos := len("fhs_test_")
	flipped := byte('0')
	if raw[pos] == '0' {
		flipped = '1'
	}
	tampered := raw[:pos] + string(flipped) + raw[pos+1:]

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"garbage", "anything"},
		{"wrong env", "fhs_live_deadbeef"},
		{"unknown owner", raw + "x"}, // owner hint no longer matches a record
		{"tampered secret", tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.Verify(ctx, tt.key); got.Verified {
				t.Errorf("Verify(%q) = verified, want rejected", tt.key)
			}
		})
	}
}

func TestServiceVerifyInactiveKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := Caller{ID: "owner-1"}

	key, raw, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.SetActive(ctx, owner, key.ID, false); err != nil {
		t.Fatalf("SetActive(false): %v", err)
	}
	if got := svc.Verify(ctx, raw); got.Verified {
		t.Error("Verify accepted a deactivated key")
	}

	if _, err := svc.SetActive(ctx, owner, key.ID, true); err != nil {
		t.Fatalf("SetActive(true): %v", err)
	}
	if got := svc.Verify(ctx, raw); !got.Verified {
		t.Error("Verify rejected a reactivated key")
	}
}

func TestServiceVerifyExpiredKey(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	raw, err := svc.codec.Generate("owner-exp")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	expired := &model.APIKey{
		OwnerID:   "owner-exp",
		Digest:    svc.hasher.Digest(raw.Payload),
		IsActive:  true,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := st.Create(ctx, expired); err != nil {
		t.Fatalf("store.Create: %v", err)
	}

	if got := svc.Verify(ctx, raw.Presented); got.Verified {
		t.Error("Verify accepted an expired key")
	}
}

func TestServiceRegenerateInvalidatesOldKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := Caller{ID: "owner-1"}

	key, oldRaw, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, newRaw, err := svc.Regenerate(ctx, owner, key.ID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if updated.ID != key.ID {
		t.Errorf("Regenerate changed the id: %q -> %q", key.ID, updated.ID)
	}
	if newRaw == oldRaw {
		t.Error("Regenerate returned the same raw key")
	}

	if got := svc.Verify(ctx, oldRaw); got.Verified {
		t.Error("old raw key still verifies after regeneration")
	}
	if got := svc.Verify(ctx, newRaw); !got.Verified {
		t.Error("new raw key does not verify")
	}
}

func TestServiceOwnershipPolicy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, _, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stranger := Caller{ID: "owner-2", RoleSlug: "member"}
	if _, _, err := svc.Regenerate(ctx, stranger, key.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Regenerate by stranger: err = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.SetActive(ctx, stranger, key.ID, false); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("SetActive by stranger: err = %v, want ErrPermissionDenied", err)
	}

	admin := Caller{ID: "admin-1", RoleSlug: "super-admin"}
	if _, _, err := svc.Regenerate(ctx, admin, key.ID); err != nil {
		t.Errorf("Regenerate by super admin: %v", err)
	}
	if _, err := svc.SetActive(ctx, admin, key.ID, false); err != nil {
		t.Errorf("SetActive by super admin: %v", err)
	}
}

func TestServiceUnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	caller := Caller{ID: "owner-1"}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Regenerate(ctx, caller, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Regenerate: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetActive(ctx, caller, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActive: err = %v, want ErrNotFound", err)
	}
	// Delete is idempotent: an absent id is a success.
	if err := svc.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestServiceDeleteRemovesKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	key, raw, err := svc.Create(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, key.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, key.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if got := svc.Verify(ctx, raw); got.Verified {
		t.Error("deleted key still verifies")
	}
}

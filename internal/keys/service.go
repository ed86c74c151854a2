package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

var (
	// ErrNotFound is returned when the referenced key record is absent.
	ErrNotFound = errors.New("api key not found")
	// ErrPermissionDenied is returned when the caller is neither the
	// record's owner nor the privileged role.
	ErrPermissionDenied = errors.New("cannot access this resource")
)

// Caller is the authenticated identity performing a lifecycle operation.
type Caller struct {
	ID       string
	RoleSlug string
}

// Service sequences the key lifecycle: generate, digest, persist. It owns
// the ownership policy; permission strings are enforced upstream by the
// access middleware.
type Service struct {
	codec     *Codec
	hasher    *Hasher
	store     *store.Store
	superSlug string
	logger    *slog.Logger
}

// NewService wires the key service.
func NewService(keysCfg config.KeysConfig, gwCfg config.GatewayConfig, st *store.Store, logger *slog.Logger) *Service {
	return &Service{
		codec:     NewCodec(keysCfg),
		hasher:    NewHasher(keysCfg.ServerSecret),
		store:     st,
		superSlug: authgw.Slugify(gwCfg.SuperAdminRole),
		logger:    logger,
	}
}

// Codec exposes the service codec, used by the CLI.
func (s *Service) Codec() *Codec { return s.codec }

// canAccess applies the ownership policy: the record owner and the
// super-admin role may act, everyone else is denied.
func (s *Service) canAccess(caller Caller, ownerID string) bool {
	return caller.ID == ownerID || (caller.RoleSlug != "" && caller.RoleSlug == s.superSlug)
}

// Create issues a key for the owner, active and expiring in the default
// window. The returned raw key is shown exactly once and never persisted.
func (s *Service) Create(ctx context.Context, ownerID string) (*model.APIKey, string, error) {
	raw, err := s.codec.Generate(ownerID)
	if err != nil {
		return nil, "", err
	}

	key := &model.APIKey{
		OwnerID:   ownerID,
		Digest:    s.hasher.Digest(raw.Payload),
		IsActive:  true,
		ExpiresAt: time.Now().UTC().Add(model.DefaultKeyTTL),
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info("api key created", "id", key.ID, "owner_id", key.OwnerID)
	return key, raw.Presented, nil
}

// Regenerate replaces the record's digest with one for a fresh key. The
// previous raw key is invalid the moment the swap lands; there is no grace
// period.
func (s *Service) Regenerate(ctx context.Context, caller Caller, id string) (*model.APIKey, string, error) {
	key, err := s.get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !s.canAccess(caller, key.OwnerID) {
		return nil, "", ErrPermissionDenied
	}

	raw, err := s.codec.Generate(key.OwnerID)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.ReplaceDigest(ctx, id, s.hasher.Digest(raw.Payload)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("regenerate api key: %w", err)
	}

	key, err = s.get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("api key regenerated", "id", id, "owner_id", key.OwnerID)
	return key, raw.Presented, nil
}

// SetActive flips the record's active flag under the same ownership rules
// as Regenerate.
func (s *Service) SetActive(ctx context.Context, caller Caller, id string, active bool) (*model.APIKey, error) {
	key, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canAccess(caller, key.OwnerID) {
		return nil, ErrPermissionDenied
	}

	if err := s.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set api key active: %w", err)
	}
	return s.get(ctx, id)
}

// Delete removes the record. Idempotent: an absent id is a success.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	s.logger.Info("api key deleted", "id", id)
	return nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, id string) (*model.APIKey, error) {
	return s.get(ctx, id)
}

// List returns records matching the filter plus the unpaginated total.
func (s *Service) List(ctx context.Context, filter model.APIKeyFilter) ([]model.APIKey, int64, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) get(ctx context.Context, id string) (*model.APIKey, error) {
	key, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return key, nil
}

// Verify answers whether a presented key is valid and belongs to the owner
// it claims. Every failure path, malformed input included, resolves to
// verified=false: the endpoint must not act as an oracle distinguishing
// malformed keys from wrong or unknown ones.
func (s *Service) Verify(ctx context.Context, presented string) model.VerificationResult {
	payload, ownerHint, ok := s.codec.Decode(presented)
	if !ok {
		return model.VerificationResult{}
	}

	key, err := s.store.GetByOwner(ctx, ownerHint)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("verify lookup failed", "error", err)
		}
		return model.VerificationResult{}
	}

	if !key.IsActive || key.Expired(time.Now().UTC()) {
		return model.VerificationResult{}
	}
	if !s.hasher.Verify(payload, key.Digest) {
		return model.VerificationResult{}
	}
	// Owner cross-check guards against hint spoofing: the digest match and
	// record ownership must agree.
	if key.OwnerID != ownerHint {
		return model.VerificationResult{}
	}

	// Usage timestamp is best-effort and never delays the answer.
	go func(id string) {
		if err := s.store.TouchLastUsed(context.Background(), id); err != nil {
			s.logger.Warn("touch last_used failed", "id", id, "error", err)
		}
	}(key.ID)

	return model.VerificationResult{Verified: true}
}

package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	icache "SignalGate/internal/service/cache"
	pkgcache "SignalGate/pkg/cache"
	applogger "SignalGate/pkg/logger"
)

// Store resolves per-user delivery filters from the settings service's
// Redis cache. The settings service itself owns the relational state;
// the gateway only reads the JSON it publishes per user.
type Store struct {
	cache     pkgcache.Service
	local     *icache.TTLCache
	logger    *applogger.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewStore creates a filter store. keyPrefix defaults to "filters" and
// ttl to 60s.
func NewStore(lgr *applogger.Logger, c pkgcache.Service, keyPrefix string, ttl time.Duration) *Store {
	if keyPrefix == "" {
		keyPrefix = "filters"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{
		cache:     c,
		local:     icache.NewTTLCache(),
		logger:    lgr,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// UserFilters returns the filter spec for userID. A missing entry means
// no extra filtering. Errors are returned so the caller can decide to
// fail open.
func (s *Store) UserFilters(ctx context.Context, userID int64) (models.FilterSpec, error) {
	key := fmt.Sprintf("%s:%d", s.keyPrefix, userID)

	if v, ok := s.local.Get(key); ok {
		return v.(models.FilterSpec), nil
	}

	var spec models.FilterSpec
	err := s.cache.Get(ctx, key, &spec)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		s.local.Set(key, models.FilterSpec{}, s.ttl)
		return models.FilterSpec{}, nil
	}
	if err != nil {
		return models.FilterSpec{}, fmt.Errorf("filter lookup: %w", err)
	}

	s.local.Set(key, spec, s.ttl)
	return spec, nil
}

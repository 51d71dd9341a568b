// Package keepalive manages user-owned keep-alive configs and the periodic
// sweep that pings each config's target inside its scheduling window.
package keepalive

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"

	"sitepulse/internal/config"
	"sitepulse/internal/idgen"
	"sitepulse/internal/kv"
	"sitepulse/internal/notify"
	"sitepulse/internal/pkg/async"
)

type ServiceConfig struct {
	Keys          Keys
	Schedule      Schedule
	RequireToken  bool
	TokenCacheTTL time.Duration
	Workers       int
	ExcerptLimit  int
}

// ServiceConfigFromConfig maps application configuration onto the service.
func ServiceConfigFromConfig(cfg *config.Config) ServiceConfig {
	return ServiceConfig{
		Keys:          Keys{ConfigPrefix: cfg.ConfigKeyPrefix, AuthPrefix: cfg.AuthKeyPrefix},
		Schedule:      ScheduleFromConfig(cfg),
		RequireToken:  cfg.RequireUserToken,
		TokenCacheTTL: time.Duration(cfg.TokenCacheSeconds) * time.Second,
		Workers:       cfg.SweepWorkers,
		ExcerptLimit:  cfg.KeepAliveExcerptLimit,
	}
}

// CreateRequest carries the fields of a new config.
type CreateRequest struct {
	UserID     string
	UserToken  string
	ConfigName string
	TargetUID  string
	Credential string
}

// Created is returned by Create.
type Created struct {
	ConfigID string
	Message  string
	Record   ConfigRecord
}

// Service implements the config lifecycle and owns the sweeper so both
// share one set of per-key locks.
type Service struct {
	store   kv.Store
	cfg     ServiceConfig
	sweeper *Sweeper
	locks   *keyLocks
	tokens  *cache.Cache[string, string]

	now    func() time.Time
	logger *slog.Logger
}

func NewService(store kv.Store, cfg ServiceConfig, pinger Pinger, publisher notify.Publisher, logger *slog.Logger) *Service {
	if cfg.TokenCacheTTL <= 0 {
		cfg.TokenCacheTTL = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if publisher == nil {
		publisher = &notify.NoopPublisher{}
	}

	s := &Service{
		store:  store,
		cfg:    cfg,
		locks:  newKeyLocks(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	s.tokens = cache.NewCache[string, string](logger, cfg.TokenCacheTTL, s.fetchToken)
	s.sweeper = &Sweeper{
		store:        store,
		keys:         cfg.Keys,
		schedule:     cfg.Schedule,
		pinger:       pinger,
		publisher:    publisher,
		locks:        s.locks,
		pool:         async.NewPool(cfg.Workers),
		excerptLimit: cfg.ExcerptLimit,
		now:          func() time.Time { return s.now() },
		logger:       logger,
	}
	return s
}

// SetClock replaces the time source; used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Schedule() Schedule {
	return s.cfg.Schedule
}

// Sweep runs one sweep immediately.
func (s *Service) Sweep(ctx context.Context) SweepSummary {
	return s.sweeper.Run(ctx)
}

// fetchToken loads a user's token for the cache. A missing auth record
// yields an empty token, which never matches.
func (s *Service) fetchToken(userID string) (string, error) {
	key := s.cfg.Keys.Auth(userID)
	raw, err := s.store.Get(context.Background(), key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load auth record: %w", err)
	}
	rec, err := decodeAuth(key, raw)
	if err != nil {
		return "", err
	}
	return rec.UserToken, nil
}

// Authenticate checks token against the user's auth record. Without token
// auth only the user id is validated.
func (s *Service) Authenticate(ctx context.Context, userID, token string) error {
	if err := validateID("userId", userID); err != nil {
		return err
	}
	if !s.cfg.RequireToken {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}

	stored, err := s.tokens.Get(userID)
	if err != nil {
		return err
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrForbidden
	}
	return nil
}

// IssueToken creates a user's auth record. Rotating an existing token
// requires presenting the current one.
func (s *Service) IssueToken(ctx context.Context, userID, currentToken string) (AuthRecord, error) {
	if err := validateID("userId", userID); err != nil {
		return AuthRecord{}, err
	}

	existing, err := s.fetchToken(userID)
	if err != nil {
		return AuthRecord{}, err
	}
	if existing != "" {
		if currentToken == "" {
			return AuthRecord{}, ErrUnauthorized
		}
		if subtle.ConstantTimeCompare([]byte(existing), []byte(currentToken)) != 1 {
			return AuthRecord{}, ErrForbidden
		}
	}
	return s.RotateToken(ctx, userID)
}

// RotateToken unconditionally replaces a user's token. It backs the admin
// CLI; HTTP callers go through IssueToken.
func (s *Service) RotateToken(ctx context.Context, userID string) (AuthRecord, error) {
	if err := validateID("userId", userID); err != nil {
		return AuthRecord{}, err
	}

	now := s.now()
	token, err := idgen.UserToken(now)
	if err != nil {
		return AuthRecord{}, err
	}
	rec := AuthRecord{UserID: userID, UserToken: token, CreatedAt: now}

	value, err := encode(rec)
	if err != nil {
		return AuthRecord{}, fmt.Errorf("encode auth record: %w", err)
	}
	if err := s.store.Put(ctx, s.cfg.Keys.Auth(userID), value); err != nil {
		return AuthRecord{}, fmt.Errorf("store auth record: %w", err)
	}
	s.tokens.Clear()

	s.logger.Info("Issued user token", slog.String("user_id", userID))
	return rec, nil
}

// Create stores a new active config with a random execution offset.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.ConfigName = strings.TrimSpace(req.ConfigName)
	req.TargetUID = strings.TrimSpace(req.TargetUID)
	req.Credential = strings.TrimSpace(req.Credential)

	if err := validateID("userId", req.UserID); err != nil {
		return Created{}, err
	}
	switch {
	case req.ConfigName == "":
		return Created{}, missingField("configName")
	case req.TargetUID == "":
		return Created{}, missingField("targetUID")
	case req.Credential == "":
		return Created{}, missingField("credential")
	}
	if err := s.Authenticate(ctx, req.UserID, req.UserToken); err != nil {
		return Created{}, err
	}

	configID, err := idgen.ConfigID()
	if err != nil {
		return Created{}, err
	}

	now := s.now()
	offset := s.cfg.Schedule.NewOffset()
	next := s.cfg.Schedule.NextRun(offset, now)
	rec := ConfigRecord{
		ConfigID:        configID,
		UserID:          req.UserID,
		ConfigName:      req.ConfigName,
		TargetUID:       req.TargetUID,
		Cookie:          req.Credential,
		IsActive:        true,
		ExecutionOffset: offset,
		CreatedAt:       now,
		NextExecution:   &next,
	}

	value, err := encode(rec)
	if err != nil {
		return Created{}, fmt.Errorf("encode config: %w", err)
	}
	if err := s.store.Put(ctx, s.cfg.Keys.Config(rec.UserID, rec.ConfigID), value); err != nil {
		return Created{}, fmt.Errorf("store config: %w", err)
	}

	s.logger.Info("Created keep-alive config",
		slog.String("user_id", rec.UserID),
		slog.String("config_id", rec.ConfigID),
		slog.Int("offset", offset))

	return Created{
		ConfigID: configID,
		Message:  "Config created; " + s.cfg.Schedule.Describe(offset),
		Record:   rec.Redacted(),
	}, nil
}

// List returns the user's configs in key order with credentials removed.
// Undecodable records are logged and left out.
func (s *Service) List(ctx context.Context, userID, token string) ([]ConfigRecord, error) {
	if err := s.Authenticate(ctx, userID, token); err != nil {
		return nil, err
	}

	return s.listPrefix(ctx, s.cfg.Keys.User(userID))
}

// ListOwned returns a user's configs without checking their token. Used by
// the admin CLI.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]ConfigRecord, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	return s.listPrefix(ctx, s.cfg.Keys.User(userID))
}

// Toggle flips a config's active flag and recomputes or clears its next
// execution.
func (s *Service) Toggle(ctx context.Context, userID, token, configID string) (ConfigRecord, error) {
	if err := s.Authenticate(ctx, userID, token); err != nil {
		return ConfigRecord{}, err
	}
	if err := validateID("configId", configID); err != nil {
		return ConfigRecord{}, err
	}

	key := s.cfg.Keys.Config(userID, configID)
	unlock := s.locks.lock(key)
	defer unlock()

	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return ConfigRecord{}, ErrNotFound
	}
	if err != nil {
		return ConfigRecord{}, fmt.Errorf("load config: %w", err)
	}
	rec, err := decodeConfig(key, raw)
	if err != nil {
		return ConfigRecord{}, err
	}

	rec.IsActive = !rec.IsActive
	if rec.IsActive {
		next := s.cfg.Schedule.NextRun(rec.ExecutionOffset, s.now())
		rec.NextExecution = &next
	} else {
		rec.NextExecution = nil
	}

	value, err := encode(rec)
	if err != nil {
		return ConfigRecord{}, fmt.Errorf("encode config: %w", err)
	}
	if err := s.store.Put(ctx, key, value); err != nil {
		return ConfigRecord{}, fmt.Errorf("store config: %w", err)
	}
	return rec.Redacted(), nil
}

// Delete removes a config. Deleting an unknown config succeeds.
func (s *Service) Delete(ctx context.Context, userID, token, configID string) error {
	if err := s.Authenticate(ctx, userID, token); err != nil {
		return err
	}
	if err := validateID("configId", configID); err != nil {
		return err
	}

	key := s.cfg.Keys.Config(userID, configID)
	unlock := s.locks.lock(key)
	defer unlock()

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

// ListAll returns every stored config, credentials removed. Used by the
// admin CLI.
func (s *Service) ListAll(ctx context.Context) ([]ConfigRecord, error) {
	return s.listPrefix(ctx, s.cfg.Keys.AllConfigs())
}

func (s *Service) listPrefix(ctx context.Context, prefix string) ([]ConfigRecord, error) {
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	records := make([]ConfigRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, kv.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		rec, err := decodeConfig(key, raw)
		if err != nil {
			s.logger.Error("Skipping undecodable keep-alive config", slog.String("key", key), slog.Any("error", err))
			continue
		}
		records = append(records, rec.Redacted())
	}
	return records, nil
}

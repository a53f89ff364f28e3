package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/cache"
	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
)

// SettingsProvider loads the business settings snapshot: database rows over
// configured defaults, cached in Redis between writes.
type SettingsProvider struct {
	store    repository.Store
	cache    cache.SettingsCache
	defaults domain.Settings
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// DefaultSettings builds the fallback snapshot from configuration.
func DefaultSettings(cfg *config.Config) domain.Settings {
	return domain.Settings{
		VisitPrice:       cfg.GetVisitPrice(),
		Currency:         cfg.Business.Currency,
		InvoiceDueDays:   cfg.Business.InvoiceDueDays,
		RemindersEnabled: cfg.Business.RemindersEnabled,
	}
}

// NewSettingsProvider accepts a nil cache, in which case every Load reads the
// database.
func NewSettingsProvider(store repository.Store, c cache.SettingsCache, defaults domain.Settings, ttl time.Duration, logger *zap.Logger) *SettingsProvider {
	return &SettingsProvider{
		store:    store,
		cache:    c,
		defaults: defaults,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Load returns the current snapshot. A cache outage degrades to a database read.
func (p *SettingsProvider) Load(ctx context.Context) (domain.Settings, error) {
	log := logger.FromContext(ctx, p.logger)

	if p.cache != nil {
		cached, err := p.cache.Get(ctx)
		if err != nil {
			log.Warn("settings cache unavailable", zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	rows, err := p.store.Settings().All(ctx)
	if err != nil {
		return domain.Settings{}, customError.WrapDatabaseError(err)
	}

	s := p.defaults
	for _, row := range rows {
		if err := applySetting(&s, row.Key, row.Value); err != nil {
			log.Warn("ignoring invalid setting", zap.String("key", row.Key), zap.Error(err))
		}
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, s, p.ttl); err != nil {
			log.Warn("failed to cache settings", zap.Error(err))
		}
	}
	return s, nil
}

// Update validates and stores one setting, then drops the cached snapshot.
func (p *SettingsProvider) Update(ctx context.Context, key, value string) (domain.Settings, error) {
	candidate := p.defaults
	if err := applySetting(&candidate, key, value); err != nil {
		return domain.Settings{}, customError.WrapValidation(err.Error(), err)
	}

	before, err := p.Load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	now := p.now()
	err = p.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Settings().Upsert(ctx, key, strings.TrimSpace(value), now); err != nil {
			return customError.WrapDatabaseError(err)
		}
		after := before
		_ = applySetting(&after, key, value)
		return audit(ctx, tx, domain.AuditUpdated, domain.EntitySettings, settingID(key), before, after, key, now)
	})
	if err != nil {
		return domain.Settings{}, err
	}

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx); err != nil {
			logger.FromContext(ctx, p.logger).Warn("failed to invalidate settings cache", zap.Error(err))
		}
	}
	return p.Load(ctx)
}

// settingID gives each key a stable audit entity id.
func settingID(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("settings:"+key))
}

func applySetting(s *domain.Settings, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case domain.SettingVisitPrice:
		price, err := decimal.NewFromString(value)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("%s must be a positive amount, got %q", key, value)
		}
		s.VisitPrice = price
	case domain.SettingCurrency:
		if len(value) != 3 {
			return fmt.Errorf("%s must be a 3-letter code, got %q", key, value)
		}
		s.Currency = strings.ToUpper(value)
	case domain.SettingInvoiceDueDays:
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		s.InvoiceDueDays = days
	case domain.SettingRemindersEnabled:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", key, value)
		}
		s.RemindersEnabled = enabled
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

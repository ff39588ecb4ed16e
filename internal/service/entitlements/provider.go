// Package entitlements maps users to their protection allowances.
package entitlements

import (
	"context"

	"github.com/aimd54/datestreak/internal/config"
	"github.com/aimd54/datestreak/internal/models"
)

// Provider reads allowances from the entitlements config section. Users
// listed under pro_users get the pro tier, everyone else the free tier.
type Provider struct {
	cfg *config.EntitlementsConfig
}

// NewProvider creates a config-backed entitlement provider.
func NewProvider(cfg *config.EntitlementsConfig) *Provider {
	return &Provider{cfg: cfg}
}

// For returns the allowances of a user.
func (p *Provider) For(_ context.Context, userID string) (models.Entitlements, error) {
	tier := p.cfg.Free
	pro := p.cfg.IsPro(userID)
	if pro {
		tier = p.cfg.Pro
	}
	return models.Entitlements{
		IsPro:                pro,
		StreakSaverAllowance: tier.StreakSaverAllowance,
		HolidayAllowance:     tier.HolidayAllowance,
		HolidayDurationDays:  tier.HolidayDurationDays,
	}, nil
}

package internal

import "time"

type Config struct {
	Address       string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	AdminKey      string `env:"ADMIN_API_KEY"`
	NotifyAddress string `env:"NOTIFY_ADDRESS"`

	Commission CommissionConfig
}

// CommissionConfig carries the tier-rate table and payout policy. It is
// passed explicitly into the calculator and payout processor so both stay
// testable with injected values.
type CommissionConfig struct {
	BaseRate     float64 `env:"COMMISSION_BASE_RATE" envDefault:"5"`
	BronzeRate   float64 `env:"COMMISSION_BRONZE_RATE" envDefault:"5"`
	SilverRate   float64 `env:"COMMISSION_SILVER_RATE" envDefault:"7"`
	GoldRate     float64 `env:"COMMISSION_GOLD_RATE" envDefault:"10"`
	PlatinumRate float64 `env:"COMMISSION_PLATINUM_RATE" envDefault:"12"`
	DiamondRate  float64 `env:"COMMISSION_DIAMOND_RATE" envDefault:"15"`

	ReferralWindowDays int           `env:"REFERRAL_WINDOW_DAYS" envDefault:"30"`
	MinPayout          Money         `env:"MIN_PAYOUT" envDefault:"50000"`
	RequireKYC         bool          `env:"REQUIRE_KYC" envDefault:"true"`
	CodePrefix         string        `env:"REFERRAL_CODE_PREFIX" envDefault:"SHRIBALAJI"`
	SweepInterval      time.Duration `env:"REFERRAL_SWEEP_INTERVAL" envDefault:"1m"`
}

// RateFor returns the commission percentage for a referrer. Regular users
// always earn the base rate regardless of tier.
func (c CommissionConfig) RateFor(kind ReferrerKind, tier Tier) float64 {
	if kind == KindUser {
		return c.BaseRate
	}
	switch tier {
	case TierBronze:
		return c.BronzeRate
	case TierSilver:
		return c.SilverRate
	case TierGold:
		return c.GoldRate
	case TierPlatinum:
		return c.PlatinumRate
	case TierDiamond:
		return c.DiamondRate
	default:
		return c.BaseRate
	}
}

func (c CommissionConfig) ReferralWindow() time.Duration {
	return time.Duration(c.ReferralWindowDays) * 24 * time.Hour
}

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/validator"
)

const (
	ToleranceDollar  = "dollar"
	TolerancePercent = "percent"

	VerificationTrust = "trust"
	VerificationBlock = "block"
)

// Rules are the operator-tunable settings. They are read from a JSON file the
// dashboard writes, so they may change between two deals of the same cycle.
type Rules struct {
	MinProfitMarginPercent float64         `json:"minProfitMarginPercent"`
	MinPayout              decimal.Decimal `json:"minPayout" validate:"gte=0"`
	OnlyOpenDeals          bool            `json:"onlyOpenDeals"`
	Amazon                 RetailerRule    `json:"amazon"`
	BestBuy                RetailerRule    `json:"bestbuy"`
	PriceTolerance         PriceTolerance  `json:"priceTolerance"`
	PollingIntervalMinutes int             `json:"pollingIntervalMinutes" validate:"gte=1"`
	DryRun                 bool            `json:"dryRun"`
	VerificationPolicy     string          `json:"verificationPolicy" validate:"omitempty,oneof=trust block"`
}

type RetailerRule struct {
	Enabled     bool `json:"enabled"`
	MaxPerOrder int  `json:"maxPerOrder" validate:"gte=0"`
}

type PriceTolerance struct {
	Enabled bool            `json:"enabled"`
	Type    string          `json:"type" validate:"omitempty,oneof=dollar percent"`
	Value   decimal.Decimal `json:"value" validate:"gte=0"`
}

// DefaultRules is used until a rules file has been read successfully. They
// never reserve: a rules file has to turn dry run off explicitly.
func DefaultRules() Rules {
	return Rules{
		MinProfitMarginPercent: 0,
		MinPayout:              decimal.Zero,
		OnlyOpenDeals:          true,
		Amazon:                 RetailerRule{Enabled: true, MaxPerOrder: 2},
		BestBuy:                RetailerRule{Enabled: true, MaxPerOrder: 2},
		PriceTolerance:         PriceTolerance{Type: ToleranceDollar, Value: decimal.Zero},
		PollingIntervalMinutes: 5,
		DryRun:                 true,
		VerificationPolicy:     VerificationTrust,
	}
}

func (r Rules) Retailer(name models.Retailer) RetailerRule {
	switch name {
	case models.RetailerAmazon:
		return r.Amazon
	case models.RetailerBestBuy:
		return r.BestBuy
	}
	return RetailerRule{}
}

// EnabledRetailers returns the enabled retailers in validation order.
func (r Rules) EnabledRetailers() []models.Retailer {
	var out []models.Retailer
	for _, name := range models.Retailers {
		if r.Retailer(name).Enabled {
			out = append(out, name)
		}
	}
	return out
}

func (r Rules) PollingInterval() time.Duration {
	if r.PollingIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.PollingIntervalMinutes) * time.Minute
}

// BlocksOnVerification reports whether an unconfirmed reservation must be
// rolled back instead of trusted.
func (r Rules) BlocksOnVerification() bool {
	return r.VerificationPolicy == VerificationBlock
}

// MaxAcceptablePrice is the highest observed price that still matches expected.
func (t PriceTolerance) MaxAcceptablePrice(expected decimal.Decimal) decimal.Decimal {
	if !t.Enabled || !t.Value.IsPositive() {
		return expected
	}
	if t.Type == TolerancePercent {
		return expected.Add(expected.Mul(t.Value).Div(decimal.NewFromInt(100)))
	}
	return expected.Add(t.Value)
}

// Provider hands out the rules in force right now.
type Provider interface {
	Current() Rules
}

// StaticProvider always returns the same rules.
type StaticProvider Rules

func (s StaticProvider) Current() Rules { return Rules(s) }

// FileProvider re-reads the rules file whenever its modification time
// changes and keeps serving the last good rules when the file is broken.
type FileProvider struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	rules   Rules
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, rules: DefaultRules()}
}

func (p *FileProvider) Current() Rules {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		slog.Warn("Rules file unavailable, using last known rules", "path", p.path, "error", err)
		return p.rules
	}
	if !info.ModTime().After(p.modTime) {
		return p.rules
	}

	rules, err := LoadRules(p.path)
	if err != nil {
		slog.Warn("Rules file invalid, using last known rules", "path", p.path, "error", err)
		return p.rules
	}
	p.rules = rules
	p.modTime = info.ModTime()
	slog.Info("Loaded rules", "path", p.path, "dryRun", rules.DryRun, "minMargin", rules.MinProfitMarginPercent)
	return p.rules
}

// LoadRules reads and validates a rules file. Missing keys keep their defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	if err := validator.Struct(rules); err != nil {
		return Rules{}, err
	}
	if rules.VerificationPolicy == "" {
		rules.VerificationPolicy = VerificationTrust
	}
	return rules, nil
}

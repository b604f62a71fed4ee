package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/quartzpay/refillgate/internal/models"
)

var (
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrBelowMinimum     = errors.New("amount below minimum")
	ErrAboveMaximum     = errors.New("amount above maximum")
)

// AssetConfig describes one accepted refill asset. Amounts are in the
// asset's minor unit; Rate is the reference-asset cost per unit.
type AssetConfig struct {
	Symbol     string
	Name       string
	Rate       decimal.Decimal
	FeePercent decimal.Decimal
	MinAmount  uint64
	MaxAmount  uint64
}

// Table is the immutable registry of accepted assets. Built once at
// startup and passed into each component; lookups are case-insensitive.
type Table struct {
	assets map[string]AssetConfig
	order  []string
}

// NewTable validates the asset set and builds the registry.
func NewTable(assets []AssetConfig) (*Table, error) {
	if len(assets) == 0 {
		return nil, errors.New("pricing: no assets configured")
	}
	t := &Table{assets: make(map[string]AssetConfig, len(assets))}
	for _, a := range assets {
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if sym == "" {
			return nil, errors.New("pricing: asset missing symbol")
		}
		if !a.Rate.IsPositive() {
			return nil, fmt.Errorf("pricing: %s: rate must be positive, got %s", sym, a.Rate)
		}
		if a.MinAmount == 0 || a.MinAmount > a.MaxAmount {
			return nil, fmt.Errorf("pricing: %s: invalid bounds [%d, %d]", sym, a.MinAmount, a.MaxAmount)
		}
		if _, dup := t.assets[sym]; dup {
			return nil, fmt.Errorf("pricing: duplicate asset %s", sym)
		}
		a.Symbol = sym
		t.assets[sym] = a
		t.order = append(t.order, sym)
	}
	return t, nil
}

// Default returns the built-in asset table used when no pricing file is
// configured.
func Default() *Table {
	t, err := NewTable([]AssetConfig{
		{
			Symbol:     "STX",
			Name:       "Stacks",
			Rate:       decimal.RequireFromString("0.95"),
			FeePercent: decimal.RequireFromString("5"),
			MinAmount:  1_000_000,         // 1 STX
			MaxAmount:  1_000_000_000_000, // 1M STX
		},
		{
			Symbol:     "SBTC",
			Name:       "sBTC",
			Rate:       decimal.RequireFromString("35000"),
			FeePercent: decimal.RequireFromString("5"),
			MinAmount:  1_000,      // 1000 sats
			MaxAmount:  10_000_000, // 0.1 BTC
		},
	})
	if err != nil {
		panic(err) // built-in table is static
	}
	return t
}

// Lookup returns the config for a symbol, matching case-insensitively.
func (t *Table) Lookup(symbol string) (AssetConfig, bool) {
	a, ok := t.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return a, ok
}

// Symbols lists the accepted asset symbols in configuration order.
func (t *Table) Symbols() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Tokens renders the table for the /tokens listing.
func (t *Table) Tokens() []models.TokenInfo {
	out := make([]models.TokenInfo, 0, len(t.order))
	for _, sym := range t.order {
		a := t.assets[sym]
		out = append(out, models.TokenInfo{
			Symbol:    a.Symbol,
			Name:      a.Name,
			Rate:      a.Rate.String(),
			MinAmount: a.MinAmount,
			MaxAmount: a.MaxAmount,
		})
	}
	return out
}

// Quote converts a requested refill amount into the required payment in
// the reference asset: ceil(amount / rate), computed over the rate's
// exact rational form so bound-adjacent amounts never suffer float
// drift.
func (t *Table) Quote(symbol string, amount uint64) (models.Quote, error) {
	a, ok := t.Lookup(symbol)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedAsset, symbol, strings.Join(t.Symbols(), ", "))
	}
	if amount < a.MinAmount {
		return models.Quote{}, fmt.Errorf("%w: %d < %d %s", ErrBelowMinimum, amount, a.MinAmount, a.Symbol)
	}
	if amount > a.MaxAmount {
		return models.Quote{}, fmt.Errorf("%w: %d > %d %s", ErrAboveMaximum, amount, a.MaxAmount, a.Symbol)
	}

	required, err := ceilDiv(amount, a.Rate)
	if err != nil {
		return models.Quote{}, fmt.Errorf("pricing %s: %w", a.Symbol, err)
	}

	return models.Quote{
		Asset:           a.Symbol,
		RequestedAmount: amount,
		RequiredPayment: required,
		Rate:            a.Rate.String(),
		FeePercent:      a.FeePercent.String(),
	}, nil
}

// ceilDiv computes ceil(amount / rate) exactly. The rate is expanded to
// num/den and the division done in big integers.
func ceilDiv(amount uint64, rate decimal.Decimal) (uint64, error) {
	r := rate.Rat()
	x := new(big.Int).Mul(new(big.Int).SetUint64(amount), r.Denom())
	q, m := new(big.Int).QuoRem(x, r.Num(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsUint64() {
		return 0, fmt.Errorf("required payment overflows uint64 (amount %d, rate %s)", amount, rate)
	}
	return q.Uint64(), nil
}

type fileAsset struct {
	Symbol     string `yaml:"symbol"`
	Name       string `yaml:"name"`
	Rate       string `yaml:"rate"`
	FeePercent string `yaml:"feePercent"`
	MinAmount  uint64 `yaml:"minAmount"`
	MaxAmount  uint64 `yaml:"maxAmount"`
}

type fileTable struct {
	Assets []fileAsset `yaml:"assets"`
}

// LoadFile reads an asset table from a YAML file, replacing the built-in
// defaults.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: unable to read %s: %w", path, err)
	}
	var f fileTable
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("pricing: unable to parse %s: %w", path, err)
	}

	assets := make([]AssetConfig, 0, len(f.Assets))
	for i, fa := range f.Assets {
		rate, err := decimal.NewFromString(fa.Rate)
		if err != nil {
			return nil, fmt.Errorf("pricing: asset %d: bad rate %q: %w", i, fa.Rate, err)
		}
		fee := decimal.Zero
		if fa.FeePercent != "" {
			if fee, err = decimal.NewFromString(fa.FeePercent); err != nil {
				return nil, fmt.Errorf("pricing: asset %d: bad feePercent %q: %w", i, fa.FeePercent, err)
			}
		}
		assets = append(assets, AssetConfig{
			Symbol:     fa.Symbol,
			Name:       fa.Name,
			Rate:       rate,
			FeePercent: fee,
			MinAmount:  fa.MinAmount,
			MaxAmount:  fa.MaxAmount,
		})
	}
	return NewTable(assets)
}

package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

const harvestPrefix = "harvest:"

// Tier is one rung of the harvest ladder: once the unrealized gain reaches
// Gain, Fraction of the remaining quantity is sold.
type Tier struct {
	Gain     decimal.Decimal
	Fraction decimal.Decimal
}

// Tiers decodes "gain:fraction,gain:fraction,..." from the environment.
type Tiers []Tier

func (t *Tiers) Decode(value string) error {
	var tiers Tiers
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		gain, fraction, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("harvest tier %q: want gain:fraction", part)
		}
		g, err := decimal.NewFromString(strings.TrimSpace(gain))
		if err != nil {
			return fmt.Errorf("harvest tier %q: %w", part, err)
		}
		f, err := decimal.NewFromString(strings.TrimSpace(fraction))
		if err != nil {
			return fmt.Errorf("harvest tier %q: %w", part, err)
		}
		if !g.IsPositive() || !f.IsPositive() || f.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("harvest tier %q out of range", part)
		}
		if len(tiers) > 0 && !g.GreaterThan(tiers[len(tiers)-1].Gain) {
			return fmt.Errorf("harvest tiers must have increasing gains")
		}
		tiers = append(tiers, Tier{Gain: g, Fraction: f})
	}
	*t = tiers
	return nil
}

// HarvestTag is the strategy tag carried by a harvest SELL for ladder level n.
func HarvestTag(level int) string {
	return harvestPrefix + strconv.Itoa(level)
}

// HarvestLevel parses a tag produced by HarvestTag.
func HarvestLevel(tag string) (int, bool) {
	rest, ok := strings.CutPrefix(tag, harvestPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Harvest is a proposed partial profit-taking sale.
type Harvest struct {
	Symbol   string
	Level    int
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Gain     decimal.Decimal
}

// Ladder proposes harvest sales one rung at a time. Rungs already taken are
// recorded on the position as harvest_level, which never decreases.
type Ladder struct {
	tiers Tiers
}

func NewLadder(tiers Tiers) *Ladder {
	return &Ladder{tiers: tiers}
}

// Next returns the next rung reached at price, if any.
func (l *Ladder) Next(pos model.Position, price decimal.Decimal) (*Harvest, bool) {
	if !pos.Quantity.IsPositive() || !pos.AvgCostBasis.IsPositive() || !price.IsPositive() {
		return nil, false
	}
	if pos.HarvestLevel >= len(l.tiers) {
		return nil, false
	}

	gain := price.Div(pos.AvgCostBasis).Sub(decimal.NewFromInt(1))
	tier := l.tiers[pos.HarvestLevel]
	if gain.LessThan(tier.Gain) {
		return nil, false
	}

	qty := pos.Quantity.Mul(tier.Fraction).Truncate(8)
	if !qty.IsPositive() {
		return nil, false
	}
	return &Harvest{
		Symbol:   pos.Symbol,
		Level:    pos.HarvestLevel + 1,
		Quantity: qty,
		Price:    price,
		Gain:     gain,
	}, true
}

// Package calculator computes quote totals and deposits with exact decimal
// arithmetic. Aggregates are summed at full precision and rounded once,
// half away from zero, to two decimals. Results do not depend on line order.
package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
)

// Line is the monetary part of a quote line.
type Line struct {
	Quantity    decimal.Decimal
	UnitPriceHT decimal.Decimal
	VATRate     decimal.Decimal
}

// Totals holds the rounded HT, VAT and TTC sums of a quote.
type Totals struct {
	HT  decimal.Decimal `json:"total_ht"`
	VAT decimal.Decimal `json:"total_vat"`
	TTC decimal.Decimal `json:"total_ttc"`
}

// VATBucket aggregates the lines sharing one VAT rate.
type VATBucket struct {
	Rate decimal.Decimal `json:"rate"`
	HT   decimal.Decimal `json:"total_ht"`
	VAT  decimal.Decimal `json:"total_vat"`
}

// ComputeTotals sums all lines exactly and rounds each aggregate once.
func ComputeTotals(lines []Line) Totals {
	sumHT := decimal.Zero
	sumVAT := decimal.Zero
	for _, line := range lines {
		ht, vat := exactAmounts(line)
		sumHT = sumHT.Add(ht)
		sumVAT = sumVAT.Add(vat)
	}

	return Totals{
		HT:  round(sumHT),
		VAT: round(sumVAT),
		TTC: round(sumHT.Add(sumVAT)),
	}
}

// ComputeDepositAmount returns percent of totalTTC, with percent clamped to [0, 100].
func ComputeDepositAmount(totalTTC, percent decimal.Decimal) decimal.Decimal {
	return round(totalTTC.Mul(ClampPercent(percent)).Div(hundred))
}

func ClampPercent(percent decimal.Decimal) decimal.Decimal {
	if percent.IsNegative() {
		return decimal.Zero
	}
	if percent.GreaterThan(hundred) {
		return hundred
	}
	return percent
}

// LineAmounts rounds one line for display. The rounded values are never
// summed into quote totals.
func LineAmounts(line Line) (ht, vat, ttc decimal.Decimal) {
	exactHT, exactVAT := exactAmounts(line)
	return round(exactHT), round(exactVAT), round(exactHT.Add(exactVAT))
}

// VATBreakdown groups lines by rate, ascending.
func VATBreakdown(lines []Line) []VATBucket {
	type sums struct {
		rate decimal.Decimal
		ht   decimal.Decimal
		vat  decimal.Decimal
	}
	byRate := map[string]*sums{}
	for _, line := range lines {
		key := line.VATRate.String()
		bucket, ok := byRate[key]
		if !ok {
			bucket = &sums{rate: line.VATRate, ht: decimal.Zero, vat: decimal.Zero}
			byRate[key] = bucket
		}
		ht, vat := exactAmounts(line)
		bucket.ht = bucket.ht.Add(ht)
		bucket.vat = bucket.vat.Add(vat)
	}

	out := make([]VATBucket, 0, len(byRate))
	for _, bucket := range byRate {
		out = append(out, VATBucket{
			Rate: bucket.rate,
			HT:   round(bucket.ht),
			VAT:  round(bucket.vat),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Rate.LessThan(out[j].Rate)
	})
	return out
}

// MinorUnits converts a two-decimal amount to integer cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return round(amount).Shift(moneyPlaces).IntPart()
}

func exactAmounts(line Line) (ht, vat decimal.Decimal) {
	ht = line.Quantity.Mul(line.UnitPriceHT)
	vat = ht.Mul(line.VATRate).Div(hundred)
	return ht, vat
}

func round(value decimal.Decimal) decimal.Decimal {
	return value.Round(moneyPlaces)
}

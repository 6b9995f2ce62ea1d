// Package format holds the display helpers shared by the API responses:
// address shortening, "time ago" bucketing and fixed-point amount formatting.
package format

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ShortenAddress returns a lossy display form of an address: the first six
// and last four characters joined by an ellipsis. Never use the result as a
// lookup key.
func ShortenAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// RelativeTime maps the elapsed time between now and ts into one of four
// coarse buckets. Callers rendering a list must sample now once and reuse it
// so every row is bucketed against the same instant.
func RelativeTime(now, ts time.Time) string {
	diff := now.Unix() - ts.Unix()

	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	default:
		return fmt.Sprintf("%dd ago", diff/86400)
	}
}

var (
	centi   = decimal.NewFromFloat(0.01)
	kilo    = decimal.NewFromInt(1000)
	million = decimal.NewFromInt(1000000)
)

// FormatScaledAmount converts a raw fixed-point integer amount into a human
// string. Very small amounts keep six fraction digits, large amounts collapse
// to K/M suffixes, everything else is grouped with at most maxDecimals
// fraction digits.
func FormatScaledAmount(raw *big.Int, decimals, maxDecimals int32) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}

	v := decimal.NewFromBigInt(raw, -decimals)

	if v.LessThan(centi) && v.IsPositive() {
		return v.StringFixed(6)
	}
	if v.GreaterThanOrEqual(million) {
		return v.Div(million).StringFixed(1) + "M"
	}
	if v.GreaterThanOrEqual(kilo) {
		return v.Div(kilo).StringFixed(1) + "K"
	}

	s := v.Round(maxDecimals).String()
	return groupThousands(s)
}

// FormatFixed renders a raw fixed-point integer with exactly places fraction
// digits, e.g. wei to a "1.500" ETH string.
func FormatFixed(raw *big.Int, decimals, places int32) string {
	if raw == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(raw, -decimals).StringFixed(places)
}

// groupThousands inserts comma separators into the integer part of a decimal
// string.
func groupThousands(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}

	out := intPart
	if neg {
		out = "-" + out
	}
	if hasFrac {
		out += "." + fracPart
	}
	return out
}

package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid_amount")

// ParseAmount converts a decimal token string ("10", "0.5") to base units.
func ParseAmount(value string, decimals int) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || decimals < 0 || decimals > 18 {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return 0, ErrInvalidAmount
	}

	whole, fraction, hasFraction := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFraction && fraction == "" {
		return 0, ErrInvalidAmount
	}
	if len(fraction) > decimals {
		return 0, ErrInvalidAmount
	}
	if !isDigits(whole) || !isDigits(fraction) {
		return 0, ErrInvalidAmount
	}

	digits := whole + fraction + strings.Repeat("0", decimals-len(fraction))
	parsed, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return parsed, nil
}

// FormatAmount renders base units as a decimal token string without trailing zeros.
func FormatAmount(amount int64, decimals int) string {
	if decimals <= 0 {
		return strconv.FormatInt(amount, 10)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		if amount == math.MinInt64 {
			return sign + formatUnsigned(uint64(math.MaxInt64)+1, decimals)
		}
		amount = -amount
	}
	return sign + formatUnsigned(uint64(amount), decimals)
}

func formatUnsigned(amount uint64, decimals int) string {
	raw := strconv.FormatUint(amount, 10)
	if len(raw) <= decimals {
		raw = strings.Repeat("0", decimals-len(raw)+1) + raw
	}
	whole := raw[:len(raw)-decimals]
	fraction := strings.TrimRight(raw[len(raw)-decimals:], "0")
	if fraction == "" {
		return whole
	}
	return whole + "." + fraction
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

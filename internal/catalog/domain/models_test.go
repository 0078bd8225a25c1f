package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodKeyUsesUTCDate(t *testing.T) {
	kind := ActionKind{Name: "vote", PeriodLength: 24 * time.Hour}

	// 23:30 in UTC-5 is already the next UTC day.
	local := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2026-03-10", kind.PeriodKey(local))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), kind.PeriodEnd(local))

	before := time.Date(2026, 3, 10, 23, 59, 59, 999, time.UTC)
	after := before.Add(time.Millisecond)
	assert.NotEqual(t, kind.PeriodKey(before), kind.PeriodKey(after))
}

func TestPeriodKeySubDay(t *testing.T) {
	kind := ActionKind{Name: "chat_boost", PeriodLength: time.Hour}
	now := time.Date(2026, 3, 10, 14, 42, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-10T14:00:00Z", kind.PeriodKey(now))
	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), kind.PeriodEnd(now))
}

func TestMultiDayPeriodsAlignToZeroTime(t *testing.T) {
	weekly := ActionKind{Name: "weekly_boost", PeriodLength: 7 * 24 * time.Hour}
	wednesday := time.Date(2026, 5, 6, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Monday, weekly.PeriodStart(wednesday).Weekday())
	assert.Equal(t, "2026-05-04", weekly.PeriodKey(wednesday))

	season := ActionKind{Name: "season_pass", PeriodLength: 90 * 24 * time.Hour}
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-10-07", season.PeriodKey(now))
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), season.PeriodEnd(now))
	assert.Equal(t, "2026-01-05", season.PeriodKey(season.PeriodEnd(now)))
}

func TestNormalizeTarget(t *testing.T) {
	plain := ActionKind{Name: "vote"}
	assert.Equal(t, "clip-123", plain.NormalizeTarget("  clip-123 "))
	assert.Equal(t, "Clip-123", plain.NormalizeTarget("Clip-123"))

	clan := ActionKind{Name: "clan_create", TargetNormalization: TargetNormalizationSlug}
	assert.Equal(t, clan.NormalizeTarget("Elite Squad"), clan.NormalizeTarget("elite-squad"))
	assert.Equal(t, "", clan.NormalizeTarget("   "))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1", want: 1_000_000_000},
		{in: "10", want: 10_000_000_000},
		{in: "0.5", want: 500_000_000},
		{in: ".25", want: 250_000_000},
		{in: "0.000000001", want: 1},
		{in: "0", want: 0},
		{in: "0.0000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "99999999999", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in, 9)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "9", FormatAmount(9_000_000_000, 9))
	assert.Equal(t, "0.5", FormatAmount(500_000_000, 9))
	assert.Equal(t, "0.000000001", FormatAmount(1, 9))
	assert.Equal(t, "0", FormatAmount(0, 9))
	assert.Equal(t, "-1.25", FormatAmount(-1_250_000_000, 9))
	assert.Equal(t, "42", FormatAmount(42, 0))
}

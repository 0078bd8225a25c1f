package catalog

import (
	"testing"
	"time"

	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfigDefaults(t *testing.T) {
	c, err := FromConfig(config.DefaultCatalogConfig(), 9)
	require.NoError(t, err)

	vote, err := c.Lookup("vote")
	require.NoError(t, err)
	assert.Equal(t, 1, vote.FreeQuotaPerPeriod)
	assert.Equal(t, 24*time.Hour, vote.PeriodLength)
	assert.Equal(t, int64(1_000_000_000), vote.TokenCost)
	assert.False(t, vote.AllowsSelfTarget)

	clan, err := c.Lookup(" CLAN_CREATE ")
	require.NoError(t, err)
	assert.Equal(t, 0, clan.FreeQuotaPerPeriod)
	assert.Equal(t, int64(10_000_000_000), clan.TokenCost)
	assert.Equal(t, catalogdomain.TargetNormalizationSlug, clan.TargetNormalization)

	names := make([]string, 0)
	for _, kind := range c.All() {
		names = append(names, kind.Name)
	}
	assert.Equal(t, []string{"clan_create", "vote"}, names)
}

func TestLookupUnknown(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	_, err = c.Lookup("tournament_entry")
	assert.ErrorIs(t, err, catalogdomain.ErrActionNotFound)

	var nilCatalog *Catalog
	_, err = nilCatalog.Lookup("vote")
	assert.ErrorIs(t, err, catalogdomain.ErrActionNotFound)
}

func TestNewRejectsInvalidKinds(t *testing.T) {
	valid := catalogdomain.ActionKind{Name: "vote", FreeQuotaPerPeriod: 1, PeriodLength: 24 * time.Hour, TokenCost: 1}

	tests := []struct {
		name    string
		kinds   []catalogdomain.ActionKind
		wantErr error
	}{
		{
			name:    "duplicate name",
			kinds:   []catalogdomain.ActionKind{valid, valid},
			wantErr: catalogdomain.ErrDuplicateName,
		},
		{
			name:    "negative quota",
			kinds:   []catalogdomain.ActionKind{{Name: "vote", FreeQuotaPerPeriod: -1, PeriodLength: time.Hour}},
			wantErr: catalogdomain.ErrInvalidFreeQuota,
		},
		{
			name:    "zero period",
			kinds:   []catalogdomain.ActionKind{{Name: "vote", FreeQuotaPerPeriod: 1}},
			wantErr: catalogdomain.ErrInvalidPeriod,
		},
		{
			name:    "negative cost",
			kinds:   []catalogdomain.ActionKind{{Name: "vote", PeriodLength: time.Hour, TokenCost: -5}},
			wantErr: catalogdomain.ErrInvalidTokenCost,
		},
		{
			name:    "upper case name",
			kinds:   []catalogdomain.ActionKind{{Name: "Vote", PeriodLength: time.Hour}},
			wantErr: catalogdomain.ErrInvalidName,
		},
		{
			name:    "unknown normalization",
			kinds:   []catalogdomain.ActionKind{{Name: "vote", PeriodLength: time.Hour, TargetNormalization: "lower"}},
			wantErr: catalogdomain.ErrInvalidNormalization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kinds...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFromConfigRejectsBadCost(t *testing.T) {
	cfg := config.CatalogConfig{Actions: []config.ActionKindConfig{
		{Name: "vote", Period: "24h", TokenCost: "1.0000000001"},
	}}
	_, err := FromConfig(cfg, 9)
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidTokenCost)

	cfg.Actions[0].TokenCost = "1"
	cfg.Actions[0].Period = "daily"
	_, err = FromConfig(cfg, 9)
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidPeriod)
}

func TestConfigRoundTrip(t *testing.T) {
	c, err := FromConfig(config.DefaultCatalogConfig(), 9)
	require.NoError(t, err)

	rendered := c.Config(9)
	require.Len(t, rendered.Actions, 2)
	assert.Equal(t, "clan_create", rendered.Actions[0].Name)
	assert.Equal(t, "10", rendered.Actions[0].TokenCost)
	assert.Equal(t, "slug", rendered.Actions[0].NormalizeTarget)
	assert.Equal(t, "24h0m0s", rendered.Actions[1].Period)

	again, err := FromConfig(rendered, 9)
	require.NoError(t, err)
	assert.Equal(t, c.All(), again.All())
}

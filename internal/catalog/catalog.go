package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/config"
)

// Catalog is the read-only table of gated action kinds. It is built once at
// startup and exposes no mutation path.
type Catalog struct {
	kinds map[string]catalogdomain.ActionKind
	names []string
}

// New builds a catalog from explicit action kinds.
func New(kinds ...catalogdomain.ActionKind) (*Catalog, error) {
	c := &Catalog{kinds: make(map[string]catalogdomain.ActionKind, len(kinds))}
	for _, kind := range kinds {
		if err := kind.Validate(); err != nil {
			return nil, fmt.Errorf("action %q: %w", kind.Name, err)
		}
		if _, exists := c.kinds[kind.Name]; exists {
			return nil, fmt.Errorf("action %q: %w", kind.Name, catalogdomain.ErrDuplicateName)
		}
		c.kinds[kind.Name] = kind
		c.names = append(c.names, kind.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// FromConfig converts the file representation into a catalog, parsing token
// costs with the configured number of decimals.
func FromConfig(cfg config.CatalogConfig, decimals int) (*Catalog, error) {
	kinds := make([]catalogdomain.ActionKind, 0, len(cfg.Actions))
	for _, action := range cfg.Actions {
		kind, err := toActionKind(action, decimals)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", action.Name, err)
		}
		kinds = append(kinds, kind)
	}
	return New(kinds...)
}

// Provide loads the catalog configuration and builds the catalog.
func Provide(cfg config.Config) (*Catalog, error) {
	catalogCfg, err := config.LoadCatalogConfig(cfg)
	if err != nil {
		return nil, err
	}
	return FromConfig(catalogCfg, cfg.TokenDecimals)
}

// Lookup resolves an action kind by name.
func (c *Catalog) Lookup(name string) (catalogdomain.ActionKind, error) {
	if c == nil {
		return catalogdomain.ActionKind{}, catalogdomain.ErrActionNotFound
	}
	kind, ok := c.kinds[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return catalogdomain.ActionKind{}, catalogdomain.ErrActionNotFound
	}
	return kind, nil
}

// All returns every action kind sorted by name.
func (c *Catalog) All() []catalogdomain.ActionKind {
	if c == nil {
		return nil
	}
	out := make([]catalogdomain.ActionKind, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.kinds[name])
	}
	return out
}

// Config renders the catalog back into its file representation.
func (c *Catalog) Config(decimals int) config.CatalogConfig {
	kinds := c.All()
	out := config.CatalogConfig{Actions: make([]config.ActionKindConfig, 0, len(kinds))}
	for _, kind := range kinds {
		out.Actions = append(out.Actions, config.ActionKindConfig{
			Name:               kind.Name,
			FreeQuotaPerPeriod: kind.FreeQuotaPerPeriod,
			Period:             kind.PeriodLength.String(),
			TokenCost:          catalogdomain.FormatAmount(kind.TokenCost, decimals),
			AllowsSelfTarget:   kind.AllowsSelfTarget,
			NormalizeTarget:    string(kind.TargetNormalization),
		})
	}
	return out
}

func toActionKind(action config.ActionKindConfig, decimals int) (catalogdomain.ActionKind, error) {
	period, err := time.ParseDuration(strings.TrimSpace(action.Period))
	if err != nil {
		return catalogdomain.ActionKind{}, catalogdomain.ErrInvalidPeriod
	}

	cost := int64(0)
	if raw := strings.TrimSpace(action.TokenCost); raw != "" {
		cost, err = catalogdomain.ParseAmount(raw, decimals)
		if err != nil {
			return catalogdomain.ActionKind{}, catalogdomain.ErrInvalidTokenCost
		}
	}

	return catalogdomain.ActionKind{
		Name:                strings.ToLower(strings.TrimSpace(action.Name)),
		FreeQuotaPerPeriod:  action.FreeQuotaPerPeriod,
		PeriodLength:        period,
		TokenCost:           cost,
		AllowsSelfTarget:    action.AllowsSelfTarget,
		TargetNormalization: catalogdomain.TargetNormalization(strings.ToLower(strings.TrimSpace(action.NormalizeTarget))),
	}, nil
}

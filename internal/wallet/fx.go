package wallet

import (
	"fmt"

	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/clock"
	"github.com/natebag/MLG-BETA/internal/config"
	walletdomain "github.com/natebag/MLG-BETA/internal/wallet/domain"
	"github.com/natebag/MLG-BETA/internal/wallet/simulated"
	"github.com/natebag/MLG-BETA/internal/wallet/tokenservice"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("wallet",
	fx.Provide(Provide),
	fx.Provide(func(w walletdomain.Wallet) walletdomain.BalanceOracle { return w }),
	fx.Provide(func(w walletdomain.Wallet) walletdomain.BurnExecutor { return w }),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock `optional:"true"`
}

// Provide selects the wallet backend from WALLET_MODE.
func Provide(p Params) (walletdomain.Wallet, error) {
	log := p.Log.Named("wallet")
	cfg := p.Config.Wallet

	switch cfg.Mode {
	case config.WalletModeHTTP:
		client, err := tokenservice.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("token service client: %w", err)
		}
		log.Info("using token service wallet", zap.String("base_url", cfg.BaseURL))
		return client, nil
	default:
		starting, err := catalogdomain.ParseAmount(cfg.StartingBalance, p.Config.TokenDecimals)
		if err != nil {
			return nil, fmt.Errorf("SIMULATED_STARTING_BALANCE: %w", err)
		}
		if p.Config.IsProduction() {
			log.Warn("simulated wallet enabled in production; burns have no on-chain effect")
		}
		log.Info("using simulated wallet",
			zap.String("starting_balance", catalogdomain.FormatAmount(starting, p.Config.TokenDecimals)),
		)
		return simulated.New(starting, p.Clock), nil
	}
}

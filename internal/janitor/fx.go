package janitor

import (
	"context"

	"github.com/natebag/MLG-BETA/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("janitor",
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, cfg config.Config, j *Janitor) {
	if !cfg.Janitor.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go j.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

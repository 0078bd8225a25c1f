package gate

import (
	"github.com/natebag/MLG-BETA/internal/gate/events"
	"github.com/natebag/MLG-BETA/internal/gate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gate.service",
	fx.Provide(events.NewHub),
	fx.Provide(service.NewService),
)

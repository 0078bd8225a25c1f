package ledger

import (
	"github.com/natebag/MLG-BETA/internal/ledger/repository"
	"github.com/natebag/MLG-BETA/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

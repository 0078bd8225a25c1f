package quota

import (
	"errors"

	"github.com/natebag/MLG-BETA/internal/config"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"github.com/natebag/MLG-BETA/internal/quota/repository"
	"github.com/natebag/MLG-BETA/internal/quota/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("quota.tracker",
	fx.Provide(ProvideStore),
	fx.Provide(service.NewService),
)

type StoreParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

// ProvideStore selects the quota backend from QUOTA_BACKEND.
func ProvideStore(p StoreParams) (quotadomain.Store, error) {
	switch p.Config.Quota.Backend {
	case config.QuotaBackendRedis:
		if p.Redis == nil {
			return nil, errors.New("quota backend redis requires REDIS_ADDR")
		}
		return repository.NewRedisStore(p.Redis), nil
	default:
		return repository.NewSQLStore(p.DB), nil
	}
}

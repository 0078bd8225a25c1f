package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewAuthorizeLimiter),
	fx.Provide(provideLocker),
)

type lockerParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func provideLocker(p lockerParams) *Locker {
	return NewLocker(p.Redis)
}

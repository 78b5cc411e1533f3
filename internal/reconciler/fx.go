package reconciler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("reconciler",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(New),
)

// RunModule additionally starts the background sweep loop. The API-only
// deployment imports Module so the manual trigger endpoint still works.
var RunModule = fx.Module("reconciler.run",
	Module,
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, r *Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go r.RunForever(ctx)

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

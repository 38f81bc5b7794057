package mobilemoney

import (
	"context"
	"strings"

	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/airtel"
	"github.com/smallbiznis/bursar/internal/mobilemoney/adapters/mtn"
	"github.com/smallbiznis/bursar/internal/mobilemoney/repository"
	"github.com/smallbiznis/bursar/internal/mobilemoney/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mobilemoney.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(service.NewSimulator),
	fx.Provide(service.NewService),
	fx.Invoke(registerSimulatorHooks),
)

// NewRegistry builds the provider adapters. Without a callback secret every
// webhook is rejected, except in sandbox mode where signatures are skipped.
func NewRegistry(cfg config.Config) *adapters.Registry {
	secret := strings.TrimSpace(cfg.MobileMoney.CallbackSecret)
	if secret == "" && cfg.MobileMoney.Sandbox {
		return adapters.NewRegistry(mtn.Unsigned(), airtel.Unsigned())
	}
	return adapters.NewRegistry(
		mtn.New(secret),
		airtel.New(secret),
	)
}

func registerSimulatorHooks(lc fx.Lifecycle, sim *service.Simulator) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sim.Stop()
			return nil
		},
	})
}

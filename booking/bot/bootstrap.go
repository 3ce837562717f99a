package bot

import (
	"context"
	"fmt"

	"github.com/m3rciful/bookingbot/booking/appconfig"
	"github.com/m3rciful/bookingbot/booking/outbox"
	"github.com/m3rciful/bookingbot/core/bootstrap"
	corecmd "github.com/m3rciful/bookingbot/core/cmd"
)

// LoadConfig adapts appconfig.Load to the runner contract.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := appconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap initializes logging and the optional database, then wires the App.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*appconfig.Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:        cfg.CoreConfig(),
		Database:      cfg.Database,
		Migrations:    outbox.Migrations,
		MigrationsDir: outbox.MigrationsDir,
	})
	if err != nil {
		return nil, err
	}

	app, err := New(cfg, Deps{DB: res.DB})
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return app, nil
}

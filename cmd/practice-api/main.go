// Command practice-api serves the multi-tenant practice management API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nephrolytics/practice-api/app"
	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/logger"
	"github.com/nephrolytics/practice-api/modules/accounts"
	"github.com/nephrolytics/practice-api/modules/labs"
	"github.com/nephrolytics/practice-api/modules/locations"
	"github.com/nephrolytics/practice-api/modules/patients"
	"github.com/nephrolytics/practice-api/modules/payers"
	"github.com/nephrolytics/practice-api/modules/practices"
	"github.com/nephrolytics/practice-api/modules/practitioners"
	"github.com/nephrolytics/practice-api/modules/users"
	"github.com/nephrolytics/practice-api/modules/vitals"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "practice-api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize application")
		return err
	}

	if err := a.RegisterModules(
		accounts.NewModule(),
		users.NewModule(),
		practices.NewModule(),
		practitioners.NewModule(),
		patients.NewModule(),
		locations.NewModule(),
		payers.NewModule(),
		labs.NewModule(),
		vitals.NewModule(),
	); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	return a.Run(ctx)
}

// Package providers contains dependency injection providers for the Storyline daemon.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/logger"
)

// ProvideConfig provides the daemon configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Format: cfg.Logger.Format,
		Level:  logger.ParseLevel(cfg.Logger.Level),
	})

	log.Info("Starting Storyline daemon",
		"log_level", cfg.Logger.Level,
		"data_dir", cfg.Data.Dir,
		"books_dir", cfg.Library.BooksDir,
	)

	return log, nil
}

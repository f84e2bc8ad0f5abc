package protocal

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"

	"session-sync/configs"
	httpAdapter "session-sync/internal/adapters/input/http"
	"session-sync/pkg/logging"
)

// ServeHTTP func - loads config from path/env, wires the engine and serves
// the local control API until a terminate transition completes
func ServeHTTP(path, env string) error {
	configs.InitViper(path, env)
	cfg := *configs.GetViper()
	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logrus.Info(cfg.App.Env)

	engine, err := NewEngine(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Restore(ctx)
	engine.Lifecycle.Start(ctx)
	go engine.Lifecycle.Run(ctx)
	if cfg.Lifecycle.Signals {
		engine.Source.WatchSignals(ctx)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.App.Debug})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept,Authorization",
	}))

	// Input adapters (HTTP handlers)
	hdl := httpAdapter.New(engine.Repository, engine.Sync, engine.Store.IsInitialized, cfg.Backend.UserID)
	lifecycleHdl := httpAdapter.NewLifecycleHandler(engine.Source, engine.Lifecycle)
	httpAdapter.RegisterRoutes(app, hdl, lifecycleHdl)

	go func() {
		<-engine.Lifecycle.Terminated()
		logrus.Println("Gracefull shut down ...")
		if err := app.Shutdown(); err != nil {
			logrus.Println("Error when shutdown server: ", err)
		}
	}()

	logrus.Println("Listerning on port: ", cfg.App.Port)
	err = app.Listen(":" + cfg.App.Port)

	cancel()
	if closeErr := engine.Close(); closeErr != nil {
		logrus.Errorf("Failed to close store: %v", closeErr)
	}
	return err
}

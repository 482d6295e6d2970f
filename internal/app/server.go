package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/startup"
)

// NewServer builds the ops HTTP surface: health probes and metrics.
func (a *App) NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)
	e.Server.ReadTimeout = time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.Config.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(otelecho.Middleware(a.Config.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.Logger))

	a.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Serve runs the HTTP server, the Kafka consumer and the sweeper until ctx is
// cancelled, then stops them in reverse order.
func (a *App) Serve(ctx context.Context) error {
	runner := startup.New(a.Logger, a.Config.StartupMaxAttempts)

	server := a.NewServer()
	serverErrs := make(chan error, 1)
	runner.AddDependency(startup.Func{
		Name: "http",
		StartFunc: func(ctx context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", a.Config.Port)
				a.Logger.WithContext(ctx).Infof("HTTP server listening on %s", addr)
				if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErrs <- err
				}
			}()
			return nil
		},
		StopFunc: server.Shutdown,
	})

	if a.Producer != nil {
		consumer, err := kafka.NewConsumer(a.ConsumerConfig(), a.Waterfalls, a.Automation, a.Logger)
		if err != nil {
			return err
		}
		runner.AddDependency(startup.Func{
			Name:      "kafka-consumer",
			Needs:     []string{"http"},
			StartFunc: consumer.Start,
			StopFunc:  func(context.Context) error { return consumer.Stop() },
		})
	}

	if a.Config.SweeperEnabled {
		runner.AddDependency(startup.Func{
			Name:      "sweeper",
			Needs:     []string{"http"},
			StartFunc: a.Sweeper.Start,
			StopFunc:  a.Sweeper.Stop,
		})
	}

	if err := runner.Start(ctx); err != nil {
		return err
	}
	a.Health.SetReady(true)
	a.Logger.WithContext(ctx).Info("Clover is ready")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrs:
		a.Logger.WithContext(ctx).WithError(runErr).Error("HTTP server failed")
	}

	a.Health.SetReady(false)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.ShutdownTimeout)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

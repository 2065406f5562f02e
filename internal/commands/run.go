package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/maintenance"
	"github.com/vibebrowser/vibe-core/internal/mcpservice"
	"github.com/vibebrowser/vibe-core/internal/worker"
)

// minReloadGap spaces out utility-process restarts caused by settings edits.
const minReloadGap = 5 * time.Second

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the MCP service in the foreground",
	Long: `Starts the MCP utility process and keeps it supervised until interrupted.
The process is restarted automatically if it crashes. Editing the settings
file syncs the hosted servers; changes to the worker settings restart it.

Prometheus metrics are served on metrics.addr when it is set.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.WithFields(logrus.Fields{"config": a.cfgPath, "version": AppVersion}).Info("Starting Vibe MCP service")

	svc := a.mcpService()
	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start MCP service: %w", err)
	}
	defer func() { terminate(svc) }()

	if a.cfg.Metrics.Addr != "" {
		metricsSrv := metricsApp(a)
		go func() {
			if err := metricsSrv.Listen(a.cfg.Metrics.Addr); err != nil {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			if err := metricsSrv.ShutdownWithTimeout(5 * time.Second); err != nil {
				a.log.WithError(err).Warn("Metrics server did not shut down cleanly")
			}
		}()
		a.log.WithField("addr", a.cfg.Metrics.Addr).Info("Serving metrics")
	}

	chromeSvc := a.chromeService()
	sweeper, err := maintenance.NewSweeper(maintenance.Options{
		Sweep:    chromeSvc.SweepTempCopies,
		Interval: a.cfg.Chrome.SweepInterval,
		Schedule: a.cfg.Chrome.SweepSchedule,
		Recorder: a.metrics,
		Logger:   a.log,
	})
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	reloads := make(chan *config.Config, 1)
	err = config.Watch(ctx, a.cfgPath, config.DefaultDebounce, a.log, func(cfg *config.Config) {
		// Keep only the newest pending settings.
		select {
		case <-reloads:
		default:
		}
		reloads <- cfg
	})
	if err != nil {
		a.log.WithError(err).Warn("Settings will not be reloaded automatically")
	}

	limiter := rate.NewLimiter(rate.Every(minReloadGap), 1)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Shutting down")
			return nil

		case cfg := <-reloads:
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			// Prefer settings that arrived while we waited.
			select {
			case newer := <-reloads:
				cfg = newer
			default:
			}

			if !a.cfg.WorkerChanged(cfg) && svc.Status().Worker.State != worker.StateFailed {
				a.cfg = cfg
				a.log.Debug("Server changes are applied by the utility process")
				continue
			}

			a.log.Info("Restarting utility process with new settings")
			terminate(svc)
			a.cfg = cfg
			svc = a.mcpService()
			if err := svc.Initialize(ctx); err != nil {
				a.log.WithError(err).Error("Utility process failed to start with new settings")
			}
		}
	}
}

func terminate(svc *mcpservice.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), mcpservice.DefaultTerminateTimeout+time.Second)
	defer cancel()
	svc.Terminate(ctx)
}

// metricsApp serves the metrics registry at /metrics and a liveness check at
// /healthz.
func metricsApp(a *app) *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               "vibe " + AppVersion,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	srv.Use(recover.New())

	prom := fiberprometheus.NewWithRegistry(a.metrics.Registry(), "vibe", "vibe", "http", nil)
	prom.RegisterAt(srv, "/metrics")
	srv.Use(prom.Middleware)

	srv.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok\n")
	})
	return srv
}

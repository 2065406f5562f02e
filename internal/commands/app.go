package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/chrome"
	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/crypto"
	"github.com/vibebrowser/vibe-core/internal/logging"
	"github.com/vibebrowser/vibe-core/internal/mcpservice"
	"github.com/vibebrowser/vibe-core/internal/metrics"
	"github.com/vibebrowser/vibe-core/internal/profile"
	"github.com/vibebrowser/vibe-core/internal/worker"
)

// app is the composition root shared by the commands. Every service is
// constructed here and handed to its consumers explicitly.
type app struct {
	cfg     *config.Config
	cfgPath string
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	return &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		log:     logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Output: os.Stderr}),
		metrics: metrics.New(),
	}, nil
}

func (a *app) chromeService() *chrome.Service {
	return chrome.NewService(chrome.Options{
		UserDataDir: a.cfg.Chrome.UserDataDir,
		KeyCacheTTL: a.cfg.Chrome.KeyCacheTTL,
		Logger:      a.log,
		Recorder:    a.metrics,
	})
}

// workerOptions points the utility process at the same settings file so it
// hosts the same servers.
func (a *app) workerOptions() worker.Options {
	args := append([]string{}, a.cfg.Worker.Args...)
	if abs, err := filepath.Abs(a.cfgPath); err == nil {
		args = append(args, "--config", abs)
	}
	return worker.Options{
		Path:         a.cfg.WorkerPath(),
		Args:         args,
		Env:          a.cfg.WorkerEnv(),
		ReadyTimeout: a.cfg.Worker.ReadyTimeout,
		RestartDelay: a.cfg.Worker.RestartDelay,
		RetryDelay:   a.cfg.Worker.RetryDelay,
		MaxRestarts:  a.cfg.Worker.MaxRestarts,
		Logger:       a.log,
	}
}

func (a *app) mcpService() *mcpservice.Service {
	svc := mcpservice.New(mcpservice.Options{
		Worker: a.workerOptions(),
		Logger: a.log,
	})
	svc.Subscribe(a.metrics.ObserveWorker)
	svc.Subscribe(func(ev worker.Event) { logEvent(a.log, ev) })
	return svc
}

// openProfileStore opens the credential store, generating and saving a master
// key on first use.
func (a *app) openProfileStore() (*profile.Store, error) {
	if a.cfg.Profile.MasterKey == "" {
		key, err := crypto.GenerateMasterKey()
		if err != nil {
			return nil, err
		}
		a.cfg.Profile.MasterKey = key
		if err := config.Save(a.cfg, a.cfgPath); err != nil {
			return nil, fmt.Errorf("failed to save generated master key: %w", err)
		}
		a.log.WithField("config", a.cfgPath).Info("Generated profile master key")
	}

	enc, err := crypto.NewEncryptionService(a.cfg.Profile.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid profile master key: %w", err)
	}
	return profile.Open(a.cfg.Profile.DBPath, enc, a.log)
}

func logEvent(log logrus.FieldLogger, ev worker.Event) {
	entry := log.WithFields(logrus.Fields{"component": "events", "event": ev.Kind})
	if ev.PID != 0 {
		entry = entry.WithField("pid", ev.PID)
	}
	if ev.RestartCount != 0 {
		entry = entry.WithField("restart_count", ev.RestartCount)
	}

	switch ev.Kind {
	case worker.EventError:
		entry.WithError(ev.Err).Error("Utility process failed")
	case worker.EventDisconnected:
		entry.WithField("exit_code", ev.ExitCode).Warn("Utility process disconnected")
	case worker.EventServerStatus:
		entry.Debug("Server status updated")
	default:
		entry.Info("Utility process event")
	}
}

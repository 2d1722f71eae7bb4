package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tunerd/internal/common/fsutil"
	"tunerd/internal/config"
	"tunerd/internal/httpapi"
	"tunerd/internal/identity"
	"tunerd/internal/store"
	"tunerd/internal/trainer"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultConfig seeds the configuration from environment variables.
func defaultConfig() config.Config {
	cfg := config.Config{
		Addr:        ":8090",
		ModelsDir:   "~/models/llm",
		AdaptersDir: "~/.tunerd/adapters",
		PythonBin:   "python3",
		ScriptsDir:  "scripts",
		LogLevel:    "info",
	}
	env := config.Config{
		Addr:        os.Getenv("TUNERD_ADDR"),
		ModelsDir:   os.Getenv("TUNERD_MODELS_DIR"),
		AdaptersDir: os.Getenv("TUNERD_ADAPTERS_DIR"),
		PythonBin:   os.Getenv("TUNERD_PYTHON"),
		ScriptsDir:  os.Getenv("TUNERD_SCRIPTS_DIR"),
		WorkDir:     os.Getenv("TUNERD_WORK_DIR"),
		LogLevel:    os.Getenv("TUNERD_LOG_LEVEL"),
	}
	return cfg.Merge(env)
}

func buildRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "tunerd",
		Short:         "LoRA fine-tuning service for local language models",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			if cfgPath != "" {
				fileCfg, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				cfg = cfg.Merge(fileCfg)
			}
			cfg = cfg.Merge(flagOverrides(cmd))
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "Path to a yaml/json/toml config file")
	root.Flags().String("addr", "", "HTTP listen address, e.g. :8090")
	root.Flags().String("models-dir", "", "Directory scanned for base models")
	root.Flags().String("adapters-dir", "", "Directory for stored adapters")
	root.Flags().String("python", "", "Python interpreter for training backends")
	root.Flags().String("scripts-dir", "", "Directory containing backend scripts")
	root.Flags().String("work-dir", "", "Scratch parent for training output")
	root.Flags().Bool("keep-output", false, "Preserve training scratch dirs")
	root.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	root.Flags().StringSlice("cors-origin", nil, "Allowed CORS origin (repeatable)")
	return root
}

// flagOverrides maps explicitly passed flags onto a Config overlay.
func flagOverrides(cmd *cobra.Command) config.Config {
	var cfg config.Config
	f := cmd.Flags()
	cfg.Addr, _ = f.GetString("addr")
	cfg.ModelsDir, _ = f.GetString("models-dir")
	cfg.AdaptersDir, _ = f.GetString("adapters-dir")
	cfg.PythonBin, _ = f.GetString("python")
	cfg.ScriptsDir, _ = f.GetString("scripts-dir")
	cfg.WorkDir, _ = f.GetString("work-dir")
	cfg.KeepOutput, _ = f.GetBool("keep-output")
	cfg.LogLevel, _ = f.GetString("log-level")
	cfg.CORSOrigins, _ = f.GetStringSlice("cors-origin")
	return cfg
}

func run(cfg config.Config) error {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()

	modelsDir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return err
	}
	adaptersDir, err := fsutil.ExpandHome(cfg.AdaptersDir)
	if err != nil {
		return err
	}
	scriptsDir, err := fsutil.ExpandHome(cfg.ScriptsDir)
	if err != nil {
		return err
	}

	st, err := store.New(adaptersDir, log)
	if err != nil {
		return fmt.Errorf("opening adapter store: %w", err)
	}
	hub := identity.NewHubClient(cfg.HubEndpoint, cfg.HubToken)
	ids := identity.NewRegistry(hub, log)
	tr := trainer.New(trainer.Config{
		PythonBin:  cfg.PythonBin,
		ScriptsDir: scriptsDir,
		ModelsDir:  modelsDir,
		WorkDir:    cfg.WorkDir,
		KeepOutput: cfg.KeepOutput,
	}, st, ids, log)

	// Canceled on shutdown so in-flight training streams stop too.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	api := httpapi.NewServer(st, tr, ids, httpapi.Options{
		ModelsDir:   modelsDir,
		BaseContext: baseCtx,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: api.Routes()}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).
			Str("models_dir", modelsDir).
			Str("adapters_dir", adaptersDir).
			Msg("tunerd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

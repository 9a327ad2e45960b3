package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/craftvisor"
	"github.com/loykin/craftvisor/internal/logger"
	"github.com/loykin/craftvisor/internal/server"
	itls "github.com/loykin/craftvisor/internal/tls"
)

// httpDrainTimeout bounds graceful HTTP shutdown; open /events streams are cut
// after it.
const httpDrainTimeout = 3 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the craftvisor daemon",
		Long: `Run the daemon: supervisor, HTTP control API, metrics and history.
SIGINT or SIGTERM stops the game server before the daemon exits.

Examples:
  craftvisor serve                          # defaults, ./server as server dir
  craftvisor serve craftvisor.toml --start  # also start the game server
  craftvisor serve craftvisor.toml --daemonize --pidfile=/run/craftvisor.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file when daemonized")
	cmd.Flags().BoolVar(&serveFlags.AutoStart, "start", false, "start the game server once the daemon is up")
	return cmd
}

func runServe(parent context.Context, configPath string, flags *ServeFlags) error {
	cfg, err := craftvisor.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log, closer := logger.New(cfg.LoggerConfig())
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	app, err := craftvisor.New(cfg, log)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		if err := app.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		go func() {
			log.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := craftvisor.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}
	app.StartSampler(ctx)

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.HTTP.Enabled {
		var tlsConf *tls.Config
		if t := cfg.HTTP.TLS; t.Enabled {
			tlsConf, err = itls.Setup(itls.Options{
				CertFile:     t.CertFile,
				KeyFile:      t.KeyFile,
				Dir:          t.Dir,
				AutoGenerate: t.AutoGenerate,
				Hosts:        t.Hosts,
			})
			if err != nil {
				_ = app.Close(context.Background())
				return fmt.Errorf("tls: %w", err)
			}
		}
		srv = server.NewServer(cfg.HTTP.Listen, app.Handler(cfg.HTTP.BasePath), tlsConf)
		go func() {
			scheme := "http"
			if tlsConf != nil {
				scheme = "https"
			}
			log.Info("control API listening", "url", scheme+"://"+cfg.HTTP.Listen+cfg.HTTP.BasePath)
			var err error
			if tlsConf != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if flags.AutoStart {
		if err := app.Start(ctx); err != nil {
			log.Warn("auto start failed", "error", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("control API failed", "error", runErr)
	}
	return errors.Join(runErr, shutdown(app, srv, cfg.StopTimeout))
}

// shutdown stops the game server first so players see a clean stop, then the
// HTTP listener.
func shutdown(app *craftvisor.App, srv *http.Server, stopTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout+httpDrainTimeout)
	defer cancel()
	err := app.Close(ctx)
	if srv == nil {
		return err
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), httpDrainTimeout)
	defer drainCancel()
	if serr := srv.Shutdown(drainCtx); serr != nil {
		_ = srv.Close()
	}
	return err
}

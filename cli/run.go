package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ankit-chaubey/flacgrab/core/config"
	"github.com/ankit-chaubey/flacgrab/core/grab"
	"github.com/ankit-chaubey/flacgrab/core/volumio"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	ConfigPath string
	Mode       string
	Listen     string
	Callback   string
	Interval   time.Duration
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [volumio-url] [destination]",
		Short: "Watch the player and grab every qualifying track it plays",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if len(args) >= 1 {
				cfg.VolumioURL = args[0]
			}
			if len(args) >= 2 {
				cfg.Destination = args[1]
			}
			flags := cmd.Flags()
			if flags.Changed("mode") {
				cfg.Mode = opts.Mode
			}
			if flags.Changed("listen") {
				cfg.Listen = opts.Listen
			}
			if flags.Changed("callback-url") {
				cfg.CallbackURL = opts.Callback
			}
			if flags.Changed("interval") {
				cfg.PollInterval = opts.Interval
			}
			if !flags.Changed("log-level") && cfg.LogLevel != "" {
				if err := setupLogging(cfg.LogLevel); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.Mode, "mode", config.ModePoll, "How player states are received: poll or push")
	cmd.Flags().StringVar(&opts.Listen, "listen", config.DefaultListen, "Listen address of the push receiver")
	cmd.Flags().StringVar(&opts.Callback, "callback-url", "", "URL registered with Volumio for push notifications")
	cmd.Flags().DurationVar(&opts.Interval, "interval", config.DefaultPollInterval, "Poll interval")
	return cmd
}

func runDaemon(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	client := volumio.NewClient(cfg.VolumioURL, cfg.HTTPTimeout, logger)
	grabber := grab.New(cfg.GrabOptions(), grab.NewFetcher(cfg.HTTPTimeout), logger)
	defer grabber.Wait()

	logger.Info("flacgrab started",
		"volumio", cfg.VolumioURL,
		"destination", cfg.Destination,
		"mode", cfg.Mode,
		"max_parallel", cfg.MaxParallel)

	if cfg.Mode == config.ModePoll {
		err := client.Watch(ctx, cfg.PollInterval, grabber.HandleState)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return servePush(ctx, cfg, client, grabber)
}

// servePush receives state notifications until ctx is done.
func servePush(ctx context.Context, cfg config.Config, client *volumio.Client, grabber *grab.Grabber) error {
	gin.SetMode(gin.ReleaseMode)
	handler := volumio.NewPushHandler(ctx, grabber.HandleState, grabber, slog.Default())
	srv := &http.Server{Addr: cfg.Listen, Handler: handler.Router()}

	errc := make(chan error, 1)
	go func() {
		slog.Info("push receiver listening", "addr", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	if cfg.CallbackURL != "" {
		if err := client.RegisterPushURL(ctx, cfg.CallbackURL); err != nil {
			slog.Warn("could not register push URL", "error", err)
		}
	}
	// The current state is not pushed until it changes.
	if s, err := client.GetState(ctx); err == nil {
		grabber.HandleState(ctx, s)
	} else {
		slog.Warn("could not read initial state", "error", err)
	}

	select {
	case err := <-errc:
		return fmt.Errorf("push receiver: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// quantum-fox serves the Alpaca trading dashboard
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/candles"
	"github.com/rileyseaburg/quantum-fox/config"
	"github.com/rileyseaburg/quantum-fox/dashboard"
	"github.com/rileyseaburg/quantum-fox/logging"
	"github.com/rileyseaburg/quantum-fox/signal"
)

var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// options are the flags shared by every command
type options struct {
	configPath string
	listen     string
	provider   string
	exitMode   string
	logLevel   string

	cfg       *config.Config
	logCloser io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "quantum-fox",
		Short: "Alpaca trading dashboard",
		Long: `quantum-fox serves a single-page dashboard with a candlestick chart,
an SMA crossover signal and an order panel for Alpaca paper or live accounts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	flags.StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides config)")
	flags.StringVar(&opts.provider, "provider", "", "Market data provider: yahoo or alpaca")
	flags.StringVar(&opts.exitMode, "exit-mode", "", "Take profit / stop loss submission: independent or oco")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(signalCmd(opts))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	if o.provider != "" {
		cfg.Data.Provider = o.provider
	}
	if o.exitMode != "" {
		cfg.Orders.ExitMode = o.exitMode
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	closer, err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logCloser = closer
	return nil
}

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func signalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "signal SYMBOL",
		Short: "Print the SMA20/SMA50 crossover signal for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			provider := newProviderFactory(cfg)(cfg.DefaultCredentials(broker.Paper))

			series, err := provider.Candles(cmd.Context(), candles.Request{
				Symbol:   args[0],
				Period:   cfg.Signal.Period,
				Interval: cfg.Signal.Interval,
			})
			if err != nil {
				return err
			}

			res, err := signal.FromSeries(series)
			if err != nil {
				return fmt.Errorf("%s: %w", series.Symbol, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (SMA20=%.2f SMA50=%.2f)\n", series.Symbol, res.Signal, res.Short, res.Long)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quantum-fox version %s\n", version)
		},
	}
}

// newProviderFactory returns the per-request market-data provider. The Yahoo
// client is stateless and shared; Alpaca needs the caller's keys, so it falls
// back to Yahoo when none are available.
func newProviderFactory(cfg *config.Config) dashboard.ProviderFactory {
	yahoo := candles.NewYahoo(cfg.Data.YahooBaseURL, cfg.Data.Timeout)
	if cfg.Data.Provider != "alpaca" {
		return func(broker.Credentials) candles.Provider { return yahoo }
	}
	return func(creds broker.Credentials) candles.Provider {
		if creds.Empty() {
			return yahoo
		}
		return candles.NewAlpaca(creds.APIKey, creds.APISecret, cfg.Data.AlpacaFeed)
	}
}

func newHandler(cfg *config.Config) http.Handler {
	renderer := dashboard.NewRenderer(dashboard.Options{
		Connect:            broker.Connect,
		Provider:           newProviderFactory(cfg),
		ExitMode:           cfg.ExitMode(),
		SignalPeriod:       cfg.Signal.Period,
		SignalInterval:     cfg.Signal.Interval,
		DefaultCredentials: cfg.DefaultCredentials,
	})

	mux := http.NewServeMux()
	dashboard.NewHandler(renderer, cfg.AllowedOrigins...).RegisterRoutes(mux)
	return mux
}

func runServe(ctx context.Context, opts *options) error {
	cfg := opts.cfg
	ctx, stop := ossignal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.PaperCredentials.Empty() {
		log.Info("Paper trading keys loaded from environment")
	}
	if !cfg.LiveCredentials.Empty() {
		log.Warn("Live trading keys loaded from environment")
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"listen":    cfg.Listen,
			"provider":  cfg.Data.Provider,
			"exit_mode": cfg.Orders.ExitMode,
		}).Info("Starting HTTP server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

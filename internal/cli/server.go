package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bleepstore/bleepstore/internal/config"
	"github.com/bleepstore/bleepstore/internal/server"
)

var (
	configFile      string
	bind            string
	logLevel        string
	logFormat       string
	shutdownTimeout int
	maxObjectSize   int64
)

// NewServerCmd creates the server command.
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the S3-compatible server",
		Long:  "Start the BleepStore server that provides S3-compatible API endpoints.",
		RunE:  runServer,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&bind, "bind", "", "bind address as HOST:PORT")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	cmd.Flags().IntVar(&shutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout in seconds")
	cmd.Flags().Int64Var(&maxObjectSize, "max-object-size", 0, "maximum object size in bytes")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override file and environment settings.
	if bind != "" {
		host, portStr, err := net.SplitHostPort(bind)
		if err != nil {
			return fmt.Errorf("invalid --bind value %q: %w", bind, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --bind port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if shutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = shutdownTimeout
	}
	if maxObjectSize > 0 {
		cfg.Server.MaxObjectSize = maxObjectSize
	}

	setupLogging(cfg.Logging)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("region", cfg.Server.Region).
		Str("metadata", cfg.Metadata.Backend).
		Str("storage", cfg.Storage.Backend).
		Msg("Starting BleepStore server")

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		if err := srv.Shutdown(); err != nil {
			// Drain deadline passed; the next startup recovers.
			log.Error().Err(err).Msg("Forced shutdown")
			os.Exit(1)
		}
		return nil
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" || cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

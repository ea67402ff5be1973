// Command wcommd is the WiFi commissioning daemon: it wires a
// wifi.Backend to a commissioning.CommissioningService and serves it
// over the BLE GATT adapter and/or the Unix-socket JSON-RPC front-end
// per §6's CLI surface, the way haasonsaas-vouch/agent's main wires
// config.Load, a zerolog sink, and its own long-running loop behind a
// single root command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wcommd/internal/ble"
	"wcommd/internal/commissioning"
	wconfig "wcommd/internal/config"
	"wcommd/internal/jsonrpc"
	"wcommd/internal/wifi/mock"
)

// defaultAdapterPath is the BlueZ adapter object wcommd registers its
// GATT application against. §6's CLI surface fixes --interface as the
// WiFi interface the supplicant drives, not the Bluetooth adapter, so
// this is not independently flag-controlled; a device with more than
// one Bluetooth controller can still override it via $WCOMMD_BLE_ADAPTER.
const defaultAdapterPath = "/org/bluez/hci0"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a startup failure to §6/§7's exit codes: argument
// errors (cobra's own flag parsing) exit 2, everything else that
// reaches here is a startup failure and exits 1. A clean shutdown never
// reaches main's error path at all (RunE returns nil).
func exitCodeFor(err error) int {
	if _, ok := err.(*argError); ok {
		return 2
	}
	return 1
}

type argError struct{ error }

type cliFlags struct {
	configPath string
	iface      string
	bleSecret  string
	enableBLE  bool
	enableSock bool
	socketPath string
	socketMode string
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:           "wcommd",
		Short:         "WiFi commissioning daemon",
		Long:          "wcommd accepts authenticated BLE GATT or local Unix-socket requests to scan for WiFi access points and commission credentials against the local supplicant.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&flags.iface, "interface", "", "WiFi interface the supplicant drives (overrides config)")
	root.PersistentFlags().StringVar(&flags.bleSecret, "ble-secret", "", "shared secret SHA3-256(secret) is checked against (overrides config)")
	root.PersistentFlags().BoolVar(&flags.enableBLE, "enable-ble", false, "serve the BLE GATT transport")
	root.PersistentFlags().BoolVar(&flags.enableSock, "enable-unix-socket", false, "serve the Unix-socket JSON-RPC transport")
	root.PersistentFlags().StringVar(&flags.socketPath, "socket-path", "", "Unix socket path (overrides config)")
	root.PersistentFlags().StringVar(&flags.socketMode, "socket-mode", "", "octal file mode for the Unix socket, e.g. 0660 (overrides config)")

	return root
}

// resolve merges cliFlags over the loaded config file, flags winning
// per the doc comment on config.Config.
func resolve(flags cliFlags) (*wconfig.Config, error) {
	cfg, err := wconfig.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.iface != "" {
		cfg.Interface = flags.iface
	}
	if flags.bleSecret != "" {
		cfg.BLESecret = flags.bleSecret
	}
	if flags.enableBLE {
		cfg.EnableBLE = true
	}
	if flags.enableSock {
		cfg.EnableUnixSocket = true
	}
	if flags.socketPath != "" {
		cfg.SocketPath = flags.socketPath
	}
	if flags.socketMode != "" {
		mode, err := strconv.ParseUint(flags.socketMode, 8, 32)
		if err != nil {
			return nil, &argError{fmt.Errorf("--socket-mode: %w", err)}
		}
		cfg.SocketMode = uint32(mode)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg wconfig.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Str("daemon", "wcommd").Logger()
}

// run wires the commissioning core against a backend and the enabled
// transports, then blocks until a termination signal arrives, draining
// outstanding engine work with a bounded grace period before returning
// (§5's two-phase shutdown drain). It never aborts an in-flight
// backend call itself — ScanEngine/ConnectEngine already detach their
// backend calls from any caller context, so the grace period here only
// bounds how long main waits for the transports to stop accepting new
// work, not how long a connect already in flight is allowed to run.
func run(ctx context.Context, flags cliFlags) error {
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging)
	log.Info().Str("version", version).Str("interface", cfg.Interface).Msg("wcommd starting")

	backend := mock.New()

	service := commissioning.NewCommissioningService(backend, commissioning.Config{
		Secret:         cfg.BLESecret,
		ScanTimeout:    time.Duration(cfg.ScanTimeoutS) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutS) * time.Second,
	}, log)

	var stoppers []func() error

	if cfg.EnableBLE {
		adapterPath := defaultAdapterPath
		if v := os.Getenv("WCOMMD_BLE_ADAPTER"); v != "" {
			adapterPath = v
		}
		bleServer := ble.NewServer(service, adapterPath, log)
		runCtx, cancel := context.WithCancel(ctx)
		if err := bleServer.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("ble: start: %w", err)
		}
		log.Info().Str("adapter", adapterPath).Msg("BLE GATT transport listening")
		stoppers = append(stoppers, func() error { cancel(); return bleServer.Stop() })
	}

	if cfg.EnableUnixSocket {
		sockServer := jsonrpc.NewServer(service, cfg.SocketPath, os.FileMode(cfg.SocketMode), log)
		runCtx, cancel := context.WithCancel(ctx)
		if err := sockServer.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("jsonrpc: start: %w", err)
		}
		stoppers = append(stoppers, func() error { cancel(); return sockServer.Stop() })
	}

	notifyReady(log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received, draining")

	grace := time.Duration(cfg.ShutdownGraceS) * time.Second
	drainCtx, drainCancel := context.WithTimeout(context.Background(), grace)
	defer drainCancel()

	var g errgroup.Group
	for i := len(stoppers) - 1; i >= 0; i-- {
		stop := stoppers[i]
		g.Go(stop)
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Msg("error stopping transport")
		}
		log.Info().Msg("clean shutdown")
	case <-drainCtx.Done():
		log.Warn().Dur("grace", grace).Msg("shutdown grace period elapsed, exiting anyway")
	}
	return nil
}

// notifyReady is the daemon's service-manager readiness hook. §1 names
// this a thin collaborator specified only by its boundary contract; a
// real deployment wires sd_notify(READY=1) here. This core logs instead
// so the daemon runs the same way under any init system.
func notifyReady(log zerolog.Logger) {
	log.Debug().Msg("ready")
}

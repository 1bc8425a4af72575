package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/api"
	"github.com/Riboost-Studio/pos-print-bridge/internal/backend"
	"github.com/Riboost-Studio/pos-print-bridge/internal/config"
	"github.com/Riboost-Studio/pos-print-bridge/internal/logger"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/services"
	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

const appVersion = "1.0.0"

const usage = `POS Print Bridge %s

Usage:
  print-bridge <command> [flags]

Commands:
  serve                    run the loopback API
  print <ref>              print the receipt of a transaction (--outlet)
  resolve <outlet>         show the printer an outlet resolves to
  scan                     list printers visible to the agent (--persist)
  set-default <printer>    cache the default printer
  login                    store the backend bearer token (read from stdin)

Every command accepts --config <file>.
`

// --- Main ---

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprintf(stderr, usage, appVersion)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	cmd, rest := args[0], args[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to the TOML config file")

	var handler func(context.Context, *app, []string) error
	switch cmd {
	case "serve":
		handler = serve
	case "print":
		outlet := fs.String("outlet", "", "outlet whose registered printer should be used")
		handler = func(ctx context.Context, a *app, args []string) error { return printReceipt(ctx, a, args, *outlet) }
	case "resolve":
		handler = resolve
	case "scan":
		persist := fs.Bool("persist", false, "cache the first discovered printer as default")
		handler = func(ctx context.Context, a *app, _ []string) error { return scan(ctx, a, *persist) }
	case "set-default":
		handler = setDefault
	case "login":
		handler = func(ctx context.Context, a *app, _ []string) error { return login(ctx, a, stdin) }
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fmt.Fprintf(stderr, usage, appVersion)
		return 2
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	a, err := setup(*configPath, stdout)
	if err != nil {
		fmt.Fprintln(stderr, "Config error:", err)
		return 1
	}
	defer a.close()

	if err := handler(ctx, a, fs.Args()); err != nil {
		a.logger.Debug("command failed", zap.String("command", cmd), zap.Error(err))
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

// app is one wired bridge process.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       store.Store
	credentials *backend.Credentials
	bridge      *services.Bridge
	out         io.Writer
}

func setup(configPath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log = log.With(zap.String("app", cfg.App.Name), zap.String("version", appVersion))

	s, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}

	creds := backend.NewCredentials(s, log.Named("credentials"))
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, creds, log.Named("backend"))
	loader := &agent.WebsocketLoader{
		URL:              cfg.Agent.URL,
		Probe:            cfg.Agent.Probe,
		HandshakeTimeout: cfg.Agent.HandshakeTimeout,
		Logger:           log.Named("agent"),
	}

	return &app{
		cfg:         cfg,
		logger:      log,
		store:       s,
		credentials: creds,
		bridge:      services.NewBridge(s, client, loader, model.ReceiptFormat(cfg.Backend.ReceiptFormat), log),
		out:         out,
	}, nil
}

func (a *app) close() {
	if err := a.bridge.Close(); err != nil {
		a.logger.Debug("failed to close agent connection", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func serve(ctx context.Context, a *app, _ []string) error {
	h := api.NewHandler(a.bridge.Dispatcher, a.bridge.Resolver, a.bridge.Connections)
	router := api.NewRouter(h, api.Options{
		AllowOrigins: a.cfg.API.AllowOrigins,
		Gatherer:     a.bridge.Metrics.Registry(),
		Logger:       a.logger.Named("api"),
	})

	// Warm up the agent connection; failures are retried on the first job.
	if err := a.bridge.Connections.EnsureConnected(ctx); err != nil {
		a.logger.Warn("print agent not reachable yet", zap.Error(err))
	}

	a.logger.Info("--- Print bridge running ---", zap.String("addr", a.cfg.API.Addr))
	return api.Serve(ctx, a.cfg.API.Addr, router, a.logger)
}

func printReceipt(ctx context.Context, a *app, args []string, outlet string) error {
	if len(args) != 1 {
		return errors.New("usage: print <transaction-ref> [--outlet <id>]")
	}
	if err := a.bridge.Dispatcher.PrintReceipt(ctx, args[0], outlet); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Receipt %s sent to printer.\n", args[0])
	return nil
}

func resolve(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: resolve <outlet-id>")
	}
	printer, ok := a.bridge.Resolver.ResolveForOutlet(ctx, args[0])
	if !ok {
		return fmt.Errorf("no printer registered or cached for outlet %s", args[0])
	}
	fmt.Fprintln(a.out, printer)
	return nil
}

func scan(ctx context.Context, a *app, persist bool) error {
	printers := a.bridge.Resolver.Scan(ctx, persist)
	if len(printers) == 0 {
		return errors.New("no printers found; is the print agent running?")
	}
	for _, p := range printers {
		fmt.Fprintln(a.out, p)
	}
	if persist {
		fmt.Fprintf(a.out, "Default printer set to %s.\n", printers[0])
	}
	return nil
}

func setDefault(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: set-default <printer>")
	}
	if err := a.bridge.Resolver.SetDefault(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to save default printer: %w", err)
	}
	fmt.Fprintf(a.out, "Default printer set to %s.\n", args[0])
	return nil
}

func login(ctx context.Context, a *app, in io.Reader) error {
	fmt.Fprint(a.out, "Enter backend API token: ")
	token, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := a.credentials.SetToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	fmt.Fprintln(a.out, "Token saved.")
	return nil
}

// describe turns bridge errors into messages a cashier can act on.
func describe(err error) string {
	_, code := api.ErrorStatus(err)
	switch code {
	case api.CodeNoPrinterConfigured:
		return "no printer configured; register one for the outlet or run 'scan --persist'"
	case api.CodeReceiptUnavailable:
		return "receipt not available from the backend; try again shortly (" + err.Error() + ")"
	case api.CodeAgentUnavailable:
		return "print agent is not installed or not running (" + err.Error() + ")"
	case api.CodeAgentConnectionFailed:
		return "could not connect to the print agent (" + err.Error() + ")"
	default:
		return err.Error()
	}
}

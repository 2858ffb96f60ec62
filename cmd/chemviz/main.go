package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"chemviz/internal/api"
	"chemviz/internal/config"
	"chemviz/internal/crypto"
	"chemviz/internal/dashboard"
	"chemviz/internal/db"
	"chemviz/internal/events"
	"chemviz/internal/handlers"
	"chemviz/internal/notify"
	"chemviz/internal/session"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitExpired = 3
)

var (
	errUsage       = errors.New("usage")
	errNotSignedIn = errors.New("not signed in, run `chemviz login` first")
	errRejected    = errors.New("the backend rejected these credentials")
)

// notificationHistoryKeep bounds the notification_history table.
const notificationHistoryKeep = 500

type command struct {
	run   func(ctx context.Context, a *app, args []string) error
	usage string
}

var commands = map[string]command{
	"login":   {cmdLogin, "sign in and load the latest dataset"},
	"logout":  {cmdLogout, "forget the stored credentials"},
	"status":  {cmdStatus, "show session and configuration"},
	"history": {cmdHistory, "list recent uploads"},
	"summary": {cmdSummary, "show a dataset summary and its equipment"},
	"upload":  {cmdUpload, "upload an equipment CSV"},
	"report":  {cmdReport, "download the PDF report"},
	"export":  {cmdExport, "export visible equipment rows (csv, xlsx, json, yaml)"},
	"tui":     {cmdTUI, "open the terminal dashboard"},
	"serve":   {cmdServe, "serve the web dashboard"},
	"notify":  {cmdNotify, "send a test notification or list notification history"},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("chemviz", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Show version")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *showVersion {
		fmt.Printf("chemviz %s\n", handlers.Version)
		return exitOK
	}
	if fs.NArg() == 0 {
		usage(fs)
		return exitUsage
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage(fs)
		return exitUsage
	}

	a, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return exitFailure
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return exitCode(cmd.run(ctx, a, fs.Args()[1:]))
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: chemviz [-config path] <command> [flags]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, "\nGlobal flags:")
	fs.PrintDefaults()
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, api.ErrAuthExpired), errors.Is(err, errNotSignedIn), errors.Is(err, errRejected):
		fmt.Fprintf(os.Stderr, "🔒 %v\n", err)
		return exitExpired
	default:
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return exitFailure
	}
}

// app holds the wired client shared by every command.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	session  *session.Manager
	client   *api.Client
	bus      *events.Bus
	state    *dashboard.State
	registry *prometheus.Registry
	notifier *notify.Dispatcher
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.InitLogger(cfg.LogLevel, os.Stderr)

	conn, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	var store session.Storage = session.NewSQLStore(conn)
	if cfg.SealToken {
		key, err := crypto.LoadOrGenerate(cfg.KeyPath())
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("token key: %w", err)
		}
		store = session.NewSealedStore(store, key)
	}
	mgr := session.NewManager(store)

	registry := prometheus.NewRegistry()
	client := api.NewClient(cfg.APIBase, mgr, mgr.Expire,
		api.WithTimeout(cfg.Timeout),
		api.WithMetrics(api.NewMetrics(registry)),
		api.WithUserAgent("chemviz/"+handlers.Version),
	)

	bus := events.NewBus()
	state := dashboard.New(mgr, client, bus)

	if err := notify.ValidateTargets(cfg.Notify.URLs); err != nil {
		conn.Close()
		return nil, err
	}
	notifier := notify.NewDispatcher(conn, bus, nil, notify.OptionsFromConfig(cfg.Notify))
	if notifier.Enabled() {
		if n, err := notify.PruneHistory(conn, notificationHistoryKeep); err != nil {
			config.Logger.Warnf("notify: prune history: %v", err)
		} else if n > 0 {
			config.Logger.Debugf("notify: pruned %d history rows", n)
		}
	}
	notifier.Start()

	config.Logger.Debugf("Backend: %s, data dir: %s", cfg.APIBase, cfg.DataDir)
	return &app{
		cfg:      cfg,
		db:       conn,
		session:  mgr,
		client:   client,
		bus:      bus,
		state:    state,
		registry: registry,
		notifier: notifier,
	}, nil
}

func (a *app) close() {
	a.notifier.Stop()
	if err := a.db.Close(); err != nil {
		config.Logger.Warnf("db close: %v", err)
	}
}

func (a *app) requireSession() error {
	if !a.session.Authenticated() {
		return errNotSignedIn
	}
	return nil
}

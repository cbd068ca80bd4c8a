// countrysync keeps a local, offline copy of the world country list. The first
// run downloads the list once from the REST Countries API; later runs read
// only the local database.
//
// Usage:
//
//	countrysync setup                            # interactive first-run wizard
//	countrysync sync [--config <path>]           # activate once, download if empty
//	countrysync list [--query q] [--favorites]   # print the (filtered) list
//	countrysync show <name|code>                 # details plus neighbors
//	countrysync favorite <name|code>             # toggle a favorite
//	countrysync status                           # config and database state
//	countrysync reset [--yes]                    # clear the local database
//	countrysync version                          # print version
//
// Settings can be overridden with COUNTRYSYNC_ENDPOINT,
// COUNTRYSYNC_REQUEST_TIMEOUT and COUNTRYSYNC_DB_PATH, either in the
// environment or in a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/countrysync/internal/config"
	"github.com/njoerd114/countrysync/internal/model"
	"github.com/njoerd114/countrysync/internal/restcountries"
	"github.com/njoerd114/countrysync/internal/setup"
	"github.com/njoerd114/countrysync/internal/state"
	syncp "github.com/njoerd114/countrysync/internal/sync"
	"github.com/njoerd114/countrysync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "setup":
		return runSetup(args)
	case "sync":
		return runSync(args)
	case "list":
		return runList(args)
	case "show":
		return runShow(args)
	case "favorite":
		return runFavorite(args)
	case "status":
		return runStatus(args)
	case "reset":
		return runReset(args)
	case "version":
		fmt.Println("countrysync", version)
		return nil
	case "help", "-h", "--help":
		return printUsage()
	}

	return fmt.Errorf("unknown command %q, run 'countrysync' for usage", cmd)
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "countrysync: offline country reference data")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  countrysync setup                       Interactive first-run wizard")
	fmt.Fprintln(os.Stderr, "  countrysync sync [--config ...]         Load local data, download if empty")
	fmt.Fprintln(os.Stderr, "  countrysync list [--query q] [--favorites]")
	fmt.Fprintln(os.Stderr, "                                          Print countries")
	fmt.Fprintln(os.Stderr, "  countrysync show <name|code>            Country details and neighbors")
	fmt.Fprintln(os.Stderr, "  countrysync favorite <name|code>        Toggle a favorite")
	fmt.Fprintln(os.Stderr, "  countrysync status                      Show config and database state")
	fmt.Fprintln(os.Stderr, "  countrysync reset [--yes]               Clear the local database")
	fmt.Fprintln(os.Stderr, "  countrysync version                     Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintln(os.Stderr, "No config file found; defaults will be used. Run 'countrysync setup' to customise.")
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Shared wiring -----------------------------------------------------------

// commonFlags registers the flags every data command accepts.
type commonFlags struct {
	config  *string
	verbose *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	return fs, commonFlags{
		config:  fs.String("config", defaultCfg, "path to config.yaml"),
		verbose: fs.Bool("verbose", false, "enable debug logging"),
	}
}

// app bundles the components a data command needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *state.Store
	orch      *syncp.Orchestrator
	neighbors *syncp.NeighborResolver
	close     func()
}

// openApp loads configuration, starts optional telemetry, opens the store and
// wires the orchestrator. The caller must call app.close.
func openApp(flags commonFlags) (*app, error) {
	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelWarn
	if *flags.verbose {
		logLevel = slog.LevelDebug
	}
	handler := telemetry.NewSlogHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}),
	)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(*flags.config)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", *flags.config, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	logger.Debug("config loaded",
		"endpoint", cfg.Endpoint,
		"request_timeout", cfg.RequestTimeout,
		"db_path", cfg.DBPath,
	)

	// --- Telemetry (optional) ------------------------------------------------

	shutdownTel := func() {}
	if telCfg, ok := telemetry.FromConfig(cfg.Telemetry, version); ok {
		shutdown, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
			shutdownTel = func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}
		}
	}

	// --- Store ---------------------------------------------------------------

	store, err := state.Open(cfg.DBPath)
	if err != nil {
		shutdownTel()
		return nil, fmt.Errorf("opening database at %q: %w", cfg.DBPath, err)
	}
	logger.Debug("database opened", "path", cfg.DBPath)

	// --- Sync components -----------------------------------------------------

	remote := restcountries.NewClient(cfg.Endpoint, cfg.RequestTimeout, logger)
	orch := syncp.NewOrchestrator(remote, store, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		orch:      orch,
		neighbors: syncp.NewNeighborResolver(store, logger),
		close: func() {
			orch.Stop()
			if err := store.Close(); err != nil {
				logger.Error("closing database", "error", err)
			}
			shutdownTel()
		},
	}, nil
}

// activate runs one activation until it settles and returns the published
// record set. A failed activation returns its alert as the error.
func (a *app) activate(ctx context.Context) ([]model.Country, error) {
	ev, err := syncp.AwaitSettled(ctx, a.orch.Activate(ctx))
	if err != nil {
		return nil, fmt.Errorf("waiting for country data: %w", err)
	}
	if ev.State == syncp.StateFailed {
		title := "Error"
		if alert := a.orch.Alert(); alert != nil {
			title = alert.Title
			a.orch.DismissAlert()
		}
		return nil, fmt.Errorf("%s: %w", title, ev.Err)
	}
	return ev.Countries, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// --- Subcommands -------------------------------------------------------------

// runSetup launches the interactive setup wizard.
func runSetup(args []string) error {
	fs, flags := newFlagSet("setup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logLevel := slog.LevelWarn
	if *flags.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signalContext()
	defer stop()

	wiz := setup.NewWizard(os.Stdin, os.Stdout, logger)
	_, err := wiz.Run(ctx, *flags.config)
	return err
}

// runSync activates once and reports what the local store holds.
func runSync(args []string) error {
	fs, flags := newFlagSet("sync")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	countries, err := a.activate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %d countries available (%d favorites) in %s\n",
		len(countries), len(model.FilterFavorites(countries)), time.Since(start).Round(time.Millisecond))
	return nil
}

// runList prints the record set, optionally filtered.
func runList(args []string) error {
	fs, flags := newFlagSet("list")
	query := fs.String("query", "", "filter by name or code (case-insensitive substring)")
	favorites := fs.Bool("favorites", false, "only show favorites")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	if _, err := a.activate(ctx); err != nil {
		return err
	}
	countries := a.orch.Search(*query)
	if *favorites {
		countries = model.FilterFavorites(countries)
	}
	return printList(os.Stdout, countries)
}

// runShow prints one record and its stored neighbors.
func runShow(args []string) error {
	fs, flags := newFlagSet("show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: countrysync show <name|code>")
	}
	key := fs.Arg(0)

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	if _, err := a.activate(ctx); err != nil {
		return err
	}
	c, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no country matches %q", key)
	}

	neighbors, err := a.neighbors.Neighbors(ctx, *c)
	if err != nil {
		return fmt.Errorf("resolving neighbors of %s: %w", c.CCA3, err)
	}
	return printDetail(os.Stdout, *c, neighbors)
}

// runFavorite toggles the favorite flag of one record.
func runFavorite(args []string) error {
	fs, flags := newFlagSet("favorite")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: countrysync favorite <name|code>")
	}
	key := fs.Arg(0)

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	if _, err := a.activate(ctx); err != nil {
		return err
	}
	n, err := a.orch.ToggleFavorite(ctx, key)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Printf("No country matches %q; nothing changed.\n", key)
		return nil
	}

	c, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if c != nil && c.Favorite {
		fmt.Printf("★ %s is now a favorite\n", c.Name.Common)
	} else if c != nil {
		fmt.Printf("☆ %s is no longer a favorite\n", c.Name.Common)
	}
	return nil
}

// runStatus prints the configuration and database state.
func runStatus(args []string) error {
	fs, flags := newFlagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("countrysync status")
	fmt.Println("──────────────────")

	if _, err := os.Stat(*flags.config); err == nil {
		fmt.Printf("  Config:    %s ✓\n", *flags.config)
	} else {
		fmt.Printf("  Config:    not found (%s), using defaults\n", *flags.config)
	}

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("  Endpoint:  %s\n", a.cfg.Endpoint)
	fmt.Printf("  Timeout:   %s\n", a.cfg.RequestTimeout)
	if a.cfg.Telemetry != nil {
		fmt.Printf("  Telemetry: %s\n", a.cfg.Telemetry.OTLPEndpoint)
	} else {
		fmt.Printf("  Telemetry: off\n")
	}

	if info, err := os.Stat(a.cfg.DBPath); err == nil {
		fmt.Printf("  Database:  %s (%s)\n", a.cfg.DBPath, humanSize(info.Size()))
	} else {
		fmt.Printf("  Database:  %s (not created)\n", a.cfg.DBPath)
	}

	ctx := context.Background()
	countries, err := a.store.All(ctx)
	if err != nil {
		return err
	}
	if len(countries) == 0 {
		fmt.Println("  Countries: none stored, next sync downloads the list")
		return nil
	}
	fmt.Printf("  Countries: %d\n", len(countries))
	fmt.Printf("  Favorites: %d\n", len(model.FilterFavorites(countries)))
	return nil
}

// runReset clears the local database so the next activation downloads again.
func runReset(args []string) error {
	fs, flags := newFlagSet("reset")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.close()

	if !*yes {
		p := setup.NewPrompter(os.Stdin, os.Stdout)
		if !p.Confirm(fmt.Sprintf("Delete all countries and favorites from %s?", a.cfg.DBPath), false) {
			fmt.Println("Nothing changed.")
			return nil
		}
	}

	if err := a.store.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Println("✓ Local database cleared. The next command downloads the list again.")
	return nil
}

// Package commands wires the copilotd process: configuration load, repository/client/engine
// construction, and the cobra command tree (run/cycle/version), grounded on the pack's
// cobra-root-command layout (persistent flags + PersistentPreRun bootstrap).
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/coordinator"
	"github.com/mrcode/glucocopilot/internal/dispatch"
	"github.com/mrcode/glucocopilot/internal/nightscout"
	"github.com/mrcode/glucocopilot/internal/notify"
	"github.com/mrcode/glucocopilot/internal/predict"
	"github.com/mrcode/glucocopilot/internal/rules"
	"github.com/mrcode/glucocopilot/internal/store"
)

// Version, Commit, and BuildDate are set at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose  bool
	metricsAddr string

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "copilotd",
	Short: "copilotd is the automated glucose co-pilot daemon",
	Long: `copilotd ingests Nightscout glucose and treatment history, forecasts short-term
trajectory, evaluates a safety-gated rule engine, and dispatches temp-target/carb actions back
to Nightscout, running as a headless daemon or a single-shot cycle.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
		log.Info().Str("version", Version).Str("commit", Commit).Str("buildDate", BuildDate).
			Msg("copilotd starting")
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9108", "address to serve /metrics on (run command only)")
	rootCmd.AddCommand(runCmd, cycleCmd, versionCmd)
}

// buildCoordinator loads settings, opens the repository, and wires every dependency the
// coordinator needs, mirroring the teacher's app.New() construction sequence. The returned
// registry is what the run command's /metrics endpoint serves.
func buildCoordinator() (*coordinator.Coordinator, *config.Settings, *prometheus.Registry, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load settings: %w", err)
	}

	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve config dir: %w", err)
	}
	dbPath := configDir + "/copilot.db"
	gormRepo, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open repository: %w", err)
	}
	// A redis fast-path cache in front of idempotency lookups is opt-in via
	// GLUCOCOPILOT_REDIS_ADDR; an empty address makes CachedRepository a pure passthrough.
	repo := store.NewCachedRepository(gormRepo, os.Getenv("GLUCOCOPILOT_REDIS_ADDR"))

	nsClient := nightscout.NewClient(settings.NightscoutURL, "", settings.NightscoutToken,
		settings.NightscoutToken != "", log.With().Str("component", "nightscout").Logger())

	disp := dispatch.NewDispatcher(repo, nsClient, nil, false)

	engine := predict.EnhancedEngine{}
	safety := rules.SafetyPolicy{Config: settings.Safety}
	rulesEngine := rules.NewEngine(5, safety)

	registry := prometheus.NewRegistry()
	metrics := coordinator.NewMetrics(registry)
	notifier := notify.NewManager(30 * time.Minute)

	coord := coordinator.New(settings, repo, nsClient, disp, engine, rulesEngine, log, metrics, notifier)
	return coord, settings, registry, nil
}

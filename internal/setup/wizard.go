package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/njoerd114/countrysync/internal/config"
	"github.com/njoerd114/countrysync/internal/restcountries"
	"github.com/njoerd114/countrysync/internal/state"
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer
	probe  ProbeFunc
}

// NewWizard creates a Wizard wired to the given I/O and logger. The endpoint
// check uses [ProbeEndpoint].
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
		probe:  ProbeEndpoint(logger),
	}
}

// Run executes the interactive setup wizard and writes the result to cfgPath.
// It returns the written configuration, or nil if the user kept an existing
// file.
func (wiz *Wizard) Run(ctx context.Context, cfgPath string) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to countrysync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes %s.\n\n", cfgPath)

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil, nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: endpoint and timeout.
	fmt.Fprintf(wiz.w, "Step 1/3 — Country Source\n")

	endpoint := wiz.prompt.String("Country list URL", restcountries.DefaultEndpoint)
	timeout := wiz.prompt.Duration("Request timeout",
		config.DefaultRequestTimeout, config.MinRequestTimeout, config.MaxRequestTimeout)

	fmt.Fprintf(wiz.w, "  Checking endpoint...")
	n, err := wiz.probe(ctx, endpoint, timeout)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		wiz.logger.Warn("endpoint check failed", "endpoint", endpoint, "error", err)
		if !wiz.prompt.Confirm(fmt.Sprintf("Could not load countries (%v). Save anyway?", err), false) {
			return nil, fmt.Errorf("endpoint %s is not usable: %w", endpoint, err)
		}
	} else {
		fmt.Fprintf(wiz.w, " ✓ %d countries\n", n)
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: local database.
	fmt.Fprintf(wiz.w, "Step 2/3 — Local Database\n")

	defaultDB, err := state.DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}
	dbPath := wiz.prompt.String("Database file", defaultDB)
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: optional telemetry.
	fmt.Fprintf(wiz.w, "Step 3/3 — Telemetry\n")

	tel, err := wiz.buildTelemetry()
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Endpoint:       endpoint,
		RequestTimeout: timeout,
		DBPath:         dbPath,
		Telemetry:      tel,
	}
	if err := cfg.Write(cfgPath); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	// Reload so the saved file goes through the same validation as every run.
	saved, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("validating written config: %w", err)
	}
	fmt.Fprintf(wiz.w, "\n  ✓ Config written to %s\n\n", cfgPath)
	fmt.Fprintf(wiz.w, "Next: run 'countrysync sync' to download the country list.\n\n")

	return saved, nil
}

// buildTelemetry asks whether to export to an OTLP collector and, if so,
// collects its settings. It returns nil when telemetry stays off.
func (wiz *Wizard) buildTelemetry() (*config.TelemetryConfig, error) {
	if !wiz.prompt.Confirm("Export traces, metrics and logs to an OTLP collector?", false) {
		fmt.Fprintf(wiz.w, "  Telemetry disabled.\n")
		return nil, nil
	}

	tel := &config.TelemetryConfig{
		OTLPEndpoint: wiz.prompt.String("Collector gRPC address", "localhost:4317"),
	}

	idx, err := wiz.prompt.Select("Connection security", []string{
		"TLS (system root CAs)",
		"Plaintext (local collector)",
	})
	if err != nil {
		return nil, fmt.Errorf("selecting connection security: %w", err)
	}
	tel.Insecure = idx == 1

	if token := wiz.prompt.Secret("Authorization header value, empty for none"); token != "" {
		tel.Headers = map[string]string{"Authorization": token}
	}
	return tel, nil
}

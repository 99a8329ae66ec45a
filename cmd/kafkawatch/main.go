package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/kafkawatch/internal/monitor"
	"github.com/good-yellow-bee/kafkawatch/internal/notifier"
	"github.com/good-yellow-bee/kafkawatch/pkg/config"
)

var (
	configFile string
	dryRun     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "kafkawatch",
	Short: "kafkawatch - Kafka infrastructure health monitor",
	Long: `kafkawatch probes Zookeeper, the Kafka broker, and Kafka Connect,
evaluates the health of every connector and task, and emails alerts on
state transitions. Alert state persists across invocations, so a sustained
outage produces one alert (plus optional periodic reminders), not one per
cron tick.

Run it from cron or a systemd timer; the exit code reflects aggregate
health (0 healthy, 1 unhealthy or degraded run, 2 configuration error).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kafkawatch %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/kafkawatch/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "evaluate and log but do not send email")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("ERROR: %v", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("load config: %w", err)}
	}
	cfg.Verbose = verbose

	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer closeLog()

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer dispatcher.Close()

	// Auto-create the state directory
	if err := os.MkdirAll(filepath.Dir(cfg.State.DBPath), 0750); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("create state directory: %w", err)}
	}

	runner := monitor.New(monitor.Options{
		Targets:           cfg.ProbeTargets(),
		ConnectTargetName: TargetConnect,
		ProbeTimeout:      cfg.ProbeTimeout(),
		RenotifyInterval:  cfg.RenotifyInterval(),
		StatePath:         cfg.State.DBPath,
		LockPath:          cfg.State.LockPath,
		MetricsPath:       cfg.MetricsFile,
	}, dispatcher)

	// Probes are individually time-bounded; the signal context lets an
	// operator interrupt a run cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting kafkawatch %s health check", config.Version)
	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if summary.Skipped {
		return nil
	}

	log.Printf("check complete: %d subjects, %d notifications sent, %d suppressed, %d failed",
		len(summary.Verdicts), summary.Sent, summary.Suppressed, summary.SendFailures)

	if code := summary.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

// setupLogging duplicates log output into the configured append-mode
// log file; one invocation's output never overwrites a prior run's.
func setupLogging(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return func() {
		log.SetOutput(os.Stdout)
		f.Close()
	}, nil
}

// buildDispatcher wires the configured notification channels. Dry runs
// keep the dispatcher empty so transitions are logged but nothing sends.
func buildDispatcher(cfg *Config) (*notifier.Dispatcher, error) {
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.RateLimit.MaxPerWindow,
		Window:       cfg.RateLimitWindow(),
		Enabled:      !cfg.RateLimit.Disabled,
	})

	if dryRun {
		log.Printf("dry run: email notifications disabled")
		return dispatcher, nil
	}

	email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		Recipients: cfg.SMTP.Recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("configure email notifier: %w", err)
	}
	dispatcher.Register(email)

	return dispatcher, nil
}

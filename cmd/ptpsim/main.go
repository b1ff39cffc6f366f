package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/beevik/ntp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	scenarioPath string
	duration     time.Duration
	logLevel     string
	logFile      string
	ntpCheck     string
	help         bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.scenarioPath, "scenario", "", "Path to the YAML scenario file")
	flag.DurationVar(&config.duration, "duration", 0, "Override the scenario duration")

	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&config.logFile, "log-file", "", "Log file path (default: stderr)")

	flag.StringVar(&config.ntpCheck, "ntp-check", "", "Query an NTP server, report the host clock offset and exit")

	flag.BoolVar(&config.help, "help", false, "Show help message")

	flag.Parse()
	return config
}

// printUsage prints the usage information.
func printUsage() {
	fmt.Println("PTP Network Simulator")
	fmt.Println("=====================")
	fmt.Println()
	fmt.Println("This tool builds a network of PTP instances from a YAML scenario,")
	fmt.Println("drives their simulated clocks in lockstep and reports:")
	fmt.Println("  • Best master election results per node")
	fmt.Println("  • Offset and path delay convergence over the run")
	fmt.Println("  • Clock discipline activity (steps, frequency adjustments)")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s -scenario <file> [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Run a scenario with default settings\n")
	fmt.Printf("  %s -scenario pair.yaml\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Run longer, with debug logging to a file\n")
	fmt.Printf("  %s -scenario mesh.yaml -duration 5m -log-level debug -log-file sim.log\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Cross-check the host clock against an NTP server\n")
	fmt.Printf("  %s -ntp-check pool.ntp.org\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.scenarioPath == "" && config.ntpCheck == "" {
		return fmt.Errorf("a scenario file is required")
	}

	if config.duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}

	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q", config.logLevel)
	}

	return nil
}

// setupLogging applies the log level and optional log file. The returned
// function closes the file, if any.
func setupLogging(config *CLIConfig) (func(), error) {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	cleanup := func() {}
	if config.logFile != "" {
		f, err := os.OpenFile(config.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logrus.SetOutput(f)
		cleanup = func() { f.Close() }
	}
	return cleanup, nil
}

// runNTPCheck queries an NTP server and reports how far the host clock is
// off, a sanity reference before trusting the host as a time source.
func runNTPCheck(host string) error {
	response, err := ntp.Query(host)
	if err != nil {
		return fmt.Errorf("query %s: %w", host, err)
	}
	if err := response.Validate(); err != nil {
		return fmt.Errorf("response from %s: %w", host, err)
	}
	fmt.Printf("host clock offset %v against %s (stratum %d, rtt %v)\n",
		response.ClockOffset, host, response.Stratum, response.RTT)
	return nil
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		fmt.Printf("\n🛑 Received signal %v, stopping scenario...\n", sig)
		cancel()
	}()
}

// main is the entry point for the simulator.
func main() {
	cliConfig := parseCLIFlags()

	if cliConfig.help {
		printUsage()
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	cleanup, err := setupLogging(cliConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logging setup failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if cliConfig.ntpCheck != "" {
		if err := runNTPCheck(cliConfig.ntpCheck); err != nil {
			fmt.Fprintf(os.Stderr, "❌ NTP check failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	scenario, err := loadScenario(cliConfig.scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Scenario error: %v\n", err)
		os.Exit(1)
	}
	if cliConfig.duration > 0 {
		scenario.Duration = cliConfig.duration
	}

	runID := uuid.New().String()
	log := logrus.WithFields(logrus.Fields{
		"run_id":   runID,
		"scenario": scenario.Name,
	})

	sim, err := buildSimulation(scenario, time.Now().UTC(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Scenario build failed: %v\n", err)
		os.Exit(1)
	}
	defer sim.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	fmt.Printf("🚀 Running scenario %q (run %s)...\n", scenario.Name, runID)

	res, err := sim.run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Scenario aborted: %v\n", err)
		sim.close()
		cleanup()
		os.Exit(1)
	}

	logResults(log, res)
	fmt.Printf("🎉 Scenario %q completed after %v simulated\n", scenario.Name, res.Elapsed)
}

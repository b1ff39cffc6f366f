// Package main provides the command-line interface for the PTP network simulator.
//
// # Overview
//
// The cmd/ptpsim package is the executable entry point for exercising PTP
// instances against each other without touching the network stack or the
// host clock. It reads a YAML scenario describing nodes, links and optional
// security associations, builds one engine instance per node over in-memory
// pipe links with a simulated clock each, and drives the whole network in
// lockstep for a configured amount of simulated time. Election results and
// offset convergence are reported as structured logs tagged with a unique
// run identifier.
//
// # Usage
//
// Run a scenario with default settings:
//
//	go run ./cmd/ptpsim -scenario pair.yaml
//
// Run longer, with debug logging to a file:
//
//	go run ./cmd/ptpsim -scenario mesh.yaml -duration 5m -log-level debug -log-file sim.log
//
// Cross-check the host clock against an NTP server:
//
//	go run ./cmd/ptpsim -ntp-check pool.ntp.org
//
// # Scenario Format
//
// A scenario lists nodes with their clock properties and ports, links
// joining ports pairwise, and optionally the security associations ports
// reference by SPI:
//
//	name: pair
//	duration: 60s
//	quantum: 10ms
//	report_every: 10s
//	nodes:
//	  - name: gm
//	    clock_class: 6
//	    offset: 500ms
//	    ports:
//	      - number: 1
//	        spi: 1
//	  - name: follower
//	    ports:
//	      - number: 1
//	        spi: 1
//	links:
//	  - a: gm/1
//	    b: follower/1
//	    latency: 100us
//	    jitter: 10us
//	    loss: 0.001
//	security:
//	  associations:
//	    - spi: 1
//	      signing_key: 1
//	      keys:
//	        - id: 1
//	          algorithm: blake2s128
//	          secret: 000102030405060708090a0b0c0d0e0f
//
// Each node's clock starts at the scenario epoch shifted by its offset, so
// the scenario controls exactly how wrong every clock begins. Omitted node
// identities are derived from the node's position in the file; omitted
// priorities default to 128; a node without a ports list gets a single
// port numbered 1. Every declared port must appear in exactly one link.
//
// # Configuration Options
//
// Scenario selection:
//   - -scenario: Path to the YAML scenario file
//   - -duration: Override the scenario duration
//
// Logging configuration:
//   - -log-level: Log level (debug, info, warn, error) (default: info)
//   - -log-file: Log file path (default: stderr)
//
// Host clock cross-check:
//   - -ntp-check: Query an NTP server, report the host clock offset and exit
//
// # Exit Codes
//
//   - 0: Scenario completed (or NTP check succeeded)
//   - 1: Configuration error, scenario error, or interrupted run
//
// # Signal Handling
//
// The simulator handles SIGINT (Ctrl+C) gracefully, stopping the lockstep
// loop and tearing down instances and links before exiting.
package main

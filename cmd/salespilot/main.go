// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// salespilot is the conversational B2B sales agent: an authenticated
// HTTP API serving one dialogue turn per request, plus an offline
// scenario simulator.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	listenAddr   string
	logDir       string
	logLevel     string
	jsonLogs     bool
	scenarioName string
	scenarioFile string
	simTrace     bool

	rootCmd = &cobra.Command{
		Use:   "salespilot",
		Short: "Conversational B2B sales agent for the Kazakhstan market",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted persona scenario against the pipeline",
		RunE:  runSimulate,
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (defaults to :$PORT)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (stderr only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (defaults to $LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON to stderr")

	simulateCmd.Flags().StringVar(&scenarioName, "scenario", "price_objection_budget", "built-in scenario name")
	simulateCmd.Flags().StringVar(&scenarioFile, "file", "", "YAML scenario file (overrides --scenario)")
	simulateCmd.Flags().BoolVar(&simTrace, "trace", false, "print the full decision trace per turn")

	rootCmd.AddCommand(serveCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("salespilot: %v", err)
	}
}

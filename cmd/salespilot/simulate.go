// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/salespilot/pkg/logging"
	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/session"
	"github.com/AleutianAI/salespilot/services/salesbot/sim"
)

// runSimulate drives one persona scenario through an in-process
// pipeline against the configured LLM backend. Exit code 1 on failed
// expectations, so it slots into CI.
func runSimulate(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "salesbot-sim",
	})
	defer logger.Close()
	slg := logger.Slog()
	slog.SetDefault(slg)

	var (
		sc  sim.Scenario
		err error
	)
	if scenarioFile != "" {
		sc, err = sim.Load(scenarioFile)
		if err != nil {
			return err
		}
	} else {
		var ok bool
		sc, ok = sim.Builtin(scenarioName)
		if !ok {
			var names []string
			for _, s := range sim.BuiltinScenarios() {
				names = append(names, s.Name)
			}
			return fmt.Errorf("unknown scenario %q (built-in: %s)",
				scenarioName, strings.Join(names, ", "))
		}
	}

	deps, cleanup, err := buildDeps(config.LoadSettings(), slg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Throwaway state: the simulator never touches production paths.
	dir, err := os.MkdirTemp("", "salespilot-sim-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	buffer, err := session.OpenBuffer(filepath.Join(dir, "buffer.db"), slg)
	if err != nil {
		return err
	}
	defer buffer.Close()
	locks, err := session.NewLockManager(filepath.Join(dir, "locks"), slg)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.DefaultManagerConfig(), deps, nil, buffer, nil, locks, slg)
	runner := sim.NewRunner(mgr, slg)

	report, err := runner.Run(context.Background(), sc)
	if err != nil {
		return err
	}

	fmt.Print(report.Summary())
	if simTrace {
		for _, step := range report.Steps {
			trace, err := json.MarshalIndent(step.Result.Trace, "", "  ")
			if err != nil {
				continue
			}
			fmt.Printf("--- turn %d trace ---\n%s\n", step.Turn, trace)
		}
	}
	if !report.Passed() {
		os.Exit(1)
	}
	return nil
}

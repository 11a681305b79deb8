// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sim runs scripted personas against a live session manager
// and evaluates the replies. It backs the `simulate` command and the
// offline regression suite; it is not part of the serving path.
package sim

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Step is one scripted user turn plus its expectations. Empty
// expectation fields are not checked.
type Step struct {
	Message string `yaml:"message" validate:"required"`

	// ExpectAny passes when the reply contains at least one of the
	// listed substrings, case-insensitively.
	ExpectAny     []string `yaml:"expect_any"`
	ExpectIntent  string   `yaml:"expect_intent"`
	ExpectState   string   `yaml:"expect_state"`
	ExpectTier    string   `yaml:"expect_tier"`
	ExpectOutcome string   `yaml:"expect_outcome"`
}

// Scenario is a scripted persona: an ordered list of user turns with
// per-turn expectations.
type Scenario struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	ClientID    string `yaml:"client_id"`
	Flow        string `yaml:"flow"`
	Steps       []Step `yaml:"steps" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load reads a scenario from a YAML file.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := validate.Struct(sc); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

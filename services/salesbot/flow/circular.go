// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

// maxGoBackHistory bounds the retained backtrack records.
const maxGoBackHistory = 20

// GoBack is one recorded phase regress.
type GoBack struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Circular counts controlled backtracks through the funnel. It only
// observes; the transition priority never consults it.
type Circular struct {
	count   int
	history []GoBack
}

// NewCircular creates an empty manager.
func NewCircular() *Circular {
	return &Circular{}
}

// Observe records the move when it runs against the state ordering.
// Moves through states outside the ordering are ignored.
func (c *Circular) Observe(flow Config, from, to string) {
	idx := flow.StateIndex()
	fi, fok := idx[from]
	ti, tok := idx[to]
	if !fok || !tok || ti >= fi {
		return
	}
	c.count++
	c.history = append(c.history, GoBack{From: from, To: to})
	if len(c.history) > maxGoBackHistory {
		c.history = c.history[len(c.history)-maxGoBackHistory:]
	}
}

// Count returns the total backtracks.
func (c *Circular) Count() int { return c.count }

// History returns a copy of the retained backtracks.
func (c *Circular) History() []GoBack {
	return append([]GoBack(nil), c.history...)
}

// CircularState is the serializable manager.
type CircularState struct {
	Count   int      `json:"goback_count"`
	History []GoBack `json:"goback_history"`
}

// ToState exports the manager for a snapshot.
func (c *Circular) ToState() CircularState {
	return CircularState{Count: c.count, History: c.History()}
}

// LoadState restores a snapshot.
func (c *Circular) LoadState(st CircularState) {
	c.count = st.Count
	c.history = append([]GoBack(nil), st.History...)
}

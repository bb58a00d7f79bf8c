// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package secureconfirm

import (
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when Advance is called with a phase
// that isn't the flow's next documented step or its error phase.
type ErrInvalidTransition struct {
	From, To Phase
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("secureconfirm: invalid transition %q -> %q", e.From, e.To)
}

// Machine drives one in-flight confirmation-bearing operation through
// its flow's phase graph. It is not safe to share across operations;
// callers construct one per requestId.
type Machine struct {
	flow    FlowKind
	graph   graph
	cleanup func()

	mu      sync.Mutex
	current Phase
	done    bool
}

// New constructs a Machine for flow, starting at the graph's first
// phase. cleanup, if non-nil, runs exactly once when the machine first
// reaches a terminal phase (success, error, or cancellation) — the
// single place that scrubs temp key material regardless of which
// terminal path was taken.
func New(flow FlowKind, cleanup func()) *Machine {
	g := graphs[flow]
	var start Phase
	if len(g.order) > 0 {
		start = g.order[0]
	}
	return &Machine{flow: flow, graph: g, cleanup: cleanup, current: start}
}

// Current reports the machine's current phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsDone reports whether the machine has reached a terminal phase.
func (m *Machine) IsDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Advance validates and applies a transition to next. Valid transitions
// are: the graph's immediate successor of the current phase, or the
// flow's error phase from any non-terminal phase. Advancing into a
// terminal phase runs cleanup exactly once.
func (m *Machine) Advance(next Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return &ErrInvalidTransition{From: m.current, To: next}
	}
	if !m.validNextLocked(next) {
		return &ErrInvalidTransition{From: m.current, To: next}
	}
	m.current = next
	if m.graph.isTerminal(next) {
		m.finishLocked()
	}
	return nil
}

func (m *Machine) validNextLocked(next Phase) bool {
	if next == m.graph.errorPhase {
		return true
	}
	curIdx := m.graph.indexOf(m.current)
	nextIdx := m.graph.indexOf(next)
	return curIdx >= 0 && nextIdx == curIdx+1
}

// Cancel forces the machine into the universal cancelled phase from any
// non-terminal state, running cleanup exactly once. A no-op if the
// machine is already done.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.current = PhaseCancelled
	m.finishLocked()
}

// finishLocked marks the machine done and runs cleanup exactly once.
// Callers must hold mu.
func (m *Machine) finishLocked() {
	if m.done {
		return
	}
	m.done = true
	if m.cleanup != nil {
		m.cleanup()
	}
}

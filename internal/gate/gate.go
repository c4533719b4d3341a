// Package gate implements the RUNNING → DRAINING → STOPPED shutdown state
// machine shared by every request surface (spec §4.F). MCP tool dispatch
// and the HTTP transport both consult the same Gate so a shutdown signal
// closes the door on new work regardless of which transport a request
// arrived on.
package gate

import (
	"sync/atomic"

	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// State is one point in the shutdown lifecycle.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "running"
	}
}

// Gate is a small atomic state machine. The zero value is Running.
type Gate struct {
	state atomic.Int32
}

// New returns a Gate in the Running state.
func New() *Gate {
	return &Gate{}
}

// State reports the current lifecycle state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Drain transitions the gate to Draining: new requests are rejected while
// in-flight work is left to complete under the caller's own deadline.
func (g *Gate) Drain() {
	g.state.Store(int32(Draining))
}

// Stop transitions the gate to Stopped, after the drain deadline has
// elapsed or all in-flight work has finished.
func (g *Gate) Stop() {
	g.state.Store(int32(Stopped))
}

// Allow returns a domainerr.Unavailable error when the gate is not
// Running, so callers at the request boundary can reject new work with a
// domain error immediately, before touching the store.
func (g *Gate) Allow() error {
	switch g.State() {
	case Draining:
		return domainerr.New(domainerr.Unavailable, "server is draining, try again shortly")
	case Stopped:
		return domainerr.New(domainerr.Unavailable, "server has stopped accepting requests")
	default:
		return nil
	}
}

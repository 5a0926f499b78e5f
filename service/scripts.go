package service

import (
	"fmt"
	"slices"

	"github.com/robbyt/go-scriptsvc/platform/script/loader"
)

// Phase names the lifecycle slot a script runs in.
type Phase string

const (
	PhaseService Phase = "service"
	PhaseInit    Phase = "init"
	PhaseStart   Phase = "start"
	PhaseStop    Phase = "stop"
	PhaseClose   Phase = "close"
)

// Phases lists every phase in lifecycle order, the per-message phase first.
func Phases() []Phase {
	return []Phase{PhaseService, PhaseInit, PhaseStart, PhaseStop, PhaseClose}
}

func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return slices.Contains(Phases(), p)
}

// UnmarshalText rejects unknown phases, so a typo in a config file is caught at load time.
func (p *Phase) UnmarshalText(text []byte) error {
	phase := Phase(text)
	if !phase.Valid() {
		return fmt.Errorf("unknown script phase %q", string(text))
	}
	*p = phase
	return nil
}

// ScriptSet holds at most one script per phase. A missing or blank entry means the phase has no
// script.
type ScriptSet map[Phase]loader.Location

// Get returns the script for phase, or nil when there is none.
func (s ScriptSet) Get(phase Phase) *loader.Location {
	loc, ok := s[phase]
	if !ok || loc.IsBlank() {
		return nil
	}
	return &loc
}

// Configured returns the phases that have a script, in lifecycle order.
func (s ScriptSet) Configured() []Phase {
	var out []Phase
	for _, p := range Phases() {
		if s.Get(p) != nil {
			out = append(out, p)
		}
	}
	return out
}

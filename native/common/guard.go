package common

import "errors"

// Module names recognised by the pause switchboard.
const (
	ModuleHTLC      = "htlc"
	ModuleOrderbook = "orderbook"
	ModuleBridge    = "bridge"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's mutating operations are suspended.
// The admin pause is the only globally fatal condition in the system; every
// other failure is local to a single call.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means pausing
// is not configured and all calls pass.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is a fixed-lifetime in-memory PauseView mutated only by the
// admin role.
type Switchboard struct {
	paused map[string]bool
}

// NewSwitchboard returns a switchboard with every module live.
func NewSwitchboard() *Switchboard {
	return &Switchboard{paused: make(map[string]bool)}
}

// SetPaused toggles the pause flag for a module.
func (s *Switchboard) SetPaused(module string, paused bool) {
	if s == nil || module == "" {
		return
	}
	if s.paused == nil {
		s.paused = make(map[string]bool)
	}
	s.paused[module] = paused
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil || s.paused == nil {
		return false
	}
	return s.paused[module]
}

package common

import "errors"

// ErrModulePaused is returned when a state-changing call reaches a module
// whose pause flag is set.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the persisted pause flag for a named module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or an empty
// module name means pausing is not wired for the caller and the call proceeds.
func Guard(view PauseView, module string) error {
	if view == nil || module == "" {
		return nil
	}
	if !view.IsPaused(module) {
		return nil
	}
	return ErrModulePaused
}

package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether an operator paused a program module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView built from configuration.
type PauseSet map[string]struct{}

// NewPauseSet normalises the supplied module names.
func NewPauseSet(modules []string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, m := range modules {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			set[m] = struct{}{}
		}
	}
	return set
}

// IsPaused implements PauseView.
func (s PauseSet) IsPaused(module string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(module))]
	return ok
}

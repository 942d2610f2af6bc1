package hostio

import (
	"github.com/go-vgo/robotgo"
	"github.com/pkg/errors"

	"github.com/nikosalonen/macrod/macro"
)

// Injector performs input through the host's event injection facilities.
type Injector struct{}

// NewInjector creates an injector.
func NewInjector() Injector {
	return Injector{}
}

// MoveMouse places the pointer at the given screen coordinates.
func (Injector) MoveMouse(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

// ToggleButton presses or releases a mouse button.
func (Injector) ToggleButton(b macro.Button, down bool) error {
	dir := "down"
	if !down {
		dir = "up"
	}
	return errors.Wrapf(robotgo.Toggle(string(b), dir), "toggling %s button", b)
}

// Scroll turns the wheel by the given amounts.
func (Injector) Scroll(dx, dy int) error {
	robotgo.Scroll(dx, dy)
	return nil
}

// ToggleKey presses or releases a named key.
func (Injector) ToggleKey(key string, down bool) error {
	dir := "down"
	if !down {
		dir = "up"
	}
	return errors.Wrapf(robotgo.KeyToggle(key, dir), "toggling key %q", key)
}

// TypeString types the text as literal keystrokes.
func (Injector) TypeString(s string) error {
	robotgo.TypeStr(s)
	return nil
}

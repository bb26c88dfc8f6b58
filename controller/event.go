// Package controller tracks game controllers (joysticks, gamepads) and reports
// their arrival and input events.
package controller

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind is the kind of a controller Event.
type EventKind int

const (
	EventButton     EventKind = iota + 1 // Number, Pressed.
	EventAxis                            // Number, Value.
	EventDisconnect                      // The device is gone.
)

// Event is one input from a controller.
type Event struct {
	Kind   EventKind
	Number int

	// Button state.
	Pressed bool

	// Axis position in [-1, 1].
	Value float64

	// Set for events describing the state found when the device was opened.
	Initial bool
}

// Name identifies the control that produced the event, e.g. "Button3" or
// "Axis1". Events of the same control share a name.
func (e Event) Name() string {
	switch e.Kind {
	case EventButton:
		return "Button" + strconv.Itoa(e.Number)
	case EventAxis:
		return "Axis" + strconv.Itoa(e.Number)
	case EventDisconnect:
		return "Disconnect"
	}
	return fmt.Sprintf("EventKind(%d)", int(e.Kind))
}

// IsDiscrete reports whether the event name belongs to an on/off control.
func IsDiscrete(name string) bool {
	return strings.HasPrefix(name, "Button")
}

func (e Event) String() string {
	switch e.Kind {
	case EventButton:
		return fmt.Sprintf("%s %v", e.Name(), e.Pressed)
	case EventAxis:
		return fmt.Sprintf("%s %.3f", e.Name(), e.Value)
	}
	return e.Name()
}

// Device is a connected controller.
type Device interface {
	// ID is specific to the device model, not to one physical device.
	ID() uint64
	Name() string

	// Events returns the device's events. The last event is a Disconnect,
	// after which the channel is closed.
	Events() <-chan Event

	// Close stops reading events and releases the device.
	Close() error
}

// Listener reports controllers as they are connected.
type Listener interface {
	// Arrivals returns newly connected devices, including those present
	// when listening started.
	Arrivals() <-chan Device

	// Errors returns failures to enumerate or open devices. Listening
	// continues after an error.
	Errors() <-chan error

	// Close stops listening. Devices already delivered stay open.
	Close() error
}

package controller

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Target is something a controller input can be assigned to.
type Target string

// Targets.
const (
	TargetFocuserIn       Target = "FocuserIn"
	TargetFocuserOut      Target = "FocuserOut"
	TargetToggleRecording Target = "ToggleRecording"
)

// Targets lists all targets in a stable order.
var Targets = []Target{TargetFocuserIn, TargetFocuserOut, TargetToggleRecording}

// AnalogAllowed reports whether an axis may drive the target.
func (t Target) AnalogAllowed() bool {
	return t == TargetFocuserIn || t == TargetFocuserOut
}

// Range is the span of axis values mapped to full speed.
type Range struct {
	Min, Max float64
}

// Source is one control of one controller model. Its text form is
// "<ID as 16 hex digits>;<name>;<event>[;<min>;<max>]", with the range
// present only for axes. The name is informational.
type Source struct {
	ID    uint64
	Name  string
	Event string
	Range *Range
}

// ParseSource parses the text form of a Source.
func ParseSource(s string) (Source, error) {
	if s == "" {
		return Source{}, fmt.Errorf("unassigned")
	}
	fields := strings.Split(s, ";")
	if len(fields) < 3 {
		return Source{}, fmt.Errorf("invalid controller action %q", s)
	}
	if len(fields[0]) != 16 {
		return Source{}, fmt.Errorf("invalid 64-bit hex number %q", fields[0])
	}
	id, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return Source{}, fmt.Errorf("invalid 64-bit hex number %q: %w", fields[0], err)
	}
	src := Source{ID: id, Name: fields[1], Event: fields[2]}
	if src.Event == "" {
		return Source{}, fmt.Errorf("missing event in %q", s)
	}
	if IsDiscrete(src.Event) {
		return src, nil
	}

	if len(fields) < 5 {
		return Source{}, fmt.Errorf("missing analog event range in %q", s)
	}
	lo, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Source{}, fmt.Errorf("parsing range minimum: %w", err)
	}
	hi, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Source{}, fmt.Errorf("parsing range maximum: %w", err)
	}
	if math.IsInf(lo, 0) || math.IsNaN(lo) || math.IsInf(hi, 0) || math.IsNaN(hi) || lo >= hi {
		return Source{}, fmt.Errorf("invalid analog event range %v; %v", lo, hi)
	}
	src.Range = &Range{Min: lo, Max: hi}
	return src, nil
}

func (s Source) String() string {
	r := ""
	if s.Range != nil {
		r = fmt.Sprintf(";%.05f;%.05f", s.Range.Min, s.Range.Max)
	}
	return fmt.Sprintf("%016X;%s;%s%s", s.ID, s.Name, s.Event, r)
}

// Matches reports whether ev comes from this control. Any connected device
// of the same model matches.
func (s Source) Matches(ev StickEvent) bool {
	return s.ID == ev.ID && s.Event == ev.Event.Name()
}

// Assignments maps targets to controls.
type Assignments map[Target]Source

// ParseAssignments parses a map of target names to sources in text form.
// Empty values are skipped.
func ParseAssignments(m map[string]string) (Assignments, error) {
	a := Assignments{}
	for name, text := range m {
		t := Target(name)
		known := false
		for _, x := range Targets {
			known = known || x == t
		}
		if !known {
			return nil, fmt.Errorf("unknown controller action target %q", name)
		}
		if text == "" {
			continue
		}
		src, err := ParseSource(text)
		if err != nil {
			return nil, fmt.Errorf("controller action %s: %w", name, err)
		}
		if src.Range != nil && !t.AnalogAllowed() {
			return nil, fmt.Errorf("controller action %s: axis not allowed", name)
		}
		a[t] = src
	}
	return a, nil
}

// Action is what a controller event asks for.
type Action struct {
	Target Target

	// For buttons.
	Pressed bool

	// For focuser targets, the speed in [-1, 1]; negative moves in.
	Speed float64
}

// Dispatch finds the target assigned to ev. Disconnect and initial-state
// events never match.
func (a Assignments) Dispatch(ev StickEvent) (Action, bool) {
	if ev.Event.Kind == EventDisconnect || ev.Event.Initial {
		return Action{}, false
	}
	for _, t := range Targets {
		src, ok := a[t]
		if !ok || !src.Matches(ev) {
			continue
		}
		act := Action{Target: t, Pressed: ev.Event.Pressed}
		if t == TargetFocuserIn || t == TargetFocuserOut {
			if ev.Event.Kind == EventButton {
				if ev.Event.Pressed {
					act.Speed = 1
				}
			} else if src.Range != nil {
				act.Speed = scale(ev.Event.Value, *src.Range)
			}
			if t == TargetFocuserIn {
				act.Speed = -act.Speed
			}
		}
		return act, true
	}
	return Action{}, false
}

// scale maps the positive part of an axis range to [0, 1].
func scale(v float64, r Range) float64 {
	lo := math.Max(r.Min, 0)
	if r.Max <= lo {
		return 0
	}
	s := (math.Max(v, 0) - lo) / (r.Max - lo)
	return math.Min(math.Max(s, 0), 1)
}

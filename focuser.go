package vidoxide

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Focuser is a motorized telescope focuser.
type Focuser interface {
	// Info returns a human-readable description.
	Info() string

	// Position returns the current position in device steps.
	Position() (int, error)

	// Move starts moving with speed in [-1, 1]. A speed of 1 is a normal,
	// reasonable speed for the device, negative moves inwards. Speed 0 stops.
	Move(speed float64) error
}

// ValidateFocuserSpeed checks that speed is within [-1, 1].
func ValidateFocuserSpeed(speed float64) error {
	if math.IsNaN(speed) || speed < -1 || speed > 1 {
		return fmt.Errorf("invalid focuser speed %v, expected value between -1.0 and 1.0", speed)
	}
	return nil
}

// FocuserSimulator is a Focuser without hardware. It moves at
// FocuserSimulatorUnitSpeed steps per second for speed 1.
type FocuserSimulator struct {
	mutex    sync.Mutex
	position float64
	speed    float64
	since    time.Time
	now      func() time.Time
}

// FocuserSimulatorUnitSpeed is the simulator's change in position per second
// at speed 1.
const FocuserSimulatorUnitSpeed = 100.0

// Ensure that FocuserSimulator implements interface Focuser.
var _ Focuser = (*FocuserSimulator)(nil)

// NewFocuserSimulator returns a stopped simulator at position 0.
func NewFocuserSimulator() *FocuserSimulator {
	return &FocuserSimulator{now: time.Now}
}

// Info returns "Simulator".
func (s *FocuserSimulator) Info() string {
	return "Simulator"
}

func (s *FocuserSimulator) update() {
	now := s.now()
	if s.speed != 0 {
		s.position += now.Sub(s.since).Seconds() * s.speed * FocuserSimulatorUnitSpeed
	}
	s.since = now
}

// Position returns the simulated position.
func (s *FocuserSimulator) Position() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.update()
	return int(math.Round(s.position)), nil
}

// Move changes the simulated speed.
func (s *FocuserSimulator) Move(speed float64) error {
	if err := ValidateFocuserSpeed(speed); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.update()
	s.speed = speed
	return nil
}

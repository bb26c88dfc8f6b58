package vidoxide

import (
	"fmt"
)

// MAF is a moving average filter, used to smooth frame rates and write rates
// reported by the workers.
type MAF struct {
	index  int
	n      int
	sum    float64
	values []float64
}

// NewMAF returns a moving average filter over the last size values.
func NewMAF(size int) (*MAF, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	return &MAF{values: make([]float64, size)}, nil
}

// Update adds a value and returns the average of the values in the history.
// Until the history is full, only the values added so far are averaged.
func (m *MAF) Update(value float64) (float64, error) {
	if len(m.values) == 0 {
		return 0, fmt.Errorf("invalid MAF, use NewMAF")
	}
	m.sum -= m.values[m.index]
	m.sum += value
	m.values[m.index] = value
	m.index++
	if m.index >= len(m.values) {
		m.index = 0
	}
	if m.n < len(m.values) {
		m.n++
	}
	return m.sum / float64(m.n), nil
}

// Reset clears the history.
func (m *MAF) Reset() {
	for i := range m.values {
		m.values[i] = 0
	}
	m.index, m.n, m.sum = 0, 0, 0
}

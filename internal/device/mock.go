// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	mockMinIntegration = 3000       // us
	mockMaxIntegration = 65_000_000 // us
	mockSaturation     = 4095       // 12-bit ADC
	mockReference      = 20000.0    // us at which line amplitudes are quoted
)

// mercury-argon lamp lines: center nm, counts at the reference integration
var mockLines = [][2]float64{
	{404.66, 900},
	{435.83, 2200},
	{546.07, 3100},
	{576.96, 700},
	{579.07, 750},
	{696.54, 400},
	{763.51, 1300},
	{811.53, 950},
	{912.30, 500},
}

// MockOptions tunes the synthetic instrument. Zero values select defaults.
type MockOptions struct {
	Pixels        int
	MinWavelength float64
	MaxWavelength float64
	FailureRate   float64 // probability that a scan fails
	Seed          uint64
}

// MockDriver is a synthetic spectrometer: a dark baseline with a handful of
// lamp lines whose height follows the integration time, plus read noise.
type MockDriver struct {
	opts        MockOptions
	rng         *rand.Rand
	integration int
	start       time.Time
}

// NewMockDriver creates a mock instrument shaped like a 2048 pixel
// 330-1025 nm detector.
func NewMockDriver(opts MockOptions) *MockDriver {
	if opts.Pixels <= 0 {
		opts.Pixels = 2048
	}
	if opts.MaxWavelength <= opts.MinWavelength {
		opts.MinWavelength, opts.MaxWavelength = 330, 1025
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &MockDriver{
		opts:        opts,
		rng:         rand.New(rand.NewPCG(seed, seed>>1|1)),
		integration: int(mockReference),
		start:       time.Now(),
	}
}

func (m *MockDriver) Model() string {
	return "MOCK2000"
}

func (m *MockDriver) Wavelengths() ([]float64, error) {
	wl := make([]float64, m.opts.Pixels)
	step := (m.opts.MaxWavelength - m.opts.MinWavelength) / float64(m.opts.Pixels-1)
	for i := range wl {
		wl[i] = m.opts.MinWavelength + float64(i)*step
	}
	return wl, nil
}

func (m *MockDriver) SetIntegrationTime(micros int) error {
	if micros < mockMinIntegration || micros > mockMaxIntegration {
		return fmt.Errorf("integration time %d us outside %d-%d us", micros, mockMinIntegration, mockMaxIntegration)
	}
	m.integration = micros
	return nil
}

func (m *MockDriver) Intensities() ([]float64, error) {
	if m.opts.FailureRate > 0 && m.rng.Float64() < m.opts.FailureRate {
		return nil, errors.New("mock: simulated read failure")
	}

	wl, _ := m.Wavelengths()
	gain := float64(m.integration) / mockReference
	// slow lamp flicker so the trace visibly moves
	flicker := 1 + 0.05*math.Sin(time.Since(m.start).Seconds())

	counts := make([]float64, len(wl))
	for i, w := range wl {
		v := 90.0
		for _, line := range mockLines {
			d := (w - line[0]) / 1.2
			v += line[1] * gain * flicker * math.Exp(-0.5*d*d)
		}
		v += 4 * m.rng.NormFloat64()
		counts[i] = math.Round(math.Max(0, math.Min(v, mockSaturation)))
	}
	return counts, nil
}

func (m *MockDriver) Close() error {
	return nil
}

package device

import (
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/spectrometer_viewer/internal/config"
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceConfig     = errors.New("device configuration rejected")
	ErrAcquisition      = errors.New("acquisition failed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("device already connected")
)

// Device describes the bound instrument.
type Device struct {
	Model             string    `json:"model"`
	Wavelengths       []float64 `json:"wavelengths"` // nm per detector pixel
	IntegrationMicros int       `json:"integration_time_us"`
}

// Driver is the hardware side of a spectrometer.
type Driver interface {
	Model() string
	// Wavelengths returns the per-pixel wavelength calibration in nm.
	Wavelengths() ([]float64, error)
	SetIntegrationTime(micros int) error
	// Intensities blocks until one full scan has been read.
	Intensities() ([]float64, error)
	Close() error
}

// Prober opens the first available instrument.
type Prober func() (Driver, error)

// NewProber returns the prober selected by SPECTROMETER_DRIVER.
func NewProber(cfg *config.Config) (Prober, error) {
	switch cfg.SpectrometerDriver {
	case config.DriverSerial:
		return func() (Driver, error) { return OpenSerial(cfg) }, nil
	case config.DriverMock:
		return func() (Driver, error) {
			log.Println("device: using mock spectrometer")
			return NewMockDriver(MockOptions{FailureRate: cfg.MockFailureRate}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown spectrometer driver %q", cfg.SpectrometerDriver)
	}
}

package device

import (
	"fmt"
	"log"

	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// Connection owns the single driver handle. Binding is one-shot: after a
// successful Connect every further Connect fails with ErrAlreadyConnected.
//
// A Connection is not safe for concurrent use; the capture scheduler is its
// only caller.
type Connection struct {
	probe Prober
	drv   Driver
	dev   Device
}

// NewConnection returns an unbound connection that will use probe to find
// the instrument.
func NewConnection(probe Prober) *Connection {
	return &Connection{probe: probe}
}

// Connect probes for an instrument, reads its calibration, and applies
// integrationMicros. On any failure no driver stays bound and the error wraps
// ErrDeviceNotFound with the underlying cause.
func (c *Connection) Connect(integrationMicros int) (Device, error) {
	if c.drv != nil {
		return c.dev, ErrAlreadyConnected
	}

	drv, err := c.probe()
	if err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	wavelengths, err := drv.Wavelengths()
	if err == nil && len(wavelengths) == 0 {
		err = fmt.Errorf("empty wavelength calibration")
	}
	if err != nil {
		drv.Close()
		return Device{}, fmt.Errorf("%w: read calibration: %w", ErrDeviceNotFound, err)
	}

	if err := drv.SetIntegrationTime(integrationMicros); err != nil {
		drv.Close()
		return Device{}, fmt.Errorf("%w: set integration time %d us: %w", ErrDeviceNotFound, integrationMicros, err)
	}

	c.drv = drv
	c.dev = Device{
		Model:             drv.Model(),
		Wavelengths:       wavelengths,
		IntegrationMicros: integrationMicros,
	}
	log.Printf("device: %s connected, %d pixels, %.2f-%.2f nm, integration %d us",
		c.dev.Model, len(wavelengths), wavelengths[0], wavelengths[len(wavelengths)-1], integrationMicros)

	return c.dev, nil
}

// Connected reports whether a driver is bound.
func (c *Connection) Connected() bool {
	return c.drv != nil
}

// Device returns the bound device description (zero value before Connect).
func (c *Connection) Device() Device {
	return c.dev
}

// Wavelengths returns the calibration captured at connect time. Callers must
// not modify the slice.
func (c *Connection) Wavelengths() []float64 {
	return c.dev.Wavelengths
}

// SetIntegrationTime writes a new integration time to the device. The stored
// value only changes when the device accepts it.
func (c *Connection) SetIntegrationTime(micros int) error {
	if micros <= 0 {
		return fmt.Errorf("%w: integration time must be positive, got %d", ErrDeviceConfig, micros)
	}
	if c.drv == nil {
		return fmt.Errorf("%w: %w", ErrDeviceConfig, ErrNotConnected)
	}
	if err := c.drv.SetIntegrationTime(micros); err != nil {
		return fmt.Errorf("%w: %d us: %w", ErrDeviceConfig, micros, err)
	}
	c.dev.IntegrationMicros = micros
	return nil
}

// AcquireScan reads one raw scan. Errors leave the connection open.
func (c *Connection) AcquireScan() (spectrum.RawScan, error) {
	if c.drv == nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, ErrNotConnected)
	}
	intensities, err := c.drv.Intensities()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	if len(intensities) != len(c.dev.Wavelengths) {
		return nil, fmt.Errorf("%w: got %d pixels, want %d", ErrAcquisition, len(intensities), len(c.dev.Wavelengths))
	}
	return spectrum.RawScan(intensities), nil
}

// Close releases the driver. The connection stays unusable afterwards.
func (c *Connection) Close() error {
	if c.drv == nil {
		return nil
	}
	return c.drv.Close()
}

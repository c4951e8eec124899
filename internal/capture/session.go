package capture

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/relabs-tech/spectrometer_viewer/internal/device"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

var ErrInvalidValue = errors.New("invalid value")

const (
	DefaultIntegrationMicros = 20000
	DefaultScansToAverage    = 4

	initialStatus = "STATUS: No device connected"
)

// Options are the operator settings a session starts with.
type Options struct {
	IntegrationMicros int
	ScansToAverage    int
	// ExportDir, when set, confines exports to relative names inside it.
	ExportDir string
}

// Session is the single operator session: the device connection, the
// capture state, the averaging settings and the latest averaged spectrum.
//
// Everything except Latest and Status must be called from one goroutine,
// normally the Scheduler run loop.
type Session struct {
	conn     *device.Connection
	averager *spectrum.Averager
	machine  StateMachine

	integration int
	depth       int
	exportDir   string

	latest atomic.Pointer[spectrum.Spectrum]
	status atomic.Pointer[string]

	// OnStatus, when set, receives every new status string.
	OnStatus func(status string)
}

// NewSession creates an idle session around conn.
func NewSession(conn *device.Connection, opts Options) *Session {
	if opts.IntegrationMicros <= 0 {
		opts.IntegrationMicros = DefaultIntegrationMicros
	}
	if opts.ScansToAverage <= 0 {
		opts.ScansToAverage = DefaultScansToAverage
	}

	s := &Session{
		conn:        conn,
		averager:    spectrum.NewAverager(),
		integration: opts.IntegrationMicros,
		depth:       opts.ScansToAverage,
		exportDir:   opts.ExportDir,
	}
	status := initialStatus
	s.status.Store(&status)
	return s
}

func (s *Session) State() State {
	return s.machine.State()
}

// Status returns the current human readable status line.
func (s *Session) Status() string {
	return *s.status.Load()
}

// Latest returns the most recent averaged spectrum, or nil before the first
// successful batch. The returned value must not be modified.
func (s *Session) Latest() *spectrum.Spectrum {
	return s.latest.Load()
}

func (s *Session) Device() device.Device {
	return s.conn.Device()
}

func (s *Session) IntegrationTime() int {
	return s.integration
}

func (s *Session) ScansToAverage() int {
	return s.depth
}

func (s *Session) setStatus(status string) {
	s.status.Store(&status)
	if s.OnStatus != nil {
		s.OnStatus(status)
	}
}

func (s *Session) reportError(err error) error {
	s.setStatus("ERROR: " + err.Error())
	return err
}

// Connect binds the first available instrument. It only works once; a
// failure leaves the session Idle with the cause in the status line.
func (s *Session) Connect() error {
	if s.machine.State() != Idle {
		return s.reportError(device.ErrAlreadyConnected)
	}

	dev, err := s.conn.Connect(s.integration)
	if err != nil {
		log.Printf("session: connect failed: %v", err)
		cause := strings.TrimPrefix(err.Error(), device.ErrDeviceNotFound.Error()+": ")
		s.setStatus("No device detected: " + cause)
		return err
	}

	if err := s.machine.Connect(); err != nil {
		return s.reportError(err)
	}
	s.setStatus("Device initialized: " + dev.Model)
	return nil
}

// SetIntegrationTime changes the exposure per scan. Before connect the value
// is only stored and applied at connect time. Once connected the device is
// written first and a rejection keeps the previous value.
func (s *Session) SetIntegrationTime(micros int) error {
	if micros <= 0 {
		return s.reportError(fmt.Errorf("%w: integration time must be a positive integer, got %d", ErrInvalidValue, micros))
	}

	if s.conn.Connected() {
		if err := s.conn.SetIntegrationTime(micros); err != nil {
			log.Printf("session: %v", err)
			return s.reportError(err)
		}
	}

	s.integration = micros
	s.setStatus(fmt.Sprintf("INFO: Integration time set to %d us", micros))
	return nil
}

// SetScansToAverage changes the averaging depth used by the next batch.
func (s *Session) SetScansToAverage(n int) error {
	if n <= 0 {
		return s.reportError(fmt.Errorf("%w: scans to average must be a positive integer, got %d", ErrInvalidValue, n))
	}
	s.depth = n
	s.setStatus(fmt.Sprintf("INFO: Scans to average set to %d", n))
	return nil
}

func (s *Session) StartCapture() error {
	if err := s.machine.Start(); err != nil {
		return s.reportError(err)
	}
	s.setStatus("INFO: Capturing")
	return nil
}

// StopCapture only keeps the next tick from starting a batch; it never
// interrupts one.
func (s *Session) StopCapture() error {
	if err := s.machine.Stop(); err != nil {
		return s.reportError(err)
	}
	s.setStatus("INFO: Capture stopped")
	return nil
}

// Export writes the latest spectrum to path and returns the path written.
// With an export directory configured, path is a name inside it.
func (s *Session) Export(path string) (string, error) {
	var (
		written string
		err     error
	)
	if s.exportDir != "" {
		written, err = spectrum.ExportIn(s.exportDir, path, s.Latest())
	} else {
		written, err = spectrum.Export(path, s.Latest())
	}
	switch {
	case err == nil:
		s.setStatus("INFO: Data exported to " + written)
	case errors.Is(err, spectrum.ErrNoData):
		s.setStatus("ERROR: No data to export")
	case errors.Is(err, spectrum.ErrNoPath):
		s.setStatus("ERROR: No file selected")
	default:
		log.Printf("session: %v", err)
		s.setStatus("ERROR: Export failed: " + err.Error())
	}
	return written, err
}

// acquire runs one averaging batch and swaps in the result. When every scan
// fails the previous spectrum stays in place.
func (s *Session) acquire() (*spectrum.Spectrum, spectrum.Batch) {
	previous := s.latest.Load()
	next, batch := s.averager.Accumulate(s.depth, s.conn, s.conn.Wavelengths(), previous)
	if next != previous {
		s.latest.Store(next)
	}
	return next, batch
}

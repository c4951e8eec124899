package capture

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spectrometer_viewer/internal/device"
)

// fakeDriver is a scripted instrument. A nil entry in scans is a failed read;
// once the script runs out every read fails.
type fakeDriver struct {
	wavelengths []float64
	scans       [][]float64
	reads       int
	integration int
	rejectBelow int
	onRead      func(read int)
}

func (f *fakeDriver) Model() string { return "USB2000" }

func (f *fakeDriver) Wavelengths() ([]float64, error) { return f.wavelengths, nil }

func (f *fakeDriver) SetIntegrationTime(micros int) error {
	if micros < f.rejectBelow {
		return fmt.Errorf("integration time %d us below minimum %d us", micros, f.rejectBelow)
	}
	f.integration = micros
	return nil
}

func (f *fakeDriver) Intensities() ([]float64, error) {
	i := f.reads
	f.reads++
	if f.onRead != nil {
		f.onRead(f.reads)
	}
	if i >= len(f.scans) || f.scans[i] == nil {
		return nil, errors.New("usb read timeout")
	}
	return f.scans[i], nil
}

func (f *fakeDriver) Close() error { return nil }

func newTestSession(drv *fakeDriver) *Session {
	conn := device.NewConnection(func() (device.Driver, error) { return drv, nil })
	return NewSession(conn, Options{})
}

func newCapturingSession(t *testing.T, drv *fakeDriver) *Session {
	t.Helper()
	s := newTestSession(drv)
	require.NoError(t, s.Connect())
	require.NoError(t, s.StartCapture())
	return s
}

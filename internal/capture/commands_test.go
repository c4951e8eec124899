package capture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spectrometer_viewer/internal/device"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

func TestDispatchIntegrationTime(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{1}, rejectBelow: 3000}
	s := newTestSession(drv)
	_, err := Dispatch(s, Command{Action: ActionConnect})
	require.NoError(t, err)

	res, err := Dispatch(s, Command{Action: ActionSetIntegrationTime, Value: "50000"})
	require.NoError(t, err)
	assert.Equal(t, 50000, drv.integration)
	assert.Equal(t, 50000, res.IntegrationMicros)
	assert.Equal(t, "INFO: Integration time set to 50000 us", res.Status)

	// device rejects: previous value stays in effect
	res, err = Dispatch(s, Command{Action: ActionSetIntegrationTime, Value: "10"})
	assert.ErrorIs(t, err, device.ErrDeviceConfig)
	assert.Equal(t, 50000, drv.integration)
	assert.Equal(t, 50000, res.IntegrationMicros)
	assert.Equal(t, Connected, res.State)
}

func TestDispatchRejectsNonNumericInput(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{1}}
	s := newTestSession(drv)
	_, err := Dispatch(s, Command{Action: ActionConnect})
	require.NoError(t, err)

	for _, value := range []string{"", "abc", "12.5", "-4", "0"} {
		res, err := Dispatch(s, Command{Action: ActionSetIntegrationTime, Value: value})
		assert.ErrorIs(t, err, ErrInvalidValue, "value %q", value)
		assert.Equal(t, DefaultIntegrationMicros, res.IntegrationMicros)

		res, err = Dispatch(s, Command{Action: ActionSetScansToAverage, Value: value})
		assert.ErrorIs(t, err, ErrInvalidValue, "value %q", value)
		assert.Equal(t, DefaultScansToAverage, res.ScansToAverage)
	}
	assert.Equal(t, DefaultIntegrationMicros, drv.integration)
}

func TestDispatchScansToAverage(t *testing.T) {
	s := newTestSession(&fakeDriver{})

	res, err := Dispatch(s, Command{Action: ActionSetScansToAverage, Value: " 16 "})
	require.NoError(t, err)
	assert.Equal(t, 16, res.ScansToAverage)
	assert.Equal(t, "INFO: Scans to average set to 16", res.Status)
}

func TestDispatchCaptureCycle(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{330, 331}, scans: [][]float64{{10.5, 20.25}}}
	s := newTestSession(drv)

	res, err := Dispatch(s, Command{Action: ActionStart})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Idle, res.State)

	res, err = Dispatch(s, Command{Action: ActionConnect})
	require.NoError(t, err)
	assert.Equal(t, Connected, res.State)
	assert.Equal(t, "Device initialized: USB2000", res.Status)

	_, err = Dispatch(s, Command{Action: ActionSetScansToAverage, Value: "1"})
	require.NoError(t, err)

	res, err = Dispatch(s, Command{Action: ActionStart})
	require.NoError(t, err)
	assert.Equal(t, Capturing, res.State)

	NewScheduler(s, 0).Tick()

	res, err = Dispatch(s, Command{Action: ActionStop})
	require.NoError(t, err)
	assert.Equal(t, Connected, res.State)

	path := filepath.Join(t.TempDir(), "out.csv")
	res, err = Dispatch(s, Command{Action: ActionExport, Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, "INFO: Data exported to "+path, res.Status)

	res, err = Dispatch(s, Command{Action: ActionExport})
	assert.ErrorIs(t, err, spectrum.ErrNoPath)
	assert.Empty(t, res.Path)
	assert.Equal(t, "ERROR: No file selected", res.Status)
}

func TestDispatchStatusAndUnknown(t *testing.T) {
	s := newTestSession(&fakeDriver{})

	res, err := Dispatch(s, Command{Action: ActionStatus})
	require.NoError(t, err)
	assert.Equal(t, Idle, res.State)
	assert.Equal(t, "STATUS: No device connected", res.Status)
	assert.Equal(t, DefaultScansToAverage, res.ScansToAverage)

	_, err = Dispatch(s, Command{Action: "disconnect"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

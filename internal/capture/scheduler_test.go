package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// mockSink implements RenderSink for testing
type mockSink struct {
	mock.Mock
}

func (m *mockSink) Render(s *spectrum.Spectrum) {
	m.Called(s)
}

func TestTickIsNoOpUnlessCapturing(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{1, 2, 3}, scans: [][]float64{{1, 2, 3}}}
	s := newTestSession(drv)
	sink := &mockSink{}
	sched := NewScheduler(s, 0, sink)

	assert.False(t, sched.Tick(), "idle")
	require.NoError(t, s.Connect())
	assert.False(t, sched.Tick(), "connected")

	assert.Zero(t, drv.reads)
	assert.Nil(t, s.Latest())
	sink.AssertNotCalled(t, "Render", mock.Anything)
}

func TestTickAveragesAndPublishes(t *testing.T) {
	drv := &fakeDriver{
		wavelengths: []float64{400, 500, 600},
		scans: [][]float64{
			{1, 2, 3},
			nil,
			{3, 4, 5},
			{5, 6, 7},
		},
	}
	s := newCapturingSession(t, drv)
	sink := &mockSink{}
	sink.On("Render", mock.AnythingOfType("*spectrum.Spectrum")).Return().Once()
	sched := NewScheduler(s, 0, sink)

	require.True(t, sched.Tick())

	got := s.Latest()
	require.NotNil(t, got)
	assert.Equal(t, 4, drv.reads)
	assert.Equal(t, []float64{3, 4, 5}, got.Intensities)
	assert.Equal(t, []float64{400, 500, 600}, got.Wavelengths)
	assert.Equal(t, 3, got.Scans)
	sink.AssertCalled(t, "Render", got)
	sink.AssertExpectations(t)
}

func TestTickExactMeanForFullBatch(t *testing.T) {
	scans := [][]float64{
		{0.1, 1000, 3},
		{0.2, 2000, 5},
		{0.3, 4000, 7},
		{0.4, 8000, 11},
	}
	drv := &fakeDriver{wavelengths: []float64{1, 2, 3}, scans: scans}
	s := newCapturingSession(t, drv)
	sched := NewScheduler(s, 0)

	require.True(t, sched.Tick())

	got := s.Latest()
	require.NotNil(t, got)
	for px := range got.Intensities {
		sum := 0.0
		for _, scan := range scans {
			sum += scan[px]
		}
		assert.Equal(t, sum/4, got.Intensities[px], "pixel %d", px)
	}
}

func TestTickRetainsPreviousWhenEveryScanFails(t *testing.T) {
	drv := &fakeDriver{
		wavelengths: []float64{1, 2},
		scans:       [][]float64{{2, 4}, {4, 8}, {6, 12}, {8, 16}},
	}
	s := newCapturingSession(t, drv)
	sink := &mockSink{}
	sink.On("Render", mock.Anything).Return()
	sched := NewScheduler(s, 0, sink)
	require.True(t, sched.Tick())

	before := s.Latest()
	require.NotNil(t, before)
	snapshot := append([]float64(nil), before.Intensities...)

	// script exhausted: every further read fails
	require.True(t, sched.Tick())

	after := s.Latest()
	assert.Same(t, before, after)
	assert.Equal(t, snapshot, after.Intensities)
	assert.Equal(t, 8, drv.reads)
	assert.Equal(t, Capturing, s.State())

	// the retained spectrum is drawn again
	sink.AssertNumberOfCalls(t, "Render", 2)
	for _, call := range sink.Calls {
		assert.Same(t, before, call.Arguments.Get(0))
	}
}

func TestTickWithNoSpectrumYetAndAllFailures(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{1, 2}}
	s := newCapturingSession(t, drv)
	sink := &mockSink{}
	sched := NewScheduler(s, 0, sink)

	assert.True(t, sched.Tick())
	assert.Nil(t, s.Latest())
	sink.AssertNotCalled(t, "Render", mock.Anything)
}

func TestStopMidBatchCompletesBatch(t *testing.T) {
	drv := &fakeDriver{
		wavelengths: []float64{1},
		scans:       [][]float64{{1}, {2}, {3}, {4}, {5}},
	}
	s := newCapturingSession(t, drv)
	drv.onRead = func(read int) {
		if read == 2 {
			require.NoError(t, s.StopCapture())
		}
	}
	sched := NewScheduler(s, 0)

	require.True(t, sched.Tick())

	assert.Equal(t, 4, drv.reads, "in-flight batch runs to its configured depth")
	assert.Equal(t, []float64{2.5}, s.Latest().Intensities)
	assert.Equal(t, Connected, s.State())

	// the next tick starts nothing
	assert.False(t, sched.Tick())
	assert.Equal(t, 4, drv.reads)
}

func TestTickUsesCurrentDepth(t *testing.T) {
	drv := &fakeDriver{
		wavelengths: []float64{1},
		scans:       [][]float64{{1}, {2}, {3}, {4}, {5}, {6}},
	}
	s := newCapturingSession(t, drv)
	require.NoError(t, s.SetScansToAverage(2))
	sched := NewScheduler(s, 0)

	sched.Tick()
	assert.Equal(t, 2, drv.reads)
	assert.Equal(t, []float64{1.5}, s.Latest().Intensities)
}

func TestRunExecutesCommandsAndTicks(t *testing.T) {
	drv := &fakeDriver{wavelengths: []float64{1, 2}}
	for i := 0; i < 1000; i++ {
		drv.scans = append(drv.scans, []float64{10, 20})
	}
	s := newTestSession(drv)

	rendered := make(chan *spectrum.Spectrum, 1)
	sched := NewScheduler(s, 5*time.Millisecond, RenderFunc(func(sp *spectrum.Spectrum) {
		select {
		case rendered <- sp:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	res, err := sched.Do(ctx, Command{Action: ActionConnect})
	require.NoError(t, err)
	assert.Equal(t, Connected, res.State)
	assert.Equal(t, "USB2000", res.Model)

	res, err = sched.Do(ctx, Command{Action: ActionStart})
	require.NoError(t, err)
	assert.Equal(t, Capturing, res.State)

	select {
	case sp := <-rendered:
		assert.Equal(t, []float64{10, 20}, sp.Intensities)
	case <-time.After(2 * time.Second):
		t.Fatal("no spectrum rendered")
	}

	res, err = sched.Do(ctx, Command{Action: ActionStop})
	require.NoError(t, err)
	assert.Equal(t, Connected, res.State)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDoHonoursContext(t *testing.T) {
	sched := NewScheduler(newTestSession(&fakeDriver{}), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sched.Do(ctx, Command{Action: ActionStatus})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

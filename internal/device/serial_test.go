package device

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers each '\r' terminated command with a scripted reply line.
type fakePort struct {
	replies map[string]string
	written []string
	pending bytes.Buffer
	partial strings.Builder
	closed  bool
}

func newFakePort() *fakePort {
	return &fakePort{replies: map[string]string{
		"?M": "USB2000",
		"?P": "4",
		"?C": "330.0, 0.5, 0.001, 0",
	}}
}

func (p *fakePort) Write(b []byte) (int, error) {
	for _, c := range b {
		if c != '\r' {
			p.partial.WriteByte(c)
			continue
		}
		cmd := p.partial.String()
		p.partial.Reset()
		p.written = append(p.written, cmd)

		reply, ok := p.replies[cmd]
		if !ok {
			reply = "NAK unknown command"
		}
		fmt.Fprintf(&p.pending, "%s\r\n", reply)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialDriverIdentify(t *testing.T) {
	port := newFakePort()

	d, err := NewSerialDriver(port)
	require.NoError(t, err)

	assert.Equal(t, "USB2000", d.Model())
	assert.Equal(t, []string{"?M", "?P"}, port.written)
}

func TestSerialDriverWavelengths(t *testing.T) {
	d, err := NewSerialDriver(newFakePort())
	require.NoError(t, err)

	wl, err := d.Wavelengths()
	require.NoError(t, err)

	require.Len(t, wl, 4)
	assert.InDelta(t, 330.0, wl[0], 1e-9)
	assert.InDelta(t, 330.501, wl[1], 1e-9)
	assert.InDelta(t, 331.004, wl[2], 1e-9)
	assert.InDelta(t, 331.509, wl[3], 1e-9)
}

func TestSerialDriverIntegrationTime(t *testing.T) {
	port := newFakePort()
	port.replies["I50000"] = "ACK"
	port.replies["I10"] = "NAK below minimum"
	d, err := NewSerialDriver(port)
	require.NoError(t, err)

	require.NoError(t, d.SetIntegrationTime(50000))

	err = d.SetIntegrationTime(10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below minimum")
}

func TestSerialDriverIntensities(t *testing.T) {
	port := newFakePort()
	port.replies["S"] = "10,20,30.5,40"
	d, err := NewSerialDriver(port)
	require.NoError(t, err)

	counts, err := d.Intensities()
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30.5, 40}, counts)

	port.replies["S"] = "10,20"
	_, err = d.Intensities()
	assert.ErrorContains(t, err, `unexpected "10,20"`)

	port.replies["S"] = "10,x,30,40"
	_, err = d.Intensities()
	assert.ErrorContains(t, err, "scan pixel 1")
}

func TestSerialDriverBadIdentity(t *testing.T) {
	port := newFakePort()
	port.replies["?P"] = "zero"

	_, err := NewSerialDriver(port)
	assert.ErrorContains(t, err, `invalid reply "zero"`)
}

func TestSerialDriverSilentPort(t *testing.T) {
	port := newFakePort()
	port.replies = map[string]string{}
	port.pending.Reset()

	_, err := NewSerialDriver(port)
	assert.ErrorContains(t, err, "query model")
}

func TestSerialDriverClose(t *testing.T) {
	port := newFakePort()
	d, err := NewSerialDriver(port)
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.True(t, port.closed)
}

// scriptedPort hands out each command's reply in chunks, the way a slow link
// does. An empty chunk is one read timeout.
type scriptedPort struct {
	t       *testing.T
	script  []scripted
	queue   []string
	partial strings.Builder
}

type scripted struct {
	cmd    string
	chunks []string
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	for _, c := range b {
		if c != '\r' {
			p.partial.WriteByte(c)
			continue
		}
		cmd := p.partial.String()
		p.partial.Reset()

		require.NotEmpty(p.t, p.script, "unscripted command %q", cmd)
		next := p.script[0]
		p.script = p.script[1:]
		require.Equal(p.t, next.cmd, cmd)
		p.queue = append(p.queue, next.chunks...)
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if len(p.queue) == 0 {
		return 0, io.EOF
	}
	chunk := p.queue[0]
	p.queue = p.queue[1:]
	if chunk == "" {
		return 0, io.EOF
	}
	n := copy(b, chunk)
	if n < len(chunk) {
		p.queue = append([]string{chunk[n:]}, p.queue...)
	}
	return n, nil
}

func (p *scriptedPort) Close() error { return nil }

func newScriptedDriver(t *testing.T, script ...scripted) (*SerialDriver, *scriptedPort) {
	t.Helper()
	port := &scriptedPort{t: t, script: append([]scripted{
		{"?M", []string{"USB2000\n"}},
		{"?P", []string{"3\n"}},
	}, script...)}
	d, err := NewSerialDriver(port)
	require.NoError(t, err)
	return d, port
}

func TestSerialDriverRecoversAfterTimeout(t *testing.T) {
	d, port := newScriptedDriver(t,
		scripted{"S", []string{"1,2,", "", "3\n"}},
		scripted{"S", []string{"4,5,6\n"}},
		scripted{"I50000", []string{"ACK\n"}},
		scripted{"S", []string{"7,8,9\n"}},
	)

	_, err := d.Intensities()
	require.Error(t, err)

	counts, err := d.Intensities()
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, counts)

	require.NoError(t, d.SetIntegrationTime(50000))

	counts, err = d.Intensities()
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, counts)

	assert.Empty(t, port.script)
}

func TestSerialDriverSkipsStaleLines(t *testing.T) {
	d, _ := newScriptedDriver(t,
		scripted{"I50000", []string{"3\n", "ACK\n"}},
		scripted{"S", []string{"ACK\n1,", "2,3\n"}},
	)

	require.NoError(t, d.SetIntegrationTime(50000))

	counts, err := d.Intensities()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, counts)
}

func TestSerialDriverGivesUpOnGarbage(t *testing.T) {
	garbage := strings.Repeat("x\n", maxStaleLines+1)
	d, port := newScriptedDriver(t,
		scripted{"I50000", []string{garbage, "more noise"}},
		scripted{"I50000", []string{"ACK\n"}},
	)

	err := d.SetIntegrationTime(50000)
	assert.ErrorContains(t, err, `unexpected "x"`)
	assert.Empty(t, port.queue, "leftovers drained")

	require.NoError(t, d.SetIntegrationTime(50000))
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/spectrometer_viewer/internal/config"
)

// SerialDriver speaks the line-oriented ASCII command set of the
// spectrometer's serial bridge. Commands end in '\r', replies in '\n':
//
//	?M        model string
//	?P        detector pixel count
//	?C        c0,c1,c2,c3 wavelength polynomial, λ(p) = c0 + c1·p + c2·p² + c3·p³
//	I<us>     set integration time, ACK or NAK <reason>
//	S         one scan as comma separated counts, or NAK <reason>
type SerialDriver struct {
	port   io.ReadWriteCloser
	r      *bufio.Reader
	model  string
	pixels int
}

// OpenSerial opens the configured serial port and identifies the instrument.
func OpenSerial(cfg *config.Config) (Driver, error) {
	serialOpts := serial.OpenOptions{
		PortName:              cfg.SerialPort,
		BaudRate:              uint(cfg.SerialBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: uint(cfg.SerialReadTimeoutMS),
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", serialOpts.PortName, err)
	}
	log.Printf("device: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	d, err := NewSerialDriver(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// NewSerialDriver identifies the instrument on an already open port.
func NewSerialDriver(port io.ReadWriteCloser) (*SerialDriver, error) {
	d := &SerialDriver{port: port, r: bufio.NewReader(port)}

	model, err := d.command("?M", nil)
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}
	if model == "" {
		return nil, fmt.Errorf("query model: empty reply")
	}
	d.model = model

	reply, err := d.command("?P", nil)
	if err != nil {
		return nil, fmt.Errorf("query pixel count: %w", err)
	}
	pixels, err := strconv.Atoi(reply)
	if err != nil || pixels <= 0 {
		return nil, fmt.Errorf("query pixel count: invalid reply %q", reply)
	}
	d.pixels = pixels

	return d, nil
}

const (
	// replies that fail their shape check are skipped as leftovers of an
	// earlier command, at most this many per command
	maxStaleLines = 4
	// upper bound on bytes thrown away while resynchronizing
	maxDrainBytes = 1 << 20
)

// command sends one command and returns the trimmed reply line. Lines that
// accept rejects are taken to be stale replies and skipped; a NAK is always
// returned as an error.
//
// Any read failure leaves the link in an unknown state, so the driver drains
// the port until it goes quiet before reporting it. The next command then
// starts on a clean line.
func (d *SerialDriver) command(cmd string, accept func(string) bool) (string, error) {
	// a previous reply may have carried more than one line
	d.r.Discard(d.r.Buffered())

	if _, err := io.WriteString(d.port, cmd+"\r"); err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}

	var skipped string
	for stale := 0; ; stale++ {
		line, err := d.r.ReadString('\n')
		if err != nil {
			d.resync()
			if skipped != "" {
				return "", fmt.Errorf("reply to %q: unexpected %q: %w", cmd, skipped, err)
			}
			return "", fmt.Errorf("read reply to %q: %w", cmd, err)
		}
		line = strings.TrimSpace(line)

		if reason, ok := strings.CutPrefix(line, "NAK"); ok {
			return "", fmt.Errorf("instrument rejected %q: %s", cmd, strings.TrimSpace(reason))
		}
		if accept == nil || accept(line) {
			return line, nil
		}

		if stale == maxStaleLines {
			d.resync()
			return "", fmt.Errorf("reply to %q: unexpected %q", cmd, line)
		}
		log.Printf("device: skipping stale reply %.40q while waiting for %q", line, cmd)
		skipped = line
	}
}

// resync throws away everything the instrument still has to say. The port's
// read timeout ends the drain once the line is quiet.
func (d *SerialDriver) resync() {
	d.r.Reset(d.port)

	buf := make([]byte, 512)
	drained := 0
	for drained < maxDrainBytes {
		n, err := d.port.Read(buf)
		drained += n
		if n == 0 || err != nil {
			break
		}
	}
	if drained > 0 {
		log.Printf("device: resync discarded %d bytes", drained)
	}
}

func isAck(line string) bool {
	return line == "ACK"
}

func fieldCount(n int) func(string) bool {
	return func(line string) bool {
		return strings.Count(line, ",")+1 == n
	}
}

func (d *SerialDriver) Model() string {
	return d.model
}

// Wavelengths evaluates the calibration polynomial for every pixel.
func (d *SerialDriver) Wavelengths() ([]float64, error) {
	reply, err := d.command("?C", fieldCount(4))
	if err != nil {
		return nil, err
	}

	fields := strings.Split(reply, ",")
	if len(fields) != 4 {
		return nil, fmt.Errorf("calibration: want 4 coefficients, got %d in %q", len(fields), reply)
	}
	var c [4]float64
	for i, f := range fields {
		c[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("calibration coefficient %d: %w", i, err)
		}
	}

	wavelengths := make([]float64, d.pixels)
	for p := range wavelengths {
		x := float64(p)
		wavelengths[p] = c[0] + c[1]*x + c[2]*x*x + c[3]*x*x*x
	}
	return wavelengths, nil
}

func (d *SerialDriver) SetIntegrationTime(micros int) error {
	_, err := d.command("I"+strconv.Itoa(micros), isAck)
	return err
}

func (d *SerialDriver) Intensities() ([]float64, error) {
	reply, err := d.command("S", fieldCount(d.pixels))
	if err != nil {
		return nil, err
	}

	fields := strings.Split(reply, ",")
	if len(fields) != d.pixels {
		return nil, fmt.Errorf("scan: got %d values, want %d", len(fields), d.pixels)
	}
	counts := make([]float64, len(fields))
	for i, f := range fields {
		counts[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("scan pixel %d: %w", i, err)
		}
	}
	return counts, nil
}

func (d *SerialDriver) Close() error {
	return d.port.Close()
}

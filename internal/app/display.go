package app

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

const (
	panelWidth  = 128
	panelHeight = 64

	// status text occupies the first 14 rows, the trace the rest
	plotTop     = 14
	plotHeight  = panelHeight - plotTop
	statusChars = panelWidth / 7
)

// panelDevice is the part of ssd1306.Dev the panel draws through.
type panelDevice interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Panel is a 128x64 OLED render sink: one status line and a trace of the
// latest spectrum. Render and SetStatus only post into mailboxes; Run does
// the I2C writes at the display's own pace.
type Panel struct {
	dev     panelDevice
	bus     i2c.BusCloser
	spectra *capture.Mailbox[*spectrum.Spectrum]
	status  *capture.Mailbox[string]
}

func newPanel(dev panelDevice) *Panel {
	return &Panel{
		dev:     dev,
		spectra: capture.NewMailbox[*spectrum.Spectrum](),
		status:  capture.NewMailbox[string](),
	}
}

// OpenPanel initializes periph and the SSD1306 on cfg.DisplayI2CBus.
func OpenPanel(cfg *config.Config) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on bus %q", cfg.DisplayI2CBus)

	p := newPanel(dev)
	p.bus = bus

	if err := p.dev.Draw(p.dev.Bounds(), splashFrame(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return p, nil
}

// Render implements capture.RenderSink.
func (p *Panel) Render(s *spectrum.Spectrum) {
	p.spectra.Put(s)
}

func (p *Panel) SetStatus(status string) {
	p.status.Put(status)
}

// Run redraws the panel every interval while something changed, until ctx
// is cancelled.
func (p *Panel) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	status := "Waiting..."
	var latest *spectrum.Spectrum

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		changed := false
		if s, ok := p.status.Take(); ok {
			status, changed = s, true
		}
		if s, ok := p.spectra.Take(); ok {
			latest, changed = s, true
		}
		if !changed {
			continue
		}

		if err := p.dev.Draw(p.dev.Bounds(), renderFrame(status, latest), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

func (p *Panel) Close() error {
	if err := p.dev.Halt(); err != nil {
		log.Printf("display: halt error: %v", err)
	}
	if p.bus != nil {
		return p.bus.Close()
	}
	return nil
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, panelWidth, panelHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{image1bit.Off}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func splashFrame() *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(15, 26)
	drawer.DrawBytes([]byte("Spectrometer"))

	drawer.Dot = fixed.P(36, 43)
	drawer.DrawBytes([]byte("Viewer"))

	return img
}

// renderFrame draws status on the first line and s as a trace scaled to its
// own maximum below it. Detector pixels are binned per column, keeping the
// highest value so narrow lines stay visible.
func renderFrame(status string, s *spectrum.Spectrum) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	if len(status) > statusChars {
		status = status[:statusChars]
	}
	drawer.Dot = fixed.P(0, 11)
	drawer.DrawBytes([]byte(status))

	if s.Empty() {
		return img
	}

	cols := columnMaxima(s.Intensities, panelWidth)
	lo, hi := cols[0], cols[0]
	for _, v := range cols {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo

	prev := -1
	for x, v := range cols {
		y := panelHeight - 1
		if span > 0 {
			y = panelHeight - 1 - int((v-lo)/span*float64(plotHeight-1)+0.5)
		}
		if prev < 0 {
			prev = y
		}
		// join to the previous column so steep edges stay connected
		from, to := min(prev, y), max(prev, y)
		for yy := from; yy <= to; yy++ {
			img.SetBit(x, yy, image1bit.On)
		}
		prev = y
	}
	return img
}

// columnMaxima reduces values to n columns. With fewer values than columns
// each value is stretched over several columns.
func columnMaxima(values []float64, n int) []float64 {
	cols := make([]float64, n)
	for x := range cols {
		start := x * len(values) / n
		end := (x + 1) * len(values) / n
		if end <= start {
			end = start + 1
		}
		m := values[start]
		for _, v := range values[start+1 : end] {
			m = max(m, v)
		}
		cols[x] = m
	}
	return cols
}

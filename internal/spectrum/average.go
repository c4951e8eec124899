package spectrum

import (
	"fmt"
	"log"
	"time"
)

// Batch describes what happened during one averaging cycle.
type Batch struct {
	Attempts  int
	Succeeded int
	Errors    []error
}

// Failed reports whether no scan in the batch could be used.
func (b Batch) Failed() bool {
	return b.Succeeded == 0
}

// Averager reduces consecutive raw scans to their per-pixel arithmetic mean.
type Averager struct {
	// now is replaceable in tests
	now func() time.Time
}

// NewAverager returns an Averager stamping results with the wall clock.
func NewAverager() *Averager {
	return &Averager{now: time.Now}
}

// Accumulate attempts exactly depth acquisitions from src. Failed
// acquisitions are logged and skipped. If at least one scan succeeded the
// result is a new Spectrum holding the mean of the successful scans; if none
// did, previous is returned unchanged.
//
// A scan whose length differs from wavelengths counts as a failure.
func (a *Averager) Accumulate(depth int, src ScanSource, wavelengths []float64, previous *Spectrum) (*Spectrum, Batch) {
	batch := Batch{}
	sum := make([]float64, len(wavelengths))

	for i := 0; i < depth; i++ {
		batch.Attempts++

		scan, err := src.AcquireScan()
		if err == nil && len(scan) != len(wavelengths) {
			err = fmt.Errorf("scan has %d pixels, calibration has %d", len(scan), len(wavelengths))
		}
		if err != nil {
			log.Printf("averager: scan %d/%d skipped: %v", i+1, depth, err)
			batch.Errors = append(batch.Errors, err)
			continue
		}

		for px, v := range scan {
			sum[px] += v
		}
		batch.Succeeded++
	}

	if batch.Failed() {
		return previous, batch
	}

	n := float64(batch.Succeeded)
	for px := range sum {
		sum[px] /= n
	}

	return &Spectrum{
		Wavelengths: wavelengths,
		Intensities: sum,
		Scans:       batch.Succeeded,
		Time:        a.now(),
	}, batch
}

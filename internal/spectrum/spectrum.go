package spectrum

import "time"

// RawScan is one full-length intensity reading from a single acquisition.
type RawScan []float64

// Spectrum is an averaged reading paired with the device wavelength
// calibration. A Spectrum is never modified after it is built; a new batch
// produces a new value.
type Spectrum struct {
	Wavelengths []float64 `json:"wavelengths"` // nm, shared with the device
	Intensities []float64 `json:"intensities"` // counts
	Scans       int       `json:"scans"`       // successful scans in the mean
	Time        time.Time `json:"time"`
}

// Len returns the number of detector pixels, or 0 for a nil spectrum.
func (s *Spectrum) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Intensities)
}

// Empty reports whether there is nothing to render or export.
func (s *Spectrum) Empty() bool {
	return s.Len() == 0
}

// ScanSource is anything that can produce raw scans one at a time.
type ScanSource interface {
	AcquireScan() (RawScan, error)
}

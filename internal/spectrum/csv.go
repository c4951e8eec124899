package spectrum

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrExport is the root of every export failure.
	ErrExport = errors.New("export")
	// ErrNoData means there is no averaged spectrum yet.
	ErrNoData = fmt.Errorf("%w: no data", ErrExport)
	// ErrNoPath means no destination was chosen.
	ErrNoPath = fmt.Errorf("%w: no path", ErrExport)
	// ErrUnsafePath means the destination is absolute or climbs out of the
	// export directory.
	ErrUnsafePath = fmt.Errorf("%w: path must be a relative name inside the export directory", ErrExport)
)

var csvHeader = []string{"Wavelength", "Intensity"}

// FormatValue renders v as the shortest decimal that parses back to the same
// float64. Integral values keep a trailing ".0" and magnitudes outside
// [1e-4, 1e16) switch to exponent form, e.g. 330.0, 20.25, 1e-05.
func FormatValue(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// WriteCSV writes s as a two-column table with a Wavelength,Intensity header.
func WriteCSV(w io.Writer, s *Spectrum) error {
	if s.Empty() {
		return ErrNoData
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i, intensity := range s.Intensities {
		if err := cw.Write([]string{FormatValue(s.Wavelengths[i]), FormatValue(intensity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes s to path and returns the path written.
func Export(path string, s *Spectrum) (string, error) {
	if s.Empty() {
		return "", ErrNoData
	}
	if path == "" {
		return "", ErrNoPath
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := writeFile(f, path, s); err != nil {
		return "", err
	}
	return path, nil
}

// ExportIn writes s to name inside dir and returns the path written. The
// directory is created on demand; name must stay inside it, symlinks
// included.
func ExportIn(dir, name string, s *Spectrum) (string, error) {
	if s.Empty() {
		return "", ErrNoData
	}
	if name == "" {
		return "", ErrNoPath
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer root.Close()

	f, err := root.Create(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	path := filepath.Join(dir, name)
	if err := writeFile(f, path, s); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(f *os.File, path string, s *Spectrum) error {
	if err := WriteCSV(f, s); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrExport, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrExport, path, err)
	}
	return nil
}

// ReadCSV parses a table produced by WriteCSV.
func ReadCSV(r io.Reader) (*Spectrum, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 || records[0][0] != csvHeader[0] || records[0][1] != csvHeader[1] {
		return nil, fmt.Errorf("read csv: missing %s header", strings.Join(csvHeader, ","))
	}

	rows := records[1:]
	s := &Spectrum{
		Wavelengths: make([]float64, len(rows)),
		Intensities: make([]float64, len(rows)),
	}
	for i, rec := range rows {
		if s.Wavelengths[i], err = strconv.ParseFloat(rec[0], 64); err != nil {
			return nil, fmt.Errorf("read csv row %d: wavelength: %w", i+2, err)
		}
		if s.Intensities[i], err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, fmt.Errorf("read csv row %d: intensity: %w", i+2, err)
		}
	}
	return s, nil
}

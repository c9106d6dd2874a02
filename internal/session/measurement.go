package session

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

// Measurement is one row of the measurement table.
type Measurement struct {
	Index         int
	FWHM          float64 // pixels
	PulseDuration float64 // fs
	PeakIntensity float64
}

// MeasurementFromFit builds the row for a fitted frame.
func MeasurementFromFit(index int, res fit.Result) Measurement {
	return Measurement{
		Index:         index,
		FWHM:          res.FWHM,
		PulseDuration: res.PulseDuration,
		PeakIntensity: res.Amplitude,
	}
}

// Row formats m as a table line without the trailing newline. Floats use the
// shortest representation that round-trips.
func (m Measurement) Row() string {
	return strings.Join([]string{
		fmt.Sprintf("%05d", m.Index),
		formatFloat(m.FWHM),
		formatFloat(m.PulseDuration),
		formatFloat(m.PeakIntensity),
	}, Separator)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadMeasurements parses the measurement table under root.
func ReadMeasurements(fsys fsutil.FileSystem, root string) ([]Measurement, error) {
	data, err := fsys.ReadFile(TablePath(root))
	if err != nil {
		return nil, fmt.Errorf("read measurements: %w", err)
	}
	return ParseMeasurements(bytes.NewReader(data))
}

// ParseMeasurements reads a measurement table, header included.
func ParseMeasurements(r io.Reader) ([]Measurement, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 4

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("measurement table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, Separator) != Header {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(header, Separator))
	}

	var out []Measurement
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(out)+1, err)
		}
		m, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
		}
		out = append(out, m)
	}
}

func parseRow(rec []string) (Measurement, error) {
	idx, err := strconv.Atoi(rec[0])
	if err != nil {
		return Measurement{}, fmt.Errorf("frame index %q: %w", rec[0], err)
	}
	var vals [3]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Measurement{}, fmt.Errorf("field %d %q: %w", i+2, rec[i+1], err)
		}
	}
	return Measurement{Index: idx, FWHM: vals[0], PulseDuration: vals[1], PeakIntensity: vals[2]}, nil
}

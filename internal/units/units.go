// Package units provides shared constants and conversion for pulse-duration units
package units

import "fmt"

// Unit constants
const (
	AS = "as" // attoseconds
	FS = "fs" // femtoseconds
	PS = "ps" // picoseconds
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{AS, FS, PS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "as, fs, ps"
}

// ConvertDuration converts a pulse duration from femtoseconds to the target units.
// Calibration and the CSV table are always in fs.
func ConvertDuration(durationFS float64, targetUnits string) float64 {
	switch targetUnits {
	case AS:
		return durationFS * 1000
	case PS:
		return durationFS / 1000
	case FS:
		return durationFS
	default:
		return durationFS // default to fs if unknown unit
	}
}

// FormatDuration renders a femtosecond duration in the target units with the unit suffix.
func FormatDuration(durationFS float64, targetUnits string) string {
	if !IsValid(targetUnits) {
		targetUnits = FS
	}
	return fmt.Sprintf("%.2f %s", ConvertDuration(durationFS, targetUnits), targetUnits)
}

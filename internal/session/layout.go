// Package session owns the on-disk layout of one recording run: the video
// stream, the still frames, the fitted plots and the measurement table, all
// keyed by the same zero-padded frame index.
package session

import (
	"fmt"
	"path/filepath"
)

// Layout names under a session root.
const (
	FramesDir        = "Frames"
	PlotsDir         = "Plots"
	MeasurementsFile = "intensity_data.csv"

	// Separator joins fields in the measurement table.
	Separator = ", "
)

// Header is the first line of every measurement table.
const Header = "Frame" + Separator + "FWHM (px)" + Separator + "Pulse Duration (fs)" + Separator + "Peak Intensity"

// FrameName is the still-image file name for index.
func FrameName(index int) string {
	return fmt.Sprintf("frame_%05d.jpg", index)
}

// PlotName is the plot-image file name for index.
func PlotName(index int) string {
	return fmt.Sprintf("frame_%05d.png", index)
}

// ExtractPlotName is the plot-image file name for a single-sample extraction
// taken while the next periodic index was index.
func ExtractPlotName(index int) string {
	return fmt.Sprintf("extract_%05d.png", index)
}

// FramePath is the still-image path for index under root.
func FramePath(root string, index int) string {
	return filepath.Join(root, FramesDir, FrameName(index))
}

// PlotPath is the plot-image path for index under root.
func PlotPath(root string, index int) string {
	return filepath.Join(root, PlotsDir, PlotName(index))
}

// ExtractPlotPath is the extraction plot path for index under root.
func ExtractPlotPath(root string, index int) string {
	return filepath.Join(root, PlotsDir, ExtractPlotName(index))
}

// TablePath is the measurement table path under root.
func TablePath(root string) string {
	return filepath.Join(root, MeasurementsFile)
}

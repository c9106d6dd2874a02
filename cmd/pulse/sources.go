package main

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/banshee-data/pulse.report/internal/capture"
	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

type sourceFlags struct {
	replayDir  string
	replayLoop bool
	screenRect string
	seed       uint64
}

// openSource builds the frame source named by kind.
func openSource(kind string, cfg *config.PipelineConfig, f sourceFlags) (capture.Source, error) {
	switch kind {
	case "camera":
		return capture.OpenCamera(cfg.GetCameraIndex(), cfg.GetFrameWidth(), cfg.GetFrameHeight())
	case "synthetic":
		return capture.NewSyntheticSource(cfg.GetFrameWidth(), cfg.GetFrameHeight(), f.seed), nil
	case "screen":
		rect, err := parseRect(f.screenRect)
		if err != nil {
			return nil, err
		}
		return capture.NewScreenSource(rect)
	case "replay":
		if f.replayDir == "" {
			return nil, fmt.Errorf("source=replay needs -replay-dir")
		}
		return capture.NewReplaySource(fsutil.OSFileSystem{}, f.replayDir, f.replayLoop)
	}
	return nil, fmt.Errorf("unknown source %q: expected camera, synthetic, screen or replay", kind)
}

// parseRect reads "x0,y0,x1,y1". Empty means the whole screen.
func parseRect(s string) (image.Rectangle, error) {
	if strings.TrimSpace(s) == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("screen rect %q: want x0,y0,x1,y1", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("screen rect %q: %w", s, err)
		}
		v[i] = n
	}
	r := image.Rect(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("screen rect %q is empty", s)
	}
	return r, nil
}

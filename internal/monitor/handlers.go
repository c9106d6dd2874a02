package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pulse.report/internal/httputil"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/security"
	"github.com/banshee-data/pulse.report/internal/session"
	"github.com/banshee-data/pulse.report/internal/units"
	"github.com/banshee-data/pulse.report/internal/version"
)

// StatusResponse is the JSON body of /api/status and of every command.
type StatusResponse struct {
	State     string         `json:"state"`
	SessionID string         `json:"session_id,omitempty"`
	Root      string         `json:"root,omitempty"`
	NextIndex int            `json:"next_index"`
	Stats     session.Stats  `json:"stats"`
	LastRoot  string         `json:"last_root,omitempty"`
	Loop      pipeline.Stats `json:"loop"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// ExtractResponse is the JSON body of a successful extraction.
type ExtractResponse struct {
	Index         int            `json:"frame_index"`
	Fitted        bool           `json:"fitted"`
	FWHM          float64        `json:"fwhm_px,omitempty"`
	PulseDuration float64        `json:"pulse_duration_fs,omitempty"`
	PeakIntensity float64        `json:"peak_intensity,omitempty"`
	Display       string         `json:"pulse_duration,omitempty"`
	Status        StatusResponse `json:"status"`
}

func (ws *WebServer) statusResponse(st recording.Status) StatusResponse {
	resp := StatusResponse{
		State:     st.State.String(),
		SessionID: st.SessionID,
		Root:      st.Root,
		NextIndex: st.NextIndex,
		Stats:     st.Stats,
		LastRoot:  st.LastRoot,
	}
	if ws.loop != nil {
		resp.Loop = ws.loop.Stats()
	}
	return resp
}

func (ws *WebServer) currentStatus() recording.Status {
	if ws.status == nil {
		return recording.Status{}
	}
	return ws.status.Status()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "pulse",
		"version":   version.String(),
		"uptime":    ws.clock.Since(ws.startedAt).Round(time.Second).String(),
		"timestamp": ws.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebServer) handleLivePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := renderProfileChart(ws.view.Snapshot(), ws.currentStatus(), ws.unit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (ws *WebServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w)
		return
	}
	data, ok, err := ws.view.PreviewJPEG()
	switch {
	case !ok:
		httputil.NotFound(w, "no frame captured yet")
		return
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode preview: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.statusResponse(ws.currentStatus()))
}

// handleToggle starts or stops recording. `dir` names the base directory
// for a start, absolute or relative to the output directory, and must stay
// inside it. It is ignored by a stop. No dir means the choice was cancelled.
func (ws *WebServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	chooser := recording.StaticChooser("")
	if dir := r.FormValue("dir"); dir != "" {
		resolved, err := security.ResolveWithinDirectory(dir, ws.outputDir)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		chooser = recording.StaticChooser(resolved)
	}

	rep, ok := ws.submit(w, r, pipeline.CmdToggle, chooser)
	if !ok {
		return
	}
	if rep.Err != nil {
		// a failed start is distinct from a cancelled one, which is a 200
		httputil.InternalServerError(w, rep.Err.Error())
		return
	}
	resp := ws.statusResponse(rep.Status)
	resp.Cancelled = rep.Before == recording.Idle && rep.Status.State == recording.Idle
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	rep, ok := ws.submit(w, r, pipeline.CmdExtract, nil)
	if !ok {
		return
	}
	switch {
	case errors.Is(rep.Err, recording.ErrNoSession):
		httputil.Conflict(w, rep.Err.Error())
		return
	case errors.Is(rep.Err, recording.ErrNoFrame):
		httputil.ServiceUnavailable(w, rep.Err.Error())
		return
	case rep.Err != nil:
		httputil.InternalServerError(w, rep.Err.Error())
		return
	}

	o := rep.Outcome
	resp := ExtractResponse{Index: o.Index, Fitted: o.Fitted, Status: ws.statusResponse(rep.Status)}
	if o.Fitted {
		resp.FWHM = o.Measurement.FWHM
		resp.PulseDuration = o.Measurement.PulseDuration
		resp.PeakIntensity = o.Measurement.PeakIntensity
		resp.Display = units.FormatDuration(o.Measurement.PulseDuration, ws.unit)
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleExit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	rep, ok := ws.submit(w, r, pipeline.CmdExit, nil)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, ws.statusResponse(rep.Status))
}

func (ws *WebServer) submit(w http.ResponseWriter, r *http.Request, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, bool) {
	if ws.loop == nil {
		httputil.ServiceUnavailable(w, "capture loop not running")
		return pipeline.Reply{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), ws.timeout)
	defer cancel()

	rep, err := ws.loop.Submit(ctx, cmd, chooser)
	if err != nil {
		httputil.ServiceUnavailable(w, fmt.Sprintf("%s: %v", cmd, err))
		return pipeline.Reply{}, false
	}
	return rep, true
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.catalog == nil {
		httputil.NotFound(w, "session catalog disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	sessions, err := ws.catalog.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (ws *WebServer) handleSessionFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.catalog == nil {
		httputil.NotFound(w, "session catalog disabled")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "id is required")
		return
	}
	frames, err := ws.catalog.Frames(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, frames)
}

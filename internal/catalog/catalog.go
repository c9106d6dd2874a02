// Package catalog keeps a SQLite index of recording sessions and every frame
// they processed, including frames whose fit failed.
package catalog

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/session"
)

const timeLayout = time.RFC3339Nano

// Catalog is the session index. It implements recording.Journal.
type Catalog struct {
	*sql.DB
	path string
}

var _ recording.Journal = (*Catalog)(nil)

// Open opens (or creates) the catalog at path and migrates it to the latest
// schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	// one writer; the pragmas above are per connection
	db.SetMaxOpenConns(1)

	c := &Catalog{DB: db, path: path}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database file.
func (c *Catalog) Path() string { return c.path }

// SessionStarted records a new session.
func (c *Catalog) SessionStarted(s *session.Session) error {
	_, err := c.Exec(
		`INSERT INTO sessions (session_id, root, started_at) VALUES (?, ?, ?)`,
		s.ID.String(), s.Root, s.StartedAt.UTC().Format(timeLayout),
	)
	return err
}

// FrameRecorded records one processed frame. Frames without a fit are kept
// with fit_ok = 0 and null measurements.
func (c *Catalog) FrameRecorded(s *session.Session, e recording.FrameEntry) error {
	var fwhm, dur, peak sql.NullFloat64
	if e.Fitted {
		fwhm = sql.NullFloat64{Float64: e.Measurement.FWHM, Valid: true}
		dur = sql.NullFloat64{Float64: e.Measurement.PulseDuration, Valid: true}
		peak = sql.NullFloat64{Float64: e.Measurement.PeakIntensity, Valid: true}
	}
	_, err := c.Exec(
		`INSERT OR REPLACE INTO frames (
			session_id, frame_index, recorded_at, fit_ok, extracted,
			fwhm_px, pulse_duration_fs, peak_intensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), e.Index, e.At.UTC().Format(timeLayout), e.Fitted, e.Extracted,
		fwhm, dur, peak,
	)
	return err
}

// SessionEnded stores the end time and artifact counts.
func (c *Catalog) SessionEnded(s *session.Session, stats session.Stats, at time.Time) error {
	res, err := c.Exec(
		`UPDATE sessions SET ended_at = ?, video_frames = ?, stills = ?, measurements = ?
		WHERE session_id = ?`,
		at.UTC().Format(timeLayout), stats.VideoFrames, stats.Stills, stats.Measurements, s.ID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not in catalog", s.ID)
	}
	return nil
}

// SessionSummary is one row of the sessions table.
type SessionSummary struct {
	ID           string     `json:"session_id"`
	Root         string     `json:"root"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	VideoFrames  int        `json:"video_frames"`
	Stills       int        `json:"stills"`
	Measurements int        `json:"measurements"`
	Imported     bool       `json:"imported"`
}

// Sessions returns the most recent sessions first.
func (c *Catalog) Sessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.Query(`SELECT session_id, root, started_at, ended_at, video_frames, stills, measurements, imported
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s       SessionSummary
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Root, &started, &ended, &s.VideoFrames, &s.Stills, &s.Measurements, &s.Imported); err != nil {
			return nil, err
		}
		if s.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("session %s started_at: %w", s.ID, err)
		}
		if ended.Valid {
			t, err := time.Parse(timeLayout, ended.String)
			if err != nil {
				return nil, fmt.Errorf("session %s ended_at: %w", s.ID, err)
			}
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FrameRow is one row of the frames table.
type FrameRow struct {
	Index         int      `json:"frame_index"`
	FitOK         bool     `json:"fit_ok"`
	Extracted     bool     `json:"extracted"`
	FWHM          *float64 `json:"fwhm_px,omitempty"`
	PulseDuration *float64 `json:"pulse_duration_fs,omitempty"`
	PeakIntensity *float64 `json:"peak_intensity,omitempty"`
}

// Frames returns a session's frames in index order.
func (c *Catalog) Frames(sessionID string) ([]FrameRow, error) {
	rows, err := c.Query(`SELECT frame_index, fit_ok, extracted, fwhm_px, pulse_duration_fs, peak_intensity
		FROM frames WHERE session_id = ? ORDER BY frame_index, extracted`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var (
			f               FrameRow
			fwhm, dur, peak sql.NullFloat64
		)
		if err := rows.Scan(&f.Index, &f.FitOK, &f.Extracted, &fwhm, &dur, &peak); err != nil {
			return nil, err
		}
		f.FWHM, f.PulseDuration, f.PeakIntensity = nullable(fwhm), nullable(dur), nullable(peak)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// importNamespace derives stable IDs for imported sessions so re-importing
// the same directory updates rather than duplicates.
var importNamespace = uuid.MustParse("5b0e3c2a-8f0d-4a57-9a43-6f3f0c1d2e7b")

// ImportSession indexes a session directory recorded without the catalog.
// Only fitted rows are known from the table, so no-fit frames are absent. A
// row is an extraction when its index has an extraction plot and it is not
// the periodic row for that index, which is always the last one written.
func (c *Catalog) ImportSession(fsys fsutil.FileSystem, root string) (string, error) {
	rows, err := session.ReadMeasurements(fsys, root)
	if err != nil {
		return "", err
	}
	stills, err := fsys.List(filepath.Join(root, session.FramesDir))
	if err != nil {
		return "", fmt.Errorf("list stills: %w", err)
	}

	started, err := time.ParseInLocation(recording.TimestampLayout, filepath.Base(root), time.Local)
	if err != nil {
		started = time.Unix(0, 0)
	}
	id := uuid.NewSHA1(importNamespace, []byte(filepath.Clean(root))).String()

	last := make(map[int]int, len(rows))
	for i, m := range rows {
		last[m.Index] = i
	}
	extracted := make([]bool, len(rows))
	periodic := 0
	for i, m := range rows {
		extracted[i] = fsys.Exists(session.ExtractPlotPath(root, m.Index)) &&
			(i != last[m.Index] || !fsys.Exists(session.PlotPath(root, m.Index)))
		if !extracted[i] {
			periodic++
		}
	}

	tx, err := c.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions (session_id, root, started_at, stills, measurements, imported)
		VALUES (?, ?, ?, ?, ?, 1)`,
		id, root, started.UTC().Format(timeLayout), len(stills), periodic,
	); err != nil {
		return "", err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO frames (
			session_id, frame_index, recorded_at, fit_ok, extracted, fwhm_px, pulse_duration_fs, peak_intensity
		) VALUES (?, ?, ?, 1, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for i, m := range rows {
		if _, err := stmt.Exec(id, m.Index, started.UTC().Format(timeLayout), extracted[i], m.FWHM, m.PulseDuration, m.PeakIntensity); err != nil {
			return "", fmt.Errorf("frame %05d: %w", m.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// AttachAdminRoutes mounts the SQL browser for the catalog under
// /debug/tailsql/.
func (c *Catalog) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(c.path), c.DB, &tailsql.DBOptions{
		Label: "Session catalog",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}

package engine

import (
	"math"
	"time"

	"github.com/MrWong99/earpiece/internal/mitigation"
	"github.com/MrWong99/earpiece/internal/params"
)

// Status is a point-in-time view of the engine, suitable for JSON encoding.
type Status struct {
	State   string `json:"state"`
	Running bool   `json:"running"`

	// Stream and Candidate describe the open streams while running.
	Stream    string `json:"stream,omitempty"`
	Candidate string `json:"candidate,omitempty"`

	StartedAt     time.Time `json:"started_at,omitzero"`
	UptimeSeconds float64   `json:"uptime_seconds"`

	FramesProcessed uint64 `json:"frames_processed"`
	FramesDropped   uint64 `json:"frames_dropped"`
	ClippedSamples  uint64 `json:"clipped_samples"`

	InputDBFS  float64 `json:"input_dbfs"`
	OutputDBFS float64 `json:"output_dbfs"`

	Params     ParamsStatus       `json:"params"`
	Mitigation *mitigation.Status `json:"mitigation,omitempty"`

	// LastError is the error that ended the last session or failed the last
	// start.
	LastError string `json:"last_error,omitempty"`
}

// ParamsStatus mirrors [params.Snapshot] with JSON names.
type ParamsStatus struct {
	Amplification     float64 `json:"amplification"`
	LowDB             float64 `json:"low_db"`
	MidDB             float64 `json:"mid_db"`
	HighDB            float64 `json:"high_db"`
	MitigationEnabled bool    `json:"mitigation_enabled"`
	Version           uint64  `json:"version"`
}

// NewParamsStatus converts a snapshot.
func NewParamsStatus(p params.Snapshot) ParamsStatus {
	return ParamsStatus{
		Amplification:     p.Amplification,
		LowDB:             p.BandGains[0],
		MidDB:             p.BandGains[1],
		HighDB:            p.BandGains[2],
		MitigationEnabled: p.MitigationEnabled,
		Version:           p.Version,
	}
}

// Status returns the current engine status. It never blocks on Start or
// Stop.
func (e *Engine) Status() Status {
	st := Status{
		State:      e.State().String(),
		Running:    e.IsRunning(),
		InputDBFS:  SilenceDBFS,
		OutputDBFS: SilenceDBFS,
		Params:     NewParamsStatus(e.params.Snapshot()),
	}
	if err := e.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if !st.Running {
		return st
	}
	s := e.current.Load()
	if s == nil {
		return st
	}
	st.Stream = s.streams.cfg.String()
	st.Candidate = s.candidate
	st.StartedAt = s.startedAt
	st.UptimeSeconds = time.Since(s.startedAt).Seconds()
	st.FramesProcessed = s.frames.Load()
	st.FramesDropped = s.dropped.Load()
	st.ClippedSamples = s.clipped.Load()
	st.InputDBFS = math.Float64frombits(s.inLevel.Load())
	st.OutputDBFS = math.Float64frombits(s.outLevel.Load())
	st.Mitigation = s.mitStat.Load()
	return st
}

// Package control exposes the engine over HTTP.
//
// Routes registered by [Server.Register]:
//
//	GET  /api/status  current engine status
//	POST /api/start   start processing
//	POST /api/stop    stop processing
//	PUT  /api/params  change amplification, band gains or mitigation
//	GET  /api/ws      websocket: commands in, status events out
//
// Every JSON error response has the shape {"error": "...", "stage": "..."}.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/earpiece/internal/engine"
	"github.com/MrWong99/earpiece/internal/observe"
	"github.com/MrWong99/earpiece/pkg/audio"
)

// DefaultPushInterval is the interval between status events on a websocket.
const DefaultPushInterval = 250 * time.Millisecond

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// Engine is the part of [engine.Engine] the control API drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop()
	Status() engine.Status
	SetAmplification(f float64) float64
	SetBandGain(band audio.Band, dB float64) float64
	SetMitigationEnabled(enabled bool)
}

var _ Engine = (*engine.Engine)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithPushInterval sets the websocket status push interval.
// Default: [DefaultPushInterval].
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pushInterval = d
		}
	}
}

// WithOriginPatterns sets the host patterns accepted as websocket origins in
// addition to the request host.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server serves the control API.
type Server struct {
	eng            Engine
	pushInterval   time.Duration
	originPatterns []string
}

// New creates a control server for eng.
func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		eng:          eng,
		pushInterval: DefaultPushInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("PUT /api/params", s.handleParams)
	mux.HandleFunc("GET /api/ws", s.handleWS)
}

// RegisterMetrics serves the Prometheus metrics gathered by g on path.
func RegisterMetrics(mux *http.ServeMux, path string, g prometheus.Gatherer) {
	mux.Handle("GET "+path, promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}))
}

// ParamsRequest is the body of PUT /api/params and of websocket "params"
// commands. Omitted fields are left unchanged.
type ParamsRequest struct {
	Amplification     *float64 `json:"amplification,omitempty"`
	LowDB             *float64 `json:"low_db,omitempty"`
	MidDB             *float64 `json:"mid_db,omitempty"`
	HighDB            *float64 `json:"high_db,omitempty"`
	MitigationEnabled *bool    `json:"mitigation_enabled,omitempty"`
}

// errNoParams is returned for a parameter request without any field.
var errNoParams = errors.New("no parameters given")

func (p ParamsRequest) empty() bool {
	return p.Amplification == nil && p.LowDB == nil && p.MidDB == nil &&
		p.HighDB == nil && p.MitigationEnabled == nil
}

// apply writes the present fields to eng. Values are clamped by the store.
func (p ParamsRequest) apply(eng Engine) error {
	if p.empty() {
		return errNoParams
	}
	if p.Amplification != nil {
		eng.SetAmplification(*p.Amplification)
	}
	for band, v := range map[audio.Band]*float64{
		audio.BandLow:  p.LowDB,
		audio.BandMid:  p.MidDB,
		audio.BandHigh: p.HighDB,
	} {
		if v != nil {
			eng.SetBandGain(band, *v)
		}
	}
	if p.MitigationEnabled != nil {
		eng.SetMitigationEnabled(*p.MitigationEnabled)
	}
	return nil
}

// errorBody is the JSON error response.
type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// startError maps a Start failure to an HTTP status and body.
func startError(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}
	var se *engine.StartupError
	if errors.As(err, &se) {
		body.Stage = se.Stage
	}
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		return http.StatusConflict, body
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, body
	case errors.Is(err, audio.ErrConfigUnsupported):
		return http.StatusUnprocessableEntity, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The session outlives the request.
	if err := s.eng.Start(context.WithoutCancel(r.Context())); err != nil {
		status, body := startError(err)
		observe.Logger(r.Context()).Warn("control: start rejected", "status", status, "err", err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	observe.Logger(r.Context()).Info("control: stop requested")
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req ParamsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		observe.Logger(r.Context()).Debug("control: bad params body", "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("decode params: %v", err)})
		return
	}
	if err := req.apply(s.eng); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Status().Params)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: encode response", "err", err)
	}
}

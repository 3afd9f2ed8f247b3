// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sdm-poller/internal/poller"
	"github.com/tamzrod/sdm-poller/internal/register"
	"github.com/tamzrod/sdm-poller/internal/status"
)

// Device is the per-meter surface served over HTTP. *poller.Poller satisfies it.
type Device interface {
	DeviceID() string
	Model() string
	Identifier() string
	UniqueID(key string) string
	EnabledSpecs() []register.Spec
	Snapshot() map[string]poller.DecodedValue
	LastUpdateSuccess() bool
	Status() status.Snapshot
	Stats() poller.Stats
	Flags() register.Flags
	SetFlags(f register.Flags)
	SetModel(model string) bool
	Write(ctx context.Context, key string, value float64) error
	WriteWords(ctx context.Context, key string, words []uint16) error
}

// Server routes /api requests to devices by id.
type Server struct {
	devices map[string]Device
	order   []string
	log     zerolog.Logger
	mux     *http.ServeMux
}

func New(devices []Device, log zerolog.Logger) *Server {
	s := &Server{
		devices: make(map[string]Device, len(devices)),
		log:     log,
		mux:     http.NewServeMux(),
	}
	for _, d := range devices {
		s.devices[d.DeviceID()] = d
		s.order = append(s.order, d.DeviceID())
	}

	s.mux.HandleFunc("GET /api/devices", s.handleDevices)
	s.mux.HandleFunc("GET /api/devices/{id}/values", s.handleValues)
	s.mux.HandleFunc("GET /api/devices/{id}/registers", s.handleRegisters)
	s.mux.HandleFunc("POST /api/devices/{id}/registers/{key}", s.handleWrite)
	s.mux.HandleFunc("GET /api/devices/{id}/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/devices/{id}/settings", s.handlePutSettings)
	return s
}

// Handle mounts an extra handler, e.g. /metrics.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type deviceSummary struct {
	ID                  string    `json:"id"`
	Identifier          string    `json:"identifier"`
	Model               string    `json:"model"`
	Status              string    `json:"status"`
	LastUpdateSuccess   bool      `json:"last_update_success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastErrorCode       uint16    `json:"last_error_code"`
	SuccessCount        uint64    `json:"success_count"`
	FailureCount        uint64    `json:"failure_count"`
	LastError           string    `json:"last_error,omitempty"`
	AvgPollMillis       int64     `json:"avg_poll_ms"`
	LastUpdate          time.Time `json:"last_update"`
}

type valueEntry struct {
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type valuesResponse struct {
	ID                string                `json:"id"`
	Values            map[string]valueEntry `json:"values"`
	LastUpdateSuccess bool                  `json:"last_update_success"`
	Stale             bool                  `json:"stale"`
	Status            string                `json:"status"`
}

type registerEntry struct {
	Key      string    `json:"key"`
	UniqueID string    `json:"unique_id"`
	Function string    `json:"function"`
	DataType string    `json:"data_type"`
	Address  uint16    `json:"address"`
	Unit     string    `json:"unit,omitempty"`
	Category string    `json:"category"`
	Writable bool      `json:"writable"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Options  []float64 `json:"options,omitempty"`
}

// writeRequest carries either an engineering value or the raw register words.
type writeRequest struct {
	Value *float64 `json:"value"`
	Words []uint16 `json:"words"`
}

type settings struct {
	Model      string `json:"model"`
	Advanced   bool   `json:"enable_advanced"`
	Diagnostic bool   `json:"enable_diagnostic"`
	TwoWay     bool   `json:"enable_two_way"`
	Config     bool   `json:"enable_config"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	out := make([]deviceSummary, 0, len(s.order))
	for _, id := range s.order {
		d := s.devices[id]
		st := d.Status()
		stats := d.Stats()
		out = append(out, deviceSummary{
			ID:                  id,
			Identifier:          d.Identifier(),
			Model:               d.Model(),
			Status:              st.HealthName(),
			LastUpdateSuccess:   d.LastUpdateSuccess(),
			ConsecutiveFailures: st.ConsecutiveFailures,
			LastErrorCode:       st.LastErrorCode,
			SuccessCount:        stats.SuccessCount,
			FailureCount:        stats.FailureCount,
			LastError:           stats.LastError,
			AvgPollMillis:       stats.AvgDuration.Milliseconds(),
			LastUpdate:          stats.LastUpdate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}

	units := make(map[string]string)
	for _, spec := range d.EnabledSpecs() {
		units[spec.Key] = spec.Unit
	}

	snap := d.Snapshot()
	values := make(map[string]valueEntry, len(snap))
	for k, v := range snap {
		values[k] = valueEntry{Value: v.Value, Unit: units[k], UpdatedAt: v.Updated}
	}

	st := d.Status()
	writeJSON(w, http.StatusOK, valuesResponse{
		ID:                d.DeviceID(),
		Values:            values,
		LastUpdateSuccess: d.LastUpdateSuccess(),
		Stale:             st.Health == status.HealthStale,
		Status:            st.HealthName(),
	})
}

func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}

	specs := d.EnabledSpecs()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Key < specs[j].Key })

	out := make([]registerEntry, 0, len(specs))
	for _, spec := range specs {
		e := registerEntry{
			Key:      spec.Key,
			UniqueID: d.UniqueID(spec.Key),
			Function: spec.Function.String(),
			DataType: spec.DataType.String(),
			Address:  spec.Address,
			Unit:     spec.Unit,
			Category: spec.Category.String(),
			Writable: spec.Writable(),
			Options:  spec.Options,
		}
		if spec.Control == register.ControlNumber {
			lo, hi := spec.Min, spec.Max
			e.Min, e.Max = &lo, &hi
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")

	var req writeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || (req.Value == nil) == (req.Words == nil) {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": <number>} or {\"words\": [<uint16>...]}")
		return
	}

	var err error
	if req.Value != nil {
		err = d.Write(r.Context(), key, *req.Value)
	} else {
		err = d.WriteWords(r.Context(), key, req.Words)
	}
	if err != nil {
		code := statusFor(err)
		s.log.Warn().Err(err).Str("device", d.DeviceID()).Str("key", key).Int("status", code).Msg("register write rejected")
		writeError(w, code, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, settingsOf(d))
}

// handlePutSettings switches the model and category toggles.
// Both take effect on the next poll cycle.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	d, ok := s.device(w, r)
	if !ok {
		return
	}

	req := settingsOf(d)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	if req.Model != d.Model() && !d.SetModel(req.Model) {
		writeError(w, http.StatusBadRequest, "unknown model "+req.Model)
		return
	}
	d.SetFlags(register.Flags{
		Advanced:   req.Advanced,
		Diagnostic: req.Diagnostic,
		TwoWay:     req.TwoWay,
		Config:     req.Config,
	})

	s.log.Info().Str("device", d.DeviceID()).Str("model", d.Model()).Interface("flags", d.Flags()).Msg("device settings changed")
	writeJSON(w, http.StatusOK, settingsOf(d))
}

func settingsOf(d Device) settings {
	f := d.Flags()
	return settings{
		Model:      d.Model(),
		Advanced:   f.Advanced,
		Diagnostic: f.Diagnostic,
		TwoWay:     f.TwoWay,
		Config:     f.Config,
	}
}

func (s *Server) device(w http.ResponseWriter, r *http.Request) (Device, bool) {
	id := r.PathValue("id")
	d, ok := s.devices[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown device "+id)
	}
	return d, ok
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, poller.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, register.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, poller.ErrVerification):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

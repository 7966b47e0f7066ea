package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/healing"
)

// ─── Health & Info ──────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"healthy": true})
		return
	}
	statuses := s.health.Statuses()
	if len(statuses) == 0 {
		statuses = s.health.RunOnce(r.Context())
	}
	status := http.StatusOK
	if !s.health.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": status == http.StatusOK,
		"checks":  statuses,
	})
}

type infoResponse struct {
	Driver           string    `json:"driver"`
	State            string    `json:"state"`
	Family           string    `json:"family"`
	FamilyID         int       `json:"family_id"`
	Supported        bool      `json:"supported"`
	InterfaceVersion *int      `json:"interface_version,omitempty"`
	AcquiredAt       time.Time `json:"acquired_at,omitempty"`
	TableVersion     *uint32   `json:"table_version,omitempty"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	f := s.sess.Family()
	resp := infoResponse{
		Driver:     s.sess.Driver(),
		State:      s.sess.State().String(),
		Family:     domain.FamilyName(f),
		FamilyID:   int(f),
		Supported:  f.Supported(),
		AcquiredAt: s.sess.AcquiredAt(),
	}
	if v, err := s.sess.InterfaceVersion(r.Context()); err == nil {
		resp.InterfaceVersion = &v
	}
	if v, err := s.sess.TableVersion(); err == nil {
		resp.TableVersion = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Parameters ─────────────────────────────────────────────────────────────

type paramView struct {
	Name        string `json:"name"`
	Access      string `json:"access"`
	Group       string `json:"group"`
	PerCore     bool   `json:"per_core"`
	ReadUnit    string `json:"read_unit,omitempty"`
	WriteUnit   string `json:"write_unit,omitempty"`
	Description string `json:"description"`
}

func newParamView(p domain.Parameter) paramView {
	return paramView{
		Name:        p.Name,
		Access:      p.Access.String(),
		Group:       p.Group.String(),
		PerCore:     p.PerCore,
		ReadUnit:    string(p.ReadUnit),
		WriteUnit:   string(p.WriteUnit),
		Description: p.Description,
	}
}

func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	params := domain.Parameters()
	out := make([]paramView, len(params))
	for i, p := range params {
		out[i] = newParamView(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"params": out})
}

type readingResponse struct {
	Name  string    `json:"name"`
	Core  *int      `json:"core,omitempty"`
	Value jsonFloat `json:"value"`
	Unit  string    `json:"unit"`
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.LookupParameter(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown parameter")
		return
	}

	resp := readingResponse{Name: p.Name, Unit: string(p.ReadUnit)}
	var (
		v   float64
		err error
	)
	if raw := r.URL.Query().Get("core"); raw != "" {
		core, perr := strconv.Atoi(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "core must be an integer")
			return
		}
		resp.Core = &core
		v, err = s.sess.GetCore(r.Context(), p, core)
	} else {
		v, err = s.sess.Get(r.Context(), p)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp.Value = jsonFloat(v)
	writeJSON(w, http.StatusOK, resp)
}

type setRequest struct {
	Value *int64 `json:"value"`
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.LookupParameter(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown parameter")
		return
	}

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, `body must be {"value": <integer>}`)
		return
	}
	if err := s.sess.Set(r.Context(), p, *req.Value); err != nil {
		writeDomainError(w, err)
		return
	}
	s.limitsChanged()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":  p.Name,
		"value": *req.Value,
		"unit":  string(p.WriteUnit),
	})
}

// ─── Table ──────────────────────────────────────────────────────────────────

type tableResponse struct {
	Version     uint32      `json:"version"`
	Size        int         `json:"size"`
	Len         int         `json:"len"`
	RefreshedAt time.Time   `json:"refreshed_at"`
	Values      []jsonFloat `json:"values,omitempty"`
}

func newTableResponse(snap domain.TableSnapshot, withValues bool) tableResponse {
	resp := tableResponse{
		Version:     snap.Version,
		Size:        snap.Size,
		Len:         snap.Len(),
		RefreshedAt: snap.RefreshedAt,
	}
	if withValues {
		resp.Values = make([]jsonFloat, len(snap.Values))
		for i, v := range snap.Values {
			resp.Values[i] = jsonFloat(v)
		}
	}
	return resp
}

func (s *Server) handleRefreshTable(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Refresh(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := s.sess.TableSnapshot()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableResponse(snap, false))
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sess.TableSnapshot()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	withValues := r.URL.Query().Get("values") != "false"
	writeJSON(w, http.StatusOK, newTableResponse(snap, withValues))
}

// ─── Telemetry ──────────────────────────────────────────────────────────────

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeError(w, http.StatusNotFound, "telemetry monitor is disabled")
		return
	}
	sample, ok := s.monitor.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no telemetry sample yet")
		return
	}
	writeJSON(w, http.StatusOK, telemetryResponse{Sample: sample, Breaker: s.monitor.Breaker()})
}

type telemetryResponse struct {
	domain.Sample
	Breaker healing.Snapshot `json:"breaker"`
}

// limitsChanged drops the spike baseline: readings under new limits are
// expected to move.
func (s *Server) limitsChanged() {
	if s.monitor != nil {
		s.monitor.ResetBaseline()
	}
}

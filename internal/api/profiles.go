package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apuctl/apuctl/internal/domain"
)

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.profiles.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": list})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type profileRequest struct {
	Settings map[string]uint32 `json:"settings"`
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p := domain.Profile{Name: chi.URLParam(r, "name"), Settings: req.Settings}
	if err := s.profiles.Save(p); err != nil {
		writeDomainError(w, err)
		return
	}
	saved, err := s.profiles.Get(p.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.profiles.Delete(name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}

// applyErrorBody carries the partial-apply record next to the error.
type applyErrorBody struct {
	errorBody
	Record domain.ApplyRecord `json:"record"`
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.profiles.ApplyNamed(r.Context(), chi.URLParam(r, "name"))
	if len(rec.Applied) > 0 {
		s.limitsChanged()
	}
	if err != nil {
		if rec.Profile == "" {
			writeDomainError(w, err)
			return
		}
		s.log.Warn("apply failed", "profile", rec.Profile, "failed_param", rec.FailedParam, "err", err)
		writeJSON(w, statusFor(err), applyErrorBody{errorBody: newErrorBody(err), Record: rec})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	hist, err := s.profiles.History(limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if hist == nil {
		hist = []domain.ApplyRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": hist})
}

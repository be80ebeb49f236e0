// Package api is the thin HTTP façade (C8) spec.md marks out of scope
// beyond "interfaces only": one handler per lifecycle.Controller method,
// no business logic of its own.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/maxdollinger/fireup/internal/db/models"
	"github.com/maxdollinger/fireup/internal/lifecycle"
)

// Server exposes lifecycle.Controller over HTTP under /v1/microvms.
type Server struct {
	controller *lifecycle.Controller
	mux        *http.ServeMux
}

func NewServer(c *lifecycle.Controller) *Server {
	s := &Server{controller: c, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/microvms", s.handleUp)
	s.mux.HandleFunc("GET /v1/microvms", s.handleList)
	s.mux.HandleFunc("GET /v1/microvms/{name}", s.handleStatus)
	s.mux.HandleFunc("DELETE /v1/microvms/{name}", s.handleRm)
	s.mux.HandleFunc("POST /v1/microvms/{name}/start", s.handleStart)
	s.mux.HandleFunc("POST /v1/microvms/{name}/stop", s.handleStop)
	s.mux.HandleFunc("POST /v1/microvms/{name}/restart", s.handleRestart)
}

func (s *Server) handleUp(w http.ResponseWriter, r *http.Request) {
	var opts lifecycle.UpOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vm, err := s.controller.Up(r.Context(), opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, vm)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	vms, err := s.controller.VMs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	vm, err := s.controller.Status(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleRm(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Rm(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	vm, err := s.controller.Start(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	vm, err := s.controller.Restart(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// statusFor maps fireup's error taxonomy (spec.md §7) onto HTTP status
// codes. Ordering matters: VmNotFoundError wraps ErrVMNotFound, so it's
// checked before the sentinel-only cases.
func statusFor(err error) int {
	var notFound *lifecycle.VmNotFoundError
	switch {
	case errors.As(err, &notFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrConfigInvalid):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrProjectDirAlreadyBound):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrHypervisorStartTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}

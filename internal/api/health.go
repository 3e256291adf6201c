package api

import (
	"net/http"

	"github.com/agendazap/agendazap/internal/models"
)

// healthHandler reports process liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "alive"}))
}

// readyHandler reports readiness: the store must answer a read before
// the process accepts traffic.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.st.GetConversationStates("readiness-probe"); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store not ready: "+err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "ready"}))
}

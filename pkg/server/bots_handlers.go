package server

import (
	"fmt"
	"net/http"
	"strings"

	"botsim/pkg/engine"
	"botsim/pkg/fleet"
	"botsim/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type simulateRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Token    string `json:"token"`
	Message  string `json:"message"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type buttonRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// handleSimulate runs a single message through an engine without a bot.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	lang, err := engine.NormalizeLanguage(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.engines.Simulate(lang, req.Code, req.Token, req.Message)
	if err != nil {
		writeSimulationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	lang, err := engine.NormalizeLanguage(chi.URLParam(r, "language"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	code, _ := engine.Template(lang)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(code))
}

func (s *Server) handleBotsList(w http.ResponseWriter, r *http.Request) {
	bots := s.fleet.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := bots[:0]
		for _, b := range bots {
			if string(b.Status) == status {
				filtered = append(filtered, b)
			}
		}
		bots = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

func (s *Server) handleBotsCreate(w http.ResponseWriter, r *http.Request) {
	var spec fleet.Spec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	b, err := s.fleet.Launch(spec)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	logger.InfoCF("server", "Bot launched", map[string]interface{}{
		logger.FieldBotID:    b.ID,
		logger.FieldLanguage: b.Language,
	})
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBotGet(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBotUpdate(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	var spec fleet.Spec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	updated, err := s.fleet.Update(b.ID, spec)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleBotDelete(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	if err := s.fleet.Delete(b.ID); err != nil {
		writeFleetError(w, err)
		return
	}
	s.limiters.Forget(b.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	stopped, err := s.fleet.Stop(b.ID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stopped)
}

func (s *Server) handleBotRestart(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	restarted, err := s.fleet.Restart(b.ID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, restarted)
}

func (s *Server) handleBotTranscript(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	transcript, err := s.fleet.Transcript(b.ID)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bot_id": b.ID, "messages": transcript})
}

func (s *Server) handleBotMessage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !s.limiters.Allow(b.ID) {
		writeError(w, http.StatusTooManyRequests, "message rate exceeded")
		return
	}
	reply, err := s.fleet.SendMessage(b.ID, req.Text)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply})
}

func (s *Server) handleBotButton(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	var req buttonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !s.limiters.Allow(b.ID) {
		writeError(w, http.StatusTooManyRequests, "message rate exceeded")
		return
	}
	reply, err := s.fleet.PressButton(b.ID, req.Row, req.Col)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply})
}

func (s *Server) handleBotLogsTail(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	lines, err := s.fleet.Logs(b.ID, parseTail(r.URL.Query().Get("tail")))
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bot_id": b.ID, "lines": lines})
}

// handleBotDownload serves the bot's code under its download file name.
func (s *Server) handleBotDownload(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	name := engine.DownloadName(b.Name, b.Language)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write([]byte(b.Code))
}

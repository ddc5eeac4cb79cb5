package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
)

// sendMessageRequest is the POST /send-message body.
type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// handleSendMessage delivers one outbound message through the configured
// transport.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{
			"status": "error", "error": "invalid JSON body",
		})
		return
	}
	if req.Number == "" {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{
			"status": "error", "error": models.ErrEmptyNumber.Error(),
		})
		return
	}
	if req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, map[string]string{
			"status": "error", "error": models.ErrEmptyMessage.Error(),
		})
		return
	}

	if err := s.msgService.SendMessage(r.Context(), req.Number, req.Message); err != nil {
		slog.Error("Server handleSendMessage delivery failed", "error", err, "to", phone.Mask(req.Number))
		writeJSONResponse(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "error": err.Error(),
		})
		return
	}

	slog.Info("Server handleSendMessage delivered", "to", phone.Mask(req.Number))
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "sent",
		"number":  req.Number,
		"message": req.Message,
	})
}

// handleHealth reports service status, active conversation count and which
// collaborators are configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":               "ok",
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"active_conversations": s.engine.ActiveConversations(),
		"features": map[string]interface{}{
			"genai":    s.genaiOn,
			"backend":  s.backendOn,
			"provider": s.provider,
		},
	})
}

// messageRequest is the POST /message body.
type messageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// handleMessage drives one conversation turn over HTTP. In relay mode the
// message is forwarded to the external agent instead.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone and message are required"))
		return
	}

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(req.Phone)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if s.relay != nil {
		reply, err := s.relay.ForwardToAgent(r.Context(), canonical, req.Message)
		if err != nil {
			slog.Error("Server handleMessage relay failed", "error", err, "phone", phone.Mask(canonical))
			writeJSONResponse(w, http.StatusBadGateway, models.Error("agent relay failed"))
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"response": reply})
		return
	}

	replies, err := s.engine.HandleMessage(r.Context(), canonical, req.Message)
	if err != nil {
		slog.Error("Server handleMessage engine turn failed", "error", err, "phone", phone.Mask(canonical))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("conversation turn failed"))
		return
	}

	response := ""
	if len(replies) > 0 {
		response = replies[0]
		for _, extra := range replies[1:] {
			response += "\n\n" + extra
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"response": response})
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
)

// callRequest is the body of POST /calls.
type callRequest struct {
	PhoneNumber string         `json:"phone_number"`
	Channel     models.Channel `json:"channel"`
	ContactID   string         `json:"contact_id,omitempty"`
}

// messageRequest is the body of POST /conversations/{id}/messages.
type messageRequest struct {
	Text string `json:"text"`
}

// closeRequest is the body of POST /conversations/{id}/close.
type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) callHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.callHandler: processing call event", "path", r.URL.Path)

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.callHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Channel == "" {
		req.Channel = models.ChannelWhatsApp
	}

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(req.PhoneNumber)
	if err != nil {
		slog.Warn("Server.callHandler: phone validation failed", "error", err, "phone", req.PhoneNumber)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	event := models.CallEvent{
		PhoneNumber: canonical,
		Channel:     req.Channel,
		ContactID:   req.ContactID,
		OccurredAt:  time.Now(),
	}
	conv, err := s.engine.HandleMissedCall(r.Context(), event)
	if err != nil {
		if errors.Is(err, models.ErrInvalidChannel) || errors.Is(err, models.ErrEmptyPhoneNumber) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.callHandler: failed to handle call event", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to handle call event"))
		return
	}
	slog.Info("Server.callHandler: call event accepted", "conversationID", conv.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(conv))
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	res, err := s.engine.ProcessIncomingMessage(r.Context(), id, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConversationNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		case errors.Is(err, models.ErrConversationClosed),
			errors.Is(err, models.ErrConversationCompleted):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, models.ErrEmptyMessageText):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.messageHandler: failed to process message", "error", err, "conversationID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res.Conversation))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.engine.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		slog.Error("Server.getConversationHandler: lookup failed", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := s.engine.ListActive(r.Context())
	if err != nil {
		slog.Error("Server.listConversationsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(convs))
}

func (s *Server) closeConversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Reason == "" {
		req.Reason = "closed via API"
	}

	if err := s.engine.CloseConversation(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		slog.Error("Server.closeConversationHandler: close failed", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to close conversation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation closed", nil))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.GetStats(r.Context())
	if err != nil {
		slog.Error("Server.statsHandler: stats failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

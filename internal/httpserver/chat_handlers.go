package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"activitychat/internal/domain"
	"activitychat/internal/service"
)

type messageCreateRequest struct {
	Content string `json:"content"`
}

// handleListThreads returns the caller's thread records in nested form:
// chat_id, chats { events, messages }.
// @Summary      List chat threads
// @Description  The signed-in user's chat memberships with event and messages
// @Tags         chats
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.ThreadRow
// @Failure      401  {object}  map[string]string
// @Router       /threads [get]
func handleListThreads(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		recs, err := chatSvc.ThreadRecords(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		rows := make([]domain.ThreadRow, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, domain.NewThreadRow(rec))
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// @Summary      Get a chat header
// @Description  Event name, status and member count of a chat
// @Tags         chats
// @Security     BearerAuth
// @Produce      json
// @Param        chatID path string true "Chat ID"
// @Success      200  {object}  service.ChatHeader
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chats/{chatID} [get]
func handleGetChat(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		h, err := chatSvc.Header(r.Context(), chi.URLParam(r, "chatID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

// @Summary      Send a message
// @Description  Post a message to a chat
// @Tags         chats
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chatID path string true "Chat ID"
// @Param        input body messageCreateRequest true "Message"
// @Success      201  {object}  domain.Message
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chats/{chatID}/messages [post]
func handleCreateMessage(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req messageCreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		msg, err := chatSvc.Send(r.Context(), chi.URLParam(r, "chatID"), currentUser.ID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// @Summary      List messages
// @Description  Messages of a chat, oldest first
// @Tags         chats
// @Security     BearerAuth
// @Produce      json
// @Param        chatID path string true "Chat ID"
// @Success      200  {array}   domain.Message
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chats/{chatID}/messages [get]
func handleListMessages(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		msgs, err := chatSvc.List(r.Context(), chi.URLParam(r, "chatID"), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

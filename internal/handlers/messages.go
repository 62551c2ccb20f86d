package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger/internal/apperr"
	"messenger/internal/messaging"
	"messenger/internal/middleware"
	"messenger/internal/models"
	"messenger/internal/observability"
	"messenger/internal/telemetry"
)

// ThreadLister returns a user's latest threads.
type ThreadLister interface {
	Latest(ctx context.Context, viewerID, limit int) ([]models.Thread, error)
}

// MessageService sends messages and loads reply targets.
type MessageService interface {
	Send(ctx context.Context, in messaging.SendInput) (models.Message, error)
	ReplyContext(ctx context.Context, callerID int, replyTo string) (models.ReplyPreview, error)
}

// UserSearcher backs recipient autocomplete.
type UserSearcher interface {
	Search(ctx context.Context, callerID int, query string) ([]models.User, error)
}

// MessageHandler serves the thread pages and the messaging API.
type MessageHandler struct {
	threads  ThreadLister
	messages MessageService
	users    UserSearcher
	audit    *telemetry.AuditEmitter
	logger   zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(threads ThreadLister, messages MessageService, users UserSearcher, audit *telemetry.AuditEmitter, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		threads:  threads,
		messages: messages,
		users:    users,
		audit:    audit,
		logger:   logger,
	}
}

// MessagesPage renders the viewer's threads.
func (h *MessageHandler) MessagesPage(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	threads, err := h.threads.Latest(c.Request.Context(), userID, 0)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", userID).Msg("load threads")
		render(c, http.StatusInternalServerError, "messages.html", pageData{Title: "Threads", Flash: genericError})
		return
	}
	render(c, http.StatusOK, "messages.html", pageData{Title: "Threads", Threads: threads})
}

// NewMessagePage renders the compose form, with the answered message when
// reply_to is given.
func (h *MessageHandler) NewMessagePage(c *gin.Context) {
	data := pageData{Title: "New message", MaxLength: models.MaxContentLength}

	if replyTo := c.Query("reply_to"); replyTo != "" {
		preview, err := h.messages.ReplyContext(c.Request.Context(), c.GetInt(middleware.UserIDKey), replyTo)
		if err != nil {
			appErr := apperr.As(err)
			message := appErr.Message
			if appErr.Code == apperr.CodeInternal {
				message = genericError
			}
			flash(c, message)
			redirect(c, "/messages")
			return
		}
		data.Title = "Reply"
		data.Reply = &preview
	}

	render(c, http.StatusOK, "new_message.html", data)
}

// Latest returns the viewer's threads as JSON.
func (h *MessageHandler) Latest(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	threads, err := h.threads.Latest(c.Request.Context(), userID, 0)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", userID).Msg("load threads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// SearchUsers returns up to five users matching ?username=.
func (h *MessageHandler) SearchUsers(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.GetInt(middleware.UserIDKey), c.Query("username"))
	if err != nil {
		jsonError(c, err)
		return
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Send stores a message posted from the compose form.
func (h *MessageHandler) Send(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	msg, err := h.messages.Send(c.Request.Context(), messaging.SendInput{
		SenderID:  userID,
		Recipient: c.PostForm("recipient"),
		Content:   c.PostForm("content"),
		ReplyTo:   c.PostForm("reply_to"),
	})
	if err != nil {
		jsonError(c, err)
		return
	}

	reply := msg.ParentMessageID != nil
	observability.IncMessageSent(reply)
	attrs := map[string]string{
		"message_id":   strconv.Itoa(msg.ID),
		"recipient_id": strconv.Itoa(msg.RecipientID),
	}
	if reply {
		attrs["parent_id"] = strconv.Itoa(*msg.ParentMessageID)
	}
	emitAudit(c, h.audit, telemetry.Event{Type: telemetry.EventMessageSent, Text: "message sent", Attrs: attrs})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

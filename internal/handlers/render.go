package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger/internal/accounts"
	"messenger/internal/apperr"
	"messenger/internal/middleware"
	"messenger/internal/models"
	"messenger/internal/session"
)

const genericError = "An error occurred"

// pageData is the single view model shared by every template.
type pageData struct {
	Title     string
	LoggedIn  bool
	Flash     string
	Next      string
	Error     string
	Form      accounts.RegisterInput
	Threads   []models.Thread
	Reply     *models.ReplyPreview
	MaxLength int
}

// render consumes the pending flash notice and renders the named template.
func render(c *gin.Context, status int, name string, data pageData) {
	if s := session.FromContext(c); s != nil {
		if flash, ok := s.Pop(session.KeyFlash); ok && data.Flash == "" {
			data.Flash = flash
		}
	}
	data.LoggedIn = c.GetInt(middleware.UserIDKey) != 0
	c.HTML(status, name, data)
}

func flash(c *gin.Context, message string) {
	if s := session.FromContext(c); s != nil {
		s.Set(session.KeyFlash, message)
	}
}

// jsonError writes {"error", "field"} with the status matching err.
func jsonError(c *gin.Context, err error) {
	appErr := apperr.As(err)
	message := appErr.Message
	if appErr.Code == apperr.CodeInternal {
		message = genericError
	}
	body := gin.H{"error": message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.JSON(apperr.HTTPStatus(appErr.Code), body)
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusFound, location)
}

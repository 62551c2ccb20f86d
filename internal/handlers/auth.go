package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"messenger/internal/accounts"
	"messenger/internal/apperr"
	"messenger/internal/liveness"
	"messenger/internal/middleware"
	"messenger/internal/models"
	"messenger/internal/observability"
	"messenger/internal/session"
	"messenger/internal/telemetry"
)

const (
	homePath            = "/messages"
	registrationSuccess = "Registration successful!"
)

// AccountService registers and authenticates users.
type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
}

// AuthHandler serves login, registration and logout.
type AuthHandler struct {
	accounts AccountService
	sessions *session.Manager
	audit    *telemetry.AuditEmitter
	now      func() time.Time
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(accounts AccountService, sessions *session.Manager, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions, audit: audit, now: time.Now}
}

// LoginPage renders the login form, or sends a logged-in user home.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if c.GetInt(middleware.UserIDKey) != 0 {
		redirect(c, homePath)
		return
	}
	render(c, http.StatusOK, "login.html", pageData{Title: "Log in", Next: safeNext(c.Query("next"))})
}

// Login authenticates the posted credentials and starts a fresh session.
func (h *AuthHandler) Login(c *gin.Context) {
	user, err := h.accounts.Authenticate(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		appErr := apperr.As(err)
		observability.IncLogin("failure")
		if appErr.Code == apperr.CodeUnauthenticated {
			emitAudit(c, h.audit, telemetry.Event{
				Type:  telemetry.EventLoginFailed,
				Level: "warn",
				Text:  "login rejected",
				Attrs: map[string]string{"username": strings.TrimSpace(c.PostForm("username"))},
			})
		}
		c.JSON(apperr.HTTPStatus(appErr.Code), gin.H{"success": false, "error": loginMessage(appErr), "field": appErr.Field})
		return
	}

	s := h.sessions.Renew(c, session.FromContext(c))
	s.Set(session.KeyUserID, strconv.Itoa(user.ID))
	liveness.Touch(s, h.now())
	middleware.SetIdentity(c, user)

	observability.IncLogin("success")
	emitAudit(c, h.audit, telemetry.Event{Type: telemetry.EventLogin, Text: "user logged in", UserID: user.ID})
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect_url": homePath})
}

func loginMessage(appErr *apperr.AppError) string {
	if appErr.Code == apperr.CodeInternal {
		return genericError
	}
	return appErr.Message
}

// Logout drops the session and returns to the login page.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)
	if s := session.FromContext(c); s != nil {
		h.sessions.Destroy(c, s)
	}
	middleware.ClearIdentity(c)
	if userID != 0 {
		emitAudit(c, h.audit, telemetry.Event{Type: telemetry.EventLogout, Text: "user logged out", UserID: userID})
	}
	redirect(c, "/login")
}

func (h *AuthHandler) RegistrationPage(c *gin.Context) {
	render(c, http.StatusOK, "registration.html", pageData{Title: "Register"})
}

// Register creates an account from the registration form.
func (h *AuthHandler) Register(c *gin.Context) {
	in := accounts.RegisterInput{
		Username:  c.PostForm("UserName"),
		FirstName: c.PostForm("FirstName"),
		LastName:  c.PostForm("LastName"),
		Password:  c.PostForm("Password"),
	}

	user, err := h.accounts.Register(c.Request.Context(), in)
	if err != nil {
		appErr := apperr.As(err)
		message := appErr.Message
		if appErr.Code == apperr.CodeInternal {
			message = genericError
		}
		in.Password = ""
		render(c, apperr.HTTPStatus(appErr.Code), "registration.html", pageData{Title: "Register", Error: message, Form: in})
		return
	}

	emitAudit(c, h.audit, telemetry.Event{
		Type:   telemetry.EventRegistered,
		Text:   "account registered",
		UserID: user.ID,
		Attrs:  map[string]string{"username": user.Username},
	})
	flash(c, registrationSuccess)
	redirect(c, "/login")
}

// safeNext keeps only local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// WithClock replaces the time source used to stamp activity at login.
func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

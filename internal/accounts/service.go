package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"messenger/internal/apperr"
	"messenger/internal/models"
	"messenger/internal/repositories"
)

const (
	MaxUsernameLength = 150
	MaxNameLength     = 30
	MinPasswordLength = 8
	MinSearchLength   = 2
	SearchLimit       = 5
)

const invalidCredentials = "Invalid username or password"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// MessageCleaner removes a user's messages ahead of the account itself.
type MessageCleaner interface {
	ClearParentLinks(ctx context.Context, userID int) (int64, error)
	DeleteForParticipant(ctx context.Context, userID int) (int64, error)
}

type RegisterInput struct {
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// DeleteResult reports what a Delete removed.
type DeleteResult struct {
	UserID          int
	Username        string
	LinksCleared    int64
	MessagesDeleted int64
}

type Service struct {
	users    repositories.UserRepository
	messages MessageCleaner
	cost     int
	logger   zerolog.Logger
}

func NewService(users repositories.UserRepository, messages MessageCleaner, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		messages: messages,
		cost:     bcrypt.DefaultCost,
		logger:   logger.With().Str("component", "accounts").Logger(),
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validateRegistration(in); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		s.logger.Error().Err(err).Msg("hash password")
		return models.User{}, apperr.Internal("", err)
	}

	user, err := s.users.Create(ctx, in.Username, in.FirstName, in.LastName, string(hash))
	if errors.Is(err, repositories.ErrUsernameTaken) {
		return models.User{}, apperr.AlreadyExists("username", "Unfortunately, someone already took this username.")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("username", in.Username).Msg("create user")
		return models.User{}, apperr.Internal("", err)
	}
	return user, nil
}

func validateRegistration(in RegisterInput) error {
	if in.Username == "" || in.FirstName == "" || in.LastName == "" || in.Password == "" {
		return apperr.Invalid("", "All fields are required.")
	}
	if utf8.RuneCountInString(in.Username) > MaxUsernameLength {
		return apperr.Invalid("username", fmt.Sprintf("Username must be at most %d characters", MaxUsernameLength))
	}
	if !usernamePattern.MatchString(in.Username) {
		return apperr.Invalid("username", "Username must start with a letter and contain only letters, digits and underscores")
	}
	if utf8.RuneCountInString(in.FirstName) > MaxNameLength {
		return apperr.Invalid("first_name", fmt.Sprintf("First name must be at most %d characters", MaxNameLength))
	}
	if utf8.RuneCountInString(in.LastName) > MaxNameLength {
		return apperr.Invalid("last_name", fmt.Sprintf("Last name must be at most %d characters", MaxNameLength))
	}
	if strings.IndexFunc(in.Password, unicode.IsSpace) >= 0 {
		return apperr.Invalid("password", "Password must not contain whitespace")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return apperr.Invalid("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, apperr.Invalid("username", "Username is required")
	}
	if password == "" {
		return models.User{}, apperr.Invalid("password", "Password is required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperr.Unauthenticated("username", invalidCredentials)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("lookup user")
		return models.User{}, apperr.Internal("", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, apperr.Unauthenticated("username", invalidCredentials)
	}
	return user, nil
}

// Search finds other users whose username or name contains query.
func (s *Service) Search(ctx context.Context, callerID int, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []models.User{}, nil
	}

	users, err := s.users.Search(ctx, query, callerID, SearchLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("search users")
		return nil, apperr.Internal("", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Delete removes a user and every message they sent or received. Replies
// pointing at those messages from other threads are detached first.
func (s *Service) Delete(ctx context.Context, username string) (DeleteResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrUserNotFound) {
		return DeleteResult{}, apperr.NotFound("username", "User not found")
	}
	if err != nil {
		return DeleteResult{}, apperr.Internal("", err)
	}

	res := DeleteResult{UserID: user.ID, Username: user.Username}

	if res.LinksCleared, err = s.messages.ClearParentLinks(ctx, user.ID); err != nil {
		return res, apperr.Internal("", fmt.Errorf("clear parent links: %w", err))
	}
	if res.MessagesDeleted, err = s.messages.DeleteForParticipant(ctx, user.ID); err != nil {
		return res, apperr.Internal("", fmt.Errorf("delete messages: %w", err))
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return res, apperr.Internal("", fmt.Errorf("delete user: %w", err))
	}

	s.logger.Info().
		Int("user_id", res.UserID).
		Int64("links_cleared", res.LinksCleared).
		Int64("messages_deleted", res.MessagesDeleted).
		Msg("user deleted")
	return res, nil
}

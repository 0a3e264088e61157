package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rangganata/ai-manager/internal/activity"
	"github.com/rangganata/ai-manager/internal/repository"
)

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// LoginRequest is the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public shape of a user record
type UserResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
}

// LoginResponse is returned on successful authentication. LoginHistoryID
// lets the client correlate a later logout with this login.
type LoginResponse struct {
	AccessToken    string       `json:"access_token"`
	ExpiresIn      int64        `json:"expires_in"`
	LoginHistoryID *uuid.UUID   `json:"login_history_id,omitempty"`
	User           UserResponse `json:"user"`
}

// ValidationError describes a single failed validation rule
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AuthService implements login and logout on top of the user repository,
// recording every attempt in the activity log.
type AuthService struct {
	userRepo     repository.UserRepository
	tokenService *TokenService
	activityLog  *activity.Service
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService instance
func NewAuthService(userRepo repository.UserRepository, tokenService *TokenService, activityLog *activity.Service, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo:     userRepo,
		tokenService: tokenService,
		activityLog:  activityLog,
		validate:     validator.New(),
		logger:       logger,
	}
}

// Login authenticates a user by email and password. Every attempt against a
// known account lands in the login history; activity recording never blocks
// or fails the login itself.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta activity.RequestMeta) (*LoginResponse, []ValidationError, error) {
	if validationErrors := s.validateRequest(req); len(validationErrors) > 0 {
		return nil, validationErrors, nil
	}

	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// No account to attribute the attempt to.
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !user.IsActive {
		s.activityLog.RecordLogin(ctx, user.ID, false, "account_disabled", meta)
		return nil, nil, ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.activityLog.RecordLogin(ctx, user.ID, false, "invalid_password", meta)
		s.activityLog.Record(ctx, user.ID, activity.TypeFailedAccess, repository.Details{
			"reason": "invalid_password",
		}, meta)
		return nil, nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokenService.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	historyID := s.activityLog.RecordLogin(ctx, user.ID, true, "", meta)

	return &LoginResponse{
		AccessToken:    accessToken,
		ExpiresIn:      int64(s.tokenService.Expiry().Seconds()),
		LoginHistoryID: historyID,
		User: UserResponse{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
		},
	}, nil, nil
}

// Logout records the logout. When the client sends back the login-history ID
// it received at login, the matching row gets its logout time; otherwise the
// logout is recorded as an activity entry only.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, loginHistoryID *uuid.UUID, meta activity.RequestMeta) {
	s.activityLog.RecordLogout(ctx, userID, loginHistoryID, meta)
}

// GetUser returns the public profile for userID
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
	}, nil
}

// validateRequest maps validator failures to field errors
func (s *AuthService) validateRequest(req LoginRequest) []ValidationError {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return []ValidationError{{Field: "request", Message: "invalid request"}}
	}

	out := make([]ValidationError, 0, len(invalid))
	for _, fe := range invalid {
		switch fe.Tag() {
		case "required":
			out = append(out, ValidationError{Field: fe.Field(), Message: "is required"})
		case "email":
			out = append(out, ValidationError{Field: fe.Field(), Message: "must be a valid email address"})
		default:
			out = append(out, ValidationError{Field: fe.Field(), Message: "is invalid"})
		}
	}
	return out
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/auth/oauth"
	"github.com/gatherly/server/internal/sanitize"
)

// Service handles accounts and the connection graph.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With().Str("component", "users").Logger(),
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=30"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// ValidationError carries a field-level input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = sanitize.Text(strings.TrimSpace(input.Name))

	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	existing, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, CreateParams{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: hash,
		Provider:     ProviderLocal,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == "" {
		// OAuth-only account; no local password to check.
		return nil, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// UpsertGoogleUser finds or creates the account backing a Google profile.
// An existing local account with the same email is linked rather than
// duplicated.
func (s *Service) UpsertGoogleUser(ctx context.Context, profile *oauth.GoogleUser) (*User, error) {
	user, err := s.repo.GetByGoogleID(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup google user: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if existing, err := s.repo.GetByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	user, err = s.repo.Create(ctx, CreateParams{
		Email:    email,
		Name:     sanitize.Text(profile.Name),
		Provider: ProviderGoogle,
		GoogleID: profile.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("google user created")
	return user, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return ValidationError{
			Field:   strings.ToLower(first.Field()),
			Message: validationMessage(first),
		}
	}
	return ValidationError{Message: err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

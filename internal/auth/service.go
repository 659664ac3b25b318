package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

const DefaultServiceRadiusKm = 10

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserStore is the slice of storage registration and login need.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Service struct {
	Users  UserStore
	Tokens *Tokens
	Logger *slog.Logger
	Now    func() time.Time
}

func NewService(users UserStore, tokens *Tokens, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Users: users, Tokens: tokens, Logger: logger, Now: time.Now}
}

type RegisterRequest struct {
	Name            string
	Email           string
	Password        string
	Phone           string
	Role            string
	HourlyRate      float64
	MonthlyRate     float64
	YearlyRate      float64
	ServiceRadiusKm float64
	Specialties     []string
}

// Register creates a customer or a mechanic. Mechanics start unavailable and without a position;
// they appear in nearby queries after their first location and availability update.
// Dispatcher identities are minted by operators with cmd/issue-token and never self-registered.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	role, ok := models.ParseRole(req.Role)
	if !ok {
		return nil, apperr.Validation("unknown role %q", req.Role)
	}
	if role == models.RoleDispatcher {
		return nil, apperr.Validation("role %s cannot be self-registered", role)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	now := s.Now()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role == models.RoleMechanic {
		radius := req.ServiceRadiusKm
		if radius <= 0 {
			radius = DefaultServiceRadiusKm
		}
		if req.HourlyRate < 0 || req.MonthlyRate < 0 || req.YearlyRate < 0 {
			return nil, apperr.Validation("rates must not be negative")
		}
		u.Mechanic = &models.MechanicProfile{
			ServiceRadiusKm: radius,
			Specialties:     req.Specialties,
			HourlyRate:      req.HourlyRate,
			MonthlyRate:     req.MonthlyRate,
			YearlyRate:      req.YearlyRate,
		}
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.Logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login exchanges credentials for a bearer token. Unknown email and wrong password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.Users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return "", nil, apperr.Unauthenticated("invalid email or password")
		}
		return "", nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return "", nil, apperr.Unauthenticated("invalid email or password")
	}
	token, err := s.Tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return "", nil, apperr.Internal(err, "issue token")
	}
	return token, u, nil
}

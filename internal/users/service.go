package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

var (
	// ErrInvalidRegistration indicates missing or malformed signup fields.
	ErrInvalidRegistration = errors.New("users: invalid registration")
	// ErrEmailTaken indicates the email already belongs to an account.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidLogin indicates unknown email, inactive account, or wrong password.
	ErrInvalidLogin = errors.New("users: invalid email or password")
	// ErrAccountNotFound indicates no active account exists for the identifier.
	ErrAccountNotFound = errors.New("users: account not found")

	noOpLogger = zap.NewNop()
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages account registration and credential checks.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Register creates a new account with a bcrypt-hashed password and returns it.
func (s *Service) Register(ctx context.Context, input RegistrationInput) (Account, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	phone := strings.TrimSpace(input.Phone)
	switch {
	case name == "":
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidRegistration)
	case email == "":
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidRegistration)
	case len(input.Password) < minPasswordLength:
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
	case input.Age < 1:
		return Account{}, fmt.Errorf("%w: age must be positive", ErrInvalidRegistration)
	case phone == "":
		return Account{}, fmt.Errorf("%w: phone is required", ErrInvalidRegistration)
	}

	var existing Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return Account{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return Account{}, err
	}

	account := Account{
		ID:           identifier.String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Age:          input.Age,
		Phone:        phone,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Account{}, ErrEmailTaken
		}
		s.logger.Error("account create failed", zap.Error(err))
		return Account{}, err
	}
	return account, nil
}

// Authenticate checks the email/password pair against the stored hash. Unknown
// emails, inactive accounts, and wrong passwords all fail identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", normalizeEmail(email), true).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidLogin
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return Account{}, ErrInvalidLogin
	}
	return account, nil
}

// FindByID returns the active account for the identifier.
func (s *Service) FindByID(ctx context.Context, id string) (Account, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Account{}, ErrAccountNotFound
	}

	var account Account
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", trimmed, true).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}
	return account, nil
}

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingUserID indicates settings were requested without an identity.
	ErrMissingUserID = errors.New("settings: user identifier required")
	// ErrInvalidSettings indicates a payload that does not decode into column config.
	ErrInvalidSettings = errors.New("settings: invalid settings payload")

	noOpLogger = zap.NewNop()
)

// ServiceConfig describes the dependencies of the settings service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the singleton-per-user column configuration. The first read
// seeds the default layout so clients never observe an absent row.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the settings service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("settings: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// View is the decoded setting row returned to adapters.
type View struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Settings  Data      `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Get returns the user's settings, persisting the default layout when the
// user has none yet.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return View{}, ErrMissingUserID
	}

	var setting Setting
	err := s.db.WithContext(ctx).Where("user_id = ?", trimmed).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		view, _, seedErr := s.Upsert(ctx, trimmed, DefaultData())
		return view, seedErr
	}
	if err != nil {
		s.logger.Error("settings lookup failed", zap.Error(err), zap.String("user_id", trimmed))
		return View{}, err
	}
	return decodeSetting(setting)
}

// Upsert stores the payload for the user, creating the row when absent.
// The created flag reports which branch ran.
func (s *Service) Upsert(ctx context.Context, userID string, data Data) (View, bool, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return View{}, false, ErrMissingUserID
	}
	if len(data.LikeColumns) == 0 || len(data.DislikeColumns) == 0 {
		return View{}, false, fmt.Errorf("%w: both column groups are required", ErrInvalidSettings)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return View{}, false, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	var setting Setting
	err = s.db.WithContext(ctx).Where("user_id = ?", trimmed).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identifier, idErr := uuid.NewV7()
		if idErr != nil {
			return View{}, false, idErr
		}
		setting = Setting{
			ID:           identifier.String(),
			UserID:       trimmed,
			SettingsJSON: string(encoded),
			CreatedAt:    s.now().UTC(),
			UpdatedAt:    s.now().UTC(),
		}
		createErr := s.db.WithContext(ctx).Create(&setting).Error
		if createErr == nil {
			view, decodeErr := decodeSetting(setting)
			return view, true, decodeErr
		}
		if !isDuplicateKeyError(createErr) {
			s.logger.Error("settings create failed", zap.Error(createErr), zap.String("user_id", trimmed))
			return View{}, false, createErr
		}
		// A concurrent writer created the row first; update the winner's row.
		if reloadErr := s.db.WithContext(ctx).Where("user_id = ?", trimmed).Take(&setting).Error; reloadErr != nil {
			s.logger.Error("settings conflict reread failed", zap.Error(reloadErr), zap.String("user_id", trimmed))
			return View{}, false, reloadErr
		}
	} else if err != nil {
		s.logger.Error("settings lookup failed", zap.Error(err), zap.String("user_id", trimmed))
		return View{}, false, err
	}

	setting.SettingsJSON = string(encoded)
	setting.UpdatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		s.logger.Error("settings update failed", zap.Error(err), zap.String("user_id", trimmed))
		return View{}, false, err
	}
	view, decodeErr := decodeSetting(setting)
	return view, false, decodeErr
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// The sqlite driver does not translate every constraint failure.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func decodeSetting(setting Setting) (View, error) {
	var data Data
	if err := json.Unmarshal([]byte(setting.SettingsJSON), &data); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return View{
		ID:        setting.ID,
		UserID:    setting.UserID,
		Settings:  data,
		CreatedAt: setting.CreatedAt,
		UpdatedAt: setting.UpdatedAt,
	}, nil
}

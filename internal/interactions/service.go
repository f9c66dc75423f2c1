package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps failures with a dotted operation code for logging and
// assertions.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "interactions.service.new"
	opUpsertState       = "interactions.upsert_state"
	opListCurrentStates = "interactions.list_current_states"
	opPurgeAll          = "interactions.purge_all"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the interaction state engine.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the property-state engine shared by every transport. All history
// mutation funnels through UpsertState; per-key locks plus the store's unique
// index keep concurrent writers to one key linearizable.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
	locks  *keyLocks
}

// NewService constructs the engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
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
		clock:  clock,
		logger: logger,
		locks:  newKeyLocks(),
	}, nil
}

// Outcome reports the mutation an upsert resolved to alongside the resulting
// record with full history.
type Outcome struct {
	Action Action
	Record *Record
}

// UpsertState applies the create/append/no-op decision for the pair. The
// lookup and any write run inside one transaction under the pair's key lock;
// a creator losing the store-level uniqueness race re-reads and converts to
// the append path, so exactly one caller observes ActionCreated.
func (s *Service) UpsertState(ctx context.Context, userID UserID, propertyID PropertyID, desired DesiredState) (Outcome, error) {
	if userID.String() == "" {
		s.logError(opUpsertState, "missing_user_id", errMissingUserID)
		return Outcome{}, fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if propertyID.String() == "" {
		return Outcome{}, fmt.Errorf("%w: empty", ErrInvalidPropertyID)
	}
	if err := desired.validate(); err != nil {
		return Outcome{}, err
	}

	unlock := s.locks.lock(StorageKey(userID, propertyID))
	defer unlock()

	var outcome Outcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := storeTx{tx: tx}

		existing, err := store.findByKey(userID, propertyID)
		if err != nil {
			s.logError(opUpsertState, "record_select_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("property_id", propertyID.String()))
			return newServiceError(opUpsertState, "record_select_failed", err)
		}

		appliedAt := s.clock().UTC()
		decision := decideUpsert(existing, desired, appliedAt)

		if decision.action == ActionCreated {
			record, err := store.createWithFirstEntry(userID, propertyID, *decision.entry)
			if err == nil {
				outcome = Outcome{Action: ActionCreated, Record: record}
				return nil
			}
			if !errors.Is(err, errDuplicateKey) {
				s.logError(opUpsertState, "record_create_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("property_id", propertyID.String()))
				return newServiceError(opUpsertState, "record_create_failed", err)
			}

			// A concurrent creator won; fall through to the append path
			// against the winner's row.
			existing, err = store.findByKey(userID, propertyID)
			if err != nil || existing == nil {
				s.logError(opUpsertState, "conflict_reread_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("property_id", propertyID.String()))
				return newServiceError(opUpsertState, "conflict_reread_failed", err)
			}
			decision = decideUpsert(existing, desired, appliedAt)
		}

		switch decision.action {
		case ActionNoOp:
			outcome = Outcome{Action: ActionNoOp, Record: existing}
		case ActionAppended:
			if err := store.appendEntry(existing, *decision.entry); err != nil {
				s.logError(opUpsertState, "entry_append_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("property_id", propertyID.String()))
				return newServiceError(opUpsertState, "entry_append_failed", err)
			}
			outcome = Outcome{Action: ActionAppended, Record: existing}
		}
		return nil
	})
	if txErr != nil {
		return Outcome{}, txErr
	}
	return outcome, nil
}

// ListCurrentStates projects every record for the user onto its current
// state. Order across properties is storage order.
func (s *Service) ListCurrentStates(ctx context.Context, userID UserID) ([]CurrentState, error) {
	if userID.String() == "" {
		s.logError(opListCurrentStates, "missing_user_id", errMissingUserID)
		return nil, fmt.Errorf("%w: empty", ErrInvalidUserID)
	}

	records, err := storeTx{tx: s.db.WithContext(ctx)}.listForUser(userID)
	if err != nil {
		s.logError(opListCurrentStates, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListCurrentStates, "query_failed", err)
	}

	states := make([]CurrentState, 0, len(records))
	for index := range records {
		if state := ResolveCurrentState(&records[index]); state != nil {
			states = append(states, *state)
		}
	}
	return states, nil
}

// PurgeAll irreversibly deletes every record and its history for the user and
// returns the number of records removed.
func (s *Service) PurgeAll(ctx context.Context, userID UserID) (int64, error) {
	if userID.String() == "" {
		s.logError(opPurgeAll, "missing_user_id", errMissingUserID)
		return 0, fmt.Errorf("%w: empty", ErrInvalidUserID)
	}

	var deleted int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := storeTx{tx: tx}.deleteAllForUser(userID)
		if err != nil {
			s.logError(opPurgeAll, "delete_failed", err, zap.String("user_id", userID.String()))
			return newServiceError(opPurgeAll, "delete_failed", err)
		}
		deleted = count
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return deleted, nil
}

// IsValidationError reports whether err stems from rejected input rather than
// the store, letting adapters map it to a 400-equivalent.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidPropertyID) ||
		errors.Is(err, ErrInvalidColumnIndex) ||
		errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrInvalidStatus)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("interactions service error", attrs...)
}

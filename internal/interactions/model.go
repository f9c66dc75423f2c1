package interactions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxColumnIndex      = 4
)

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("interactions: invalid user id")
	// ErrInvalidPropertyID indicates that a property identifier is empty or exceeds storage bounds.
	ErrInvalidPropertyID = errors.New("interactions: invalid property id")
	// ErrInvalidColumnIndex indicates a column index outside the fixed 5-slot layout.
	ErrInvalidColumnIndex = errors.New("interactions: invalid column index")
	// ErrInvalidPosition indicates a negative in-column position.
	ErrInvalidPosition = errors.New("interactions: invalid position")
	// ErrInvalidStatus indicates a status outside the liked/disliked/deleted enum.
	ErrInvalidStatus = errors.New("interactions: invalid status")
)

// Status enumerates the buckets a property can be sorted into. A "deleted"
// status is a history value, not record removal.
type Status string

const (
	StatusLiked    Status = "liked"
	StatusDisliked Status = "disliked"
	StatusDeleted  Status = "deleted"
)

// ParseStatus validates raw input and returns a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.TrimSpace(rawInput)) {
	case StatusLiked:
		return StatusLiked, nil
	case StatusDisliked:
		return StatusDisliked, nil
	case StatusDeleted:
		return StatusDeleted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// PropertyID represents a validated property listing identifier.
type PropertyID string

// NewPropertyID validates raw input and returns a PropertyID.
func NewPropertyID(rawInput string) (PropertyID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPropertyID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPropertyID, maxIdentifierLength)
	}
	return PropertyID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PropertyID) String() string {
	return string(id)
}

// StorageKey derives the deterministic record key for a (user, property) pair.
// The key doubles as the history foreign key, so existence checks and
// create-if-absent resolve through a single unique index.
func StorageKey(userID UserID, propertyID PropertyID) string {
	return userID.String() + "#" + propertyID.String()
}

// DesiredState carries the client-supplied target state for an upsert. An
// absent comment and an empty comment are the same value; NewDesiredState
// normalizes both to "".
type DesiredState struct {
	ColumnIndex int
	Position    int
	Status      Status
	Comment     string
}

// NewDesiredState validates field constraints and returns a DesiredState.
func NewDesiredState(columnIndex, position int, status Status, comment *string) (DesiredState, error) {
	if columnIndex < 0 || columnIndex > maxColumnIndex {
		return DesiredState{}, fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidColumnIndex, columnIndex, maxColumnIndex)
	}
	if position < 0 {
		return DesiredState{}, fmt.Errorf("%w: %d is negative", ErrInvalidPosition, position)
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return DesiredState{}, err
	}
	normalized := ""
	if comment != nil {
		normalized = *comment
	}
	return DesiredState{
		ColumnIndex: columnIndex,
		Position:    position,
		Status:      status,
		Comment:     normalized,
	}, nil
}

func (d DesiredState) validate() error {
	if d.ColumnIndex < 0 || d.ColumnIndex > maxColumnIndex {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidColumnIndex, d.ColumnIndex, maxColumnIndex)
	}
	if d.Position < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidPosition, d.Position)
	}
	_, err := ParseStatus(string(d.Status))
	return err
}

// Record models the persisted (user, property) interaction entity. History is
// loaded alongside the row, ordered by sequence number.
type Record struct {
	RecordID   string    `gorm:"column:record_id;size:381;not null;uniqueIndex:idx_interactions_record_id"`
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	PropertyID string    `gorm:"column:property_id;primaryKey;size:190;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`

	History []HistoryEntry `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "property_interactions"
}

// HistoryEntry is one immutable state snapshot in a record's append-only
// history. Sequence numbers are assigned at append time; insertion order is
// chronological order.
type HistoryEntry struct {
	RecordID    string    `gorm:"column:record_id;primaryKey;size:381;not null"`
	Seq         int64     `gorm:"column:seq;primaryKey;autoIncrement:false;not null"`
	ColumnIndex int       `gorm:"column:column_index;not null"`
	Position    int       `gorm:"column:position;not null"`
	Status      Status    `gorm:"column:status;size:16;not null"`
	Comment     string    `gorm:"column:comment;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (HistoryEntry) TableName() string {
	return "property_interaction_history"
}

// CurrentState is the read-time projection of a record's last history entry
// merged with record identity. Never persisted.
type CurrentState struct {
	RecordID    string    `json:"_id"`
	UserID      string    `json:"userId"`
	PropertyID  string    `json:"propertyId"`
	ColumnIndex int       `json:"columnIndex"`
	Position    int       `json:"position"`
	Status      Status    `json:"status"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Action names the mutation an upsert resolved to.
type Action string

const (
	ActionCreated  Action = "created"
	ActionAppended Action = "appended"
	ActionNoOp     Action = "noop"
)

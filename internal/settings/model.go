package settings

import "time"

// ColumnConfig names and colors one column bucket.
type ColumnConfig struct {
	Color string `json:"color"`
	Name  string `json:"name"`
}

// Data is the per-user column layout for the liked and disliked groups.
type Data struct {
	LikeColumns    []ColumnConfig `json:"likeColumns"`
	DislikeColumns []ColumnConfig `json:"dislikeColumns"`
}

// DefaultData returns the seed layout applied on a user's first read.
func DefaultData() Data {
	return Data{
		LikeColumns: []ColumnConfig{
			{Color: "#3B82F6", Name: "liked"},
			{Color: "#10B981", Name: "contacted"},
			{Color: "#F59E0B", Name: "visited"},
			{Color: "#EF4444", Name: "want"},
		},
		DislikeColumns: []ColumnConfig{
			{Color: "#3B82F6", Name: "disliked"},
			{Color: "#10B981", Name: "contacted"},
			{Color: "#F59E0B", Name: "visited"},
			{Color: "#EF4444", Name: "want"},
		},
	}
}

// Setting persists one user's column layout. One row per user.
type Setting struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID       string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_settings_user_id"`
	SettingsJSON string    `gorm:"column:settings_json;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "settings"
}

package users

import (
	"strings"
	"time"
)

// Account captures a registered user. Password hashes never leave the
// package; API serialization goes through Public.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	Age          int       `gorm:"column:age;not null"`
	Phone        string    `gorm:"column:phone;size:64;not null"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "users"
}

// PublicAccount is the password-free view returned by the API.
type PublicAccount struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips credential material from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Age:       a.Age,
		Phone:     a.Phone,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// RegistrationInput carries the signup payload.
type RegistrationInput struct {
	Name     string
	Email    string
	Password string
	Age      int
	Phone    string
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

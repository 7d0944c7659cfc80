package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Username     *string   `gorm:"uniqueIndex"               json:"username,omitempty"`
	Email        string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash string    `gorm:"not null;default:''"       json:"-"`
	Role         string    `gorm:"not null;default:'user'"   json:"role"`
	Enabled      bool      `gorm:"not null"                 json:"enabled"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subject is the value carried in the sub claim of the user's tokens.
// OAuth-created accounts have no username and are keyed by email.
func (u *User) Subject() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.Email
}

// RefreshRecord is the server side half of a session. It remembers the
// last access token minted for the user so a replayed one can be refused.
type RefreshRecord struct {
	ID          uint      `gorm:"primaryKey"               json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null"     json:"user_id"`
	AccessToken string    `gorm:"type:text;not null"       json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category may sit under a parent category of the same owner.
type Category struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name      string    `gorm:"not null"                  json:"name"`
	ParentID  *uint     `gorm:"index"                     json:"parent_id,omitempty"`
	UserID    uint      `gorm:"index;not null"            json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string    `gorm:"not null"                  json:"name"`
	Description string    `gorm:"not null;default:''"       json:"description"`
	Price       float64   `gorm:"not null"                  json:"price"`
	Count       uint      `json:"count"`
	CategoryID  *uint     `gorm:"index"                     json:"category_id,omitempty"`
	UserID      uint      `gorm:"index;not null"            json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)

// DefaultTax is the tax percentage applied when a trade does not name one.
const DefaultTax = 9

// Trade is one buy or sell of a product. Creating a buy adds Count to the
// product's stock, a sell removes it; deleting a trade reverts that.
type Trade struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Kind      string    `gorm:"size:8;index;not null"     json:"kind"`
	ProductID uint      `gorm:"index;not null"            json:"product_id"`
	UserID    uint      `gorm:"index;not null"            json:"-"`
	Count     uint      `gorm:"not null"                  json:"count"`
	Price     float64   `gorm:"not null"                  json:"price"`
	Tax       int       `gorm:"not null"                  json:"tax"`
	CreatedAt time.Time `gorm:"index"                     json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockDelta is the change this trade applies to the product count.
func (t *Trade) StockDelta() int64 {
	if t.Kind == TradeSell {
		return -int64(t.Count)
	}
	return int64(t.Count)
}

// Amount is the trade value after tax: tax is added to what a buy costs and
// taken from what a sell earns.
func (t *Trade) Amount() float64 {
	gross := float64(t.Count) * t.Price
	tax := gross * float64(t.Tax) / 100
	if t.Kind == TradeSell {
		return gross - tax
	}
	return gross + tax
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{&User{}, &RefreshRecord{}, &Category{}, &Product{}, &Trade{}}
}

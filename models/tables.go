package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func init() {
	// prices and earnings travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"

	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"

	GatewayStripe   = "stripe"
	GatewayRazorpay = "razorpay"
)

var TravelTypes = []string{"solo", "family", "budget", "luxury"}

type User struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"not null" json:"name"`
	Email             string          `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string          `gorm:"not null" json:"-"`
	Role              string          `gorm:"not null;default:viewer;index" json:"role"`
	EmailVerified     bool            `gorm:"default:false" json:"emailVerified"`
	VerificationToken string          `gorm:"index" json:"-"`
	Bio               string          `gorm:"type:text" json:"bio"`
	Avatar            string          `json:"avatar"`
	Earnings          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"earnings"`
	ContactEnabled    bool            `gorm:"default:false" json:"contactEnabled"`
	QuestionPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:20" json:"questionPrice"`
	ConversationPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:100" json:"conversationPrice"`
	CreatedAt         time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// PublicUser is what other users get to see of an account.
type PublicUser struct {
	ID                uint            `json:"id"`
	Name              string          `json:"name"`
	Bio               string          `json:"bio"`
	Avatar            string          `json:"avatar"`
	ContactEnabled    bool            `json:"contactEnabled"`
	QuestionPrice     decimal.Decimal `json:"questionPrice"`
	ConversationPrice decimal.Decimal `json:"conversationPrice"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:                u.ID,
		Name:              u.Name,
		Bio:               u.Bio,
		Avatar:            u.Avatar,
		ContactEnabled:    u.ContactEnabled,
		QuestionPrice:     u.QuestionPrice,
		ConversationPrice: u.ConversationPrice,
		CreatedAt:         u.CreatedAt,
	}
}

type Blog struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	Title         string                      `gorm:"not null" json:"title"`
	Slug          string                      `gorm:"uniqueIndex;not null" json:"slug"`
	Content       string                      `gorm:"type:text;not null" json:"content"`
	Location      string                      `gorm:"index" json:"location"`
	TravelType    string                      `gorm:"index" json:"travelType,omitempty"`
	Images        datatypes.JSONSlice[string] `json:"images"`
	Privacy       string                      `gorm:"not null;default:public;index" json:"privacy"`
	AuthorID      uint                        `gorm:"not null;index" json:"authorId"`
	Author        *User                       `gorm:"foreignKey:AuthorID" json:"-"`
	Approved      bool                        `gorm:"default:false;index" json:"approved"`
	Status        string                      `gorm:"index" json:"status"`
	RejectionNote string                      `gorm:"type:text" json:"rejectionNote,omitempty"`
	RejectedAt    *time.Time                  `json:"rejectedAt,omitempty"`
	RejectedByID  *uint                       `json:"rejectedBy,omitempty"`
	CreatedAt     time.Time                   `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

// Published reports whether the blog belongs in the public feed.
func (b *Blog) Published() bool {
	return b.Privacy == PrivacyPublic && b.Approved
}

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlogID    uint      `gorm:"not null;index" json:"blogId"`
	AuthorID  uint      `gorm:"not null;index" json:"authorId"`
	Author    *User     `gorm:"foreignKey:AuthorID" json:"-"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ParentID  *uint     `gorm:"index" json:"parentId,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

type Payment struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	CustomerID uint              `gorm:"not null;index" json:"customerId"`
	BloggerID  uint              `gorm:"not null;index" json:"bloggerId"`
	Amount     decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency   string            `gorm:"not null;default:INR" json:"currency"`
	Status     string            `gorm:"not null;default:pending;index" json:"status"`
	Type       string            `gorm:"not null" json:"type"`
	Gateway    string            `gorm:"not null" json:"gateway"`
	ExternalID string            `gorm:"index" json:"externalId,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// BlogView is one counted visit to a blog. Visits from the same visitor are
// throttled, see analytics.TrackView.
type BlogView struct {
	ID        uint      `gorm:"primaryKey"`
	BlogID    uint      `gorm:"not null;index"`
	VisitorID string    `gorm:"not null;index"`
	IP        string    `gorm:"not null"`
	Browser   *string
	Language  *string
	CreatedAt time.Time `gorm:"index"`
}

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type CardType string

const (
	CardBurner   CardType = "burner"
	CardCategory CardType = "category"
	CardMerchant CardType = "merchant"
	CardLocation CardType = "location"
)

func (t CardType) Valid() bool {
	switch t {
	case CardBurner, CardCategory, CardMerchant, CardLocation:
		return true
	}
	return false
}

type Location struct {
	Name         string  `json:"name,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
}

type Card struct {
	ID         string          `json:"id"`
	Type       CardType        `json:"type"`
	Name       string          `json:"name"`
	Last4      string          `json:"last4"`
	SpendLimit decimal.Decimal `json:"spendLimit"`
	Spent      decimal.Decimal `json:"spent"`
	Currency   string          `json:"currency"`
	Paused     bool            `json:"paused"`
	Merchant   string          `json:"merchant,omitempty"`
	Category   string          `json:"category,omitempty"`
	Location   *Location       `json:"location,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CreateCardRequest is the body of every card issuance call. Type selects the endpoint and
// which of Merchant, Category or Location is required.
type CreateCardRequest struct {
	Type       CardType        `json:"-"`
	Name       string          `json:"name"`
	SpendLimit decimal.Decimal `json:"spendLimit"`
	Merchant   string          `json:"merchant,omitempty"`
	Category   string          `json:"category,omitempty"`
	Location   *Location       `json:"location,omitempty"`
}

type Transaction struct {
	ID        string          `json:"id"`
	CardID    string          `json:"cardId"`
	Merchant  string          `json:"merchant"`
	Category  string          `json:"category,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Subscription struct {
	ID           string          `json:"id"`
	CardID       string          `json:"cardId"`
	Merchant     string          `json:"merchant"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Interval     string          `json:"interval,omitempty"`
	Enabled      bool            `json:"enabled"`
	NextChargeAt *time.Time      `json:"nextChargeAt,omitempty"`
}

type NotificationSettings struct {
	Enabled bool `json:"enabled"`
}

type NotificationToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type BankConnectRequest struct {
	PublicToken string `json:"publicToken,omitempty"`
}

type BankConnection struct {
	Status  string `json:"status"`
	LinkURL string `json:"linkUrl,omitempty"`
}

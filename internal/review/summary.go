// Package review builds the year-in-review recap from a user's transactions.
package review

import (
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"cvrd/client/internal/api"
)

const (
	DefaultCurrency = money.USD
	topMerchants    = 5
)

type MerchantSpend struct {
	Merchant string          `json:"merchant"`
	Total    decimal.Decimal `json:"total"`
	Display  string          `json:"display"`
	Count    int             `json:"count"`
}

type Summary struct {
	Year             int             `json:"year"`
	Currency         string          `json:"currency"`
	TransactionCount int             `json:"transactionCount"`
	TotalSpent       decimal.Decimal `json:"totalSpent"`
	TotalDisplay     string          `json:"totalDisplay"`
	AverageSpend     decimal.Decimal `json:"averageSpend"`
	AverageDisplay   string          `json:"averageDisplay"`
	TopMerchants     []MerchantSpend `json:"topMerchants"`
	TopCategory      string          `json:"topCategory,omitempty"`
	BusiestMonth     string          `json:"busiestMonth,omitempty"`
	CardsUsed        int             `json:"cardsUsed"`
}

// Declined or reversed transactions never moved money.
func counts(tx api.Transaction) bool {
	switch strings.ToLower(tx.Status) {
	case "declined", "failed", "reversed", "refunded":
		return false
	}
	return true
}

// Summarize aggregates the settled spending of year. Amounts are assumed to share the
// currency of the first counted transaction.
func Summarize(transactions []api.Transaction, year int) Summary {
	summary := Summary{Year: year, TopMerchants: []MerchantSpend{}}

	byMerchant := make(map[string]*MerchantSpend)
	byCategory := make(map[string]decimal.Decimal)
	var byMonth [13]int
	cards := make(map[string]struct{})
	total := decimal.Zero

	for _, tx := range transactions {
		if tx.CreatedAt.Year() != year || !counts(tx) {
			continue
		}
		if summary.Currency == "" && tx.Currency != "" {
			summary.Currency = strings.ToUpper(tx.Currency)
		}
		summary.TransactionCount++
		total = total.Add(tx.Amount)
		byMonth[tx.CreatedAt.Month()]++
		if tx.CardID != "" {
			cards[tx.CardID] = struct{}{}
		}

		name := strings.TrimSpace(tx.Merchant)
		if name == "" {
			name = "Unknown"
		}
		m, ok := byMerchant[name]
		if !ok {
			m = &MerchantSpend{Merchant: name, Total: decimal.Zero}
			byMerchant[name] = m
		}
		m.Total = m.Total.Add(tx.Amount)
		m.Count++

		if category := strings.TrimSpace(tx.Category); category != "" {
			byCategory[category] = byCategory[category].Add(tx.Amount)
		}
	}
	if summary.Currency == "" {
		summary.Currency = DefaultCurrency
	}

	summary.TotalSpent = total
	summary.TotalDisplay = Format(total, summary.Currency)
	summary.AverageSpend = decimal.Zero
	if summary.TransactionCount > 0 {
		summary.AverageSpend = total.DivRound(decimal.NewFromInt(int64(summary.TransactionCount)), 2)
	}
	summary.AverageDisplay = Format(summary.AverageSpend, summary.Currency)
	summary.CardsUsed = len(cards)

	for _, m := range byMerchant {
		m.Display = Format(m.Total, summary.Currency)
		summary.TopMerchants = append(summary.TopMerchants, *m)
	}
	sort.Slice(summary.TopMerchants, func(i, j int) bool {
		a, b := summary.TopMerchants[i], summary.TopMerchants[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Merchant < b.Merchant
	})
	if len(summary.TopMerchants) > topMerchants {
		summary.TopMerchants = summary.TopMerchants[:topMerchants]
	}

	best := decimal.Zero
	for category, spent := range byCategory {
		if summary.TopCategory == "" || spent.GreaterThan(best) || (spent.Equal(best) && category < summary.TopCategory) {
			summary.TopCategory = category
			best = spent
		}
	}

	busiest := 0
	for month := 1; month <= 12; month++ {
		if byMonth[month] > busiest {
			busiest = byMonth[month]
			summary.BusiestMonth = time.Month(month).String()
		}
	}
	return summary
}

// Format renders amount in currency's conventional notation, e.g. $1,234.50.
func Format(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		cur = money.GetCurrency(DefaultCurrency)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

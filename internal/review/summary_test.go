package review

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cvrd/client/internal/api"
)

func tx(card, merchant, category, amount string, at time.Time, status string) api.Transaction {
	return api.Transaction{
		CardID:    card,
		Merchant:  merchant,
		Category:  category,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "usd",
		Status:    status,
		CreatedAt: at,
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	txs := []api.Transaction{
		tx("10", "Netflix", "streaming", "15.99", day(2025, time.January, 3), "settled"),
		tx("10", "Netflix", "streaming", "15.99", day(2025, time.February, 3), "settled"),
		tx("11", "Whole Foods", "groceries", "84.20", day(2025, time.February, 9), "settled"),
		tx("11", "Whole Foods", "groceries", "1000.00", day(2025, time.February, 20), "declined"),
		tx("12", "Shell", "fuel", "40.00", day(2025, time.March, 1), ""),
		tx("12", "Shell", "fuel", "99.00", day(2024, time.December, 31), "settled"),
	}

	s := Summarize(txs, 2025)
	if s.TransactionCount != 4 {
		t.Fatalf("TransactionCount = %d, want 4", s.TransactionCount)
	}
	if !s.TotalSpent.Equal(decimal.RequireFromString("156.18")) {
		t.Fatalf("TotalSpent = %s", s.TotalSpent)
	}
	if s.TotalDisplay != "$156.18" {
		t.Fatalf("TotalDisplay = %q", s.TotalDisplay)
	}
	if !s.AverageSpend.Equal(decimal.RequireFromString("39.05")) || s.AverageDisplay != "$39.05" {
		t.Fatalf("AverageSpend = %s (%s)", s.AverageSpend, s.AverageDisplay)
	}
	if s.Currency != "USD" {
		t.Fatalf("Currency = %q", s.Currency)
	}
	if s.CardsUsed != 3 {
		t.Fatalf("CardsUsed = %d", s.CardsUsed)
	}
	if s.TopCategory != "groceries" {
		t.Fatalf("TopCategory = %q", s.TopCategory)
	}
	if s.BusiestMonth != "February" {
		t.Fatalf("BusiestMonth = %q", s.BusiestMonth)
	}
	wantOrder := []string{"Whole Foods", "Shell", "Netflix"}
	if len(s.TopMerchants) != len(wantOrder) {
		t.Fatalf("TopMerchants = %+v", s.TopMerchants)
	}
	for i, name := range wantOrder {
		if s.TopMerchants[i].Merchant != name {
			t.Fatalf("TopMerchants[%d] = %q, want %q", i, s.TopMerchants[i].Merchant, name)
		}
	}
	if s.TopMerchants[2].Count != 2 || s.TopMerchants[2].Display != "$31.98" {
		t.Fatalf("Netflix spend = %+v", s.TopMerchants[2])
	}
}

func TestSummarizeEmptyYear(t *testing.T) {
	s := Summarize(nil, 2025)
	if s.TransactionCount != 0 || !s.TotalSpent.IsZero() || s.CardsUsed != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Currency != DefaultCurrency || s.TotalDisplay != "$0.00" {
		t.Fatalf("currency = %q, display = %q", s.Currency, s.TotalDisplay)
	}
	if s.TopMerchants == nil || len(s.TopMerchants) != 0 {
		t.Fatalf("TopMerchants = %#v", s.TopMerchants)
	}
	if s.BusiestMonth != "" || s.TopCategory != "" {
		t.Fatalf("unexpected month/category: %+v", s)
	}
}

func TestSummarizeCapsTopMerchants(t *testing.T) {
	var txs []api.Transaction
	for i, name := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		amount := decimal.NewFromInt(int64(10 + i)).String()
		txs = append(txs, tx("1", name, "", amount, day(2025, time.May, 1), "settled"))
	}
	s := Summarize(txs, 2025)
	if len(s.TopMerchants) != 5 || s.TopMerchants[0].Merchant != "G" {
		t.Fatalf("TopMerchants = %+v", s.TopMerchants)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{amount: "1234.5", currency: "USD", want: "$1,234.50"},
		{amount: "0.005", currency: "usd", want: "$0.01"},
		{amount: "2500", currency: "JPY", want: "¥2,500"},
		{amount: "12", currency: "???", want: "$12.00"},
	}
	for _, tc := range tests {
		if got := Format(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Errorf("Format(%s, %s) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}

package models

import "time"

// Company is a drug sponsor or developer. CIK is the SEC's Central Index Key
// and is only present for companies tracked in EDGAR.
type Company struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Ticker    *string   `json:"ticker,omitempty" db:"ticker"`
	CIK       *string   `json:"cik,omitempty" db:"cik"`
	Country   *string   `json:"country,omitempty" db:"country"`
	MarketCap *float64  `json:"market_cap,omitempty" db:"market_cap"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

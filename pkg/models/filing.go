package models

import "time"

// Filing is an SEC filing from a tracked company. The financial figures are
// extracted from the filing's XBRL documents when available.
type Filing struct {
	ID            string    `json:"id" db:"id"`
	CompanyID     string    `json:"company_id" db:"company_id"`
	CIK           string    `json:"cik" db:"cik"`
	FormType      string    `json:"form_type" db:"form_type"`
	FilingDate    time.Time `json:"filing_date" db:"filing_date"`
	Title         string    `json:"title" db:"title"`
	URL           string    `json:"url" db:"url"`
	CashUSD       *float64  `json:"cash_usd,omitempty" db:"cash_usd"`
	RnDExpenseUSD *float64  `json:"rnd_expense_usd,omitempty" db:"rnd_expense_usd"`
	RevenueUSD    *float64  `json:"revenue_usd,omitempty" db:"revenue_usd"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

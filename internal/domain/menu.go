package domain

import "github.com/shopspring/decimal"

type MenuItem struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Category        string          `json:"category"`
	CategoryDisplay string          `json:"category_display,omitempty"`
	Available       bool            `json:"is_available"`
}

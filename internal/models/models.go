package models

import "time"

// ProcessResponse is the outcome of a bulk import together with
// store-wide totals taken right after the insert.
type ProcessResponse struct {
	Imported        int      `json:"imported"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors,omitempty"`
	TotalItems      int      `json:"total_items"`
	TotalCategories int      `json:"total_categories"`
	TotalPrice      float64  `json:"total_price"`
}

// Product is one grocery record.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductInput carries raw, unvalidated field values as they arrive from
// a CSV row or the manual entry form.
type ProductInput struct {
	Name     string
	Category string
	Price    string
	Quantity string
}

// ImportEvent is published after a successful import.
type ImportEvent struct {
	ID         string    `json:"id"`
	Imported   int       `json:"imported"`
	Failed     int       `json:"failed"`
	TotalItems int       `json:"total_items"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	At         time.Time `json:"at"`
}

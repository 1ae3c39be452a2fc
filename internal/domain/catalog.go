package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is soft-deleted through Archived so historical order items keep resolving.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Image      *string         `json:"image"`
	ImageURL   string          `json:"image_url,omitempty"`
	CategoryID string          `json:"category_id"`
	Category   string          `json:"category,omitempty"`
	Archived   bool            `json:"is_archive"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

// ResolveImage derives ImageURL from the stored file name. Images are served under
// /public on publicBase.
func (p *Product) ResolveImage(publicBase string) {
	if p.Image == nil || *p.Image == "" {
		p.ImageURL = ""
		return
	}
	p.ImageURL = strings.TrimRight(publicBase, "/") + "/public/" + *p.Image
}

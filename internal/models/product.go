package models

import "github.com/shopspring/decimal"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductSummary is one row of the product listing. MinStock is the lowest
// stock across the product's SKUs.
type ProductSummary struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Slug            string          `json:"slug"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	PrimaryImageURL string          `json:"primaryImageUrl,omitempty"`
	Category        *Category       `json:"category,omitempty"`
	MinStock        int             `json:"minStock"`
}

type ProductDetail struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	ImageURLs   []string        `json:"imageUrls"`
	Category    *Category       `json:"category,omitempty"`
	Skus        []Sku           `json:"skus"`
}

// Sku is a purchasable size/colour variant as listed on a product.
type Sku struct {
	ID             int64           `json:"id"`
	SkuCodes       []string        `json:"skuCodes,omitempty"`
	PrimarySkuCode string          `json:"primarySkuCode"`
	Size           string          `json:"size"`
	Color          string          `json:"color"`
	Price          decimal.Decimal `json:"price"`
	StockQty       int             `json:"stockQty"`
	Available      bool            `json:"available"`
}

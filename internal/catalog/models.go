package catalog

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int       `json:"price_cents"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant is one size of a product with its own stock count. (product_id,
// size) is unique; stock never goes below zero.
type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Size      string    `json:"size"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Image struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	URL       string    `json:"url"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductDetail struct {
	Product
	Variants []Variant `json:"variants"`
	Images   []Image   `json:"images"`
}

type CreateProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int    `json:"price_cents"`
	ImageURL    string `json:"image_url"`
	IsActive    *bool  `json:"is_active"`
}

// UpdateProductInput applies only the fields that were present in the
// request body.
type UpdateProductInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PriceCents  *int    `json:"price_cents"`
	ImageURL    *string `json:"image_url"`
	IsActive    *bool   `json:"is_active"`
}

type StockInput struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

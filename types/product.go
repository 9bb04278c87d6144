package types

import "time"

// Product is a sellable catalog item.
type Product struct {
	// ID is the unique identifier of the product.
	ID int `json:"id" db:"id"`

	// Name is the display name of the product.
	Name string `json:"name" db:"name"`

	// Price is the current unit price. It is always positive.
	Price Money `json:"price" db:"price"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Category groups products. A product may belong to many categories.
type Category struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ProductDetails is the read shape of a product together with the
// categories it is associated with.
type ProductDetails struct {
	Product              Product    `json:"product"`
	AssociatedCategories []Category `json:"associated_categories"`
}

// ProductFilter narrows a product listing. Zero values mean "no filter";
// when both fields are set the conditions are combined.
type ProductFilter struct {
	ID          int
	NamePattern string
}

// ProductChanges is a partial product update. Nil fields are left untouched.
type ProductChanges struct {
	Name              *string
	Price             *Money
	AddCategoryIDs    []int
	RemoveCategoryIDs []int
}

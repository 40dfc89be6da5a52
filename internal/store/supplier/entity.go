package supplier

import "time"

// Supplier is a vendor the voice agent calls about purchase orders.
// Collection: suppliers
type Supplier struct {
	ID             string    `bson:"_id" json:"id"`
	SupplierNumber string    `bson:"supplierNumber" json:"supplierNumber"`
	Name           string    `bson:"name" json:"name"`
	ContactName    string    `bson:"contactName,omitempty" json:"contactName,omitempty"`
	Phone          string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Email          string    `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ListFilter narrows and pages a supplier listing.
type ListFilter struct {
	// Search matches name or supplier number, case-insensitive substring
	Search string

	// SortBy is one of name, supplierNumber, createdAt
	SortBy string

	// Descending reverses the sort
	Descending bool

	Page     int
	PageSize int
}

package model

// SortOrder selects ascending or descending listing order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions carries pagination and filter parameters for listings.
type ListOptions struct {
	Offset         int
	Limit          int
	SortOrder      SortOrder
	AssignableOnly bool
}

// DefaultListLimit is applied when a listing request names no limit.
const DefaultListLimit = 100

// Normalize fills defaults and clamps out-of-range values.
func (o *ListOptions) Normalize() {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.SortOrder != SortDesc {
		o.SortOrder = SortAsc
	}
}

// Page is one page of results plus the total count over the unpaged
// query.
type Page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

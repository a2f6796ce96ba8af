// Package dto defines request and response shapes for API v1.
package dto

// IDResponse is a response containing an entity id.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a paged collection.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Package utils holds small generic helpers shared across packages.
package utils

// Ptr returns a pointer to v. Useful for the partial-update structs
// whose optional fields are pointers.
func Ptr[T any](v T) *T {
	return &v
}

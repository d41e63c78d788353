package utils

// Ptr returns a pointer to the given value, for optional fields in tests.
func Ptr[T any](v T) *T {
	return &v
}

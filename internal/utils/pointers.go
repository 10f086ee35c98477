package utils

// Value dereferences v, treating nil as the zero value. For an optional
// *bool from the wire that makes "absent" and "false" the same answer.
func Value[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// Ptr returns a pointer to a copy of v, for filling optional wire fields
func Ptr[T any](v T) *T {
	return &v
}

package conv

func Ptr[T any](v T) *T {
	return &v
}

// FromPtr dereferences v, returning the zero value for nil.
func FromPtr[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

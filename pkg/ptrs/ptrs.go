package ptrs

// Ptr returns a pointer to a copy of val.
func Ptr[T any](val T) *T {
	return &val
}

// StringOrEmpty dereferences s, treating nil as "".
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package must

// Must returns v and panics on a non-nil err. It is meant for package-level
// initialisation of values that cannot fail at runtime.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

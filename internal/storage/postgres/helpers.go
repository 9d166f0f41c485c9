package postgres

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// nullIfEmpty maps "" to NULL so empty optional text never lands in a column.
func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

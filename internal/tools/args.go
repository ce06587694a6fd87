package tools

// Args is a decoded JSON argument object with typed accessors. JSON numbers
// arrive as float64; the accessors normalize.
type Args map[string]any

// String returns the string value of key, or "".
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the integer value of key, or def.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Float returns the float value of key, or def.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Bool returns the boolean value of key, or false.
func (a Args) Bool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// Strings returns the string-array value of key, or nil. Non-string elements
// are skipped.
func (a Args) Strings(key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Map returns the object value of key, or nil.
func (a Args) Map(key string) map[string]any {
	v, _ := a[key].(map[string]any)
	return v
}

// Has reports whether key was provided.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

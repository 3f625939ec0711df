package docstore

import "time"

// Field accessors tolerant of the two shapes document values take: native Go
// values from the in-memory store and JSON-decoded values (float64 numbers,
// RFC 3339 time strings) from the Postgres store.

// GetString returns a string field or "".
func GetString(doc Document, field string) string {
	s, _ := doc.Data[field].(string)
	return s
}

// GetBool returns a bool field or false.
func GetBool(doc Document, field string) bool {
	b, _ := doc.Data[field].(bool)
	return b
}

// GetInt returns a numeric field as int, or 0.
func GetInt(doc Document, field string) int {
	switch n := doc.Data[field].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetTime returns a time field, or the zero time when absent or unparseable.
func GetTime(doc Document, field string) time.Time {
	switch t := doc.Data[field].(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	}
	return time.Time{}
}

// GetIntMap returns a map field of numeric values, never nil.
func GetIntMap(doc Document, field string) map[string]int {
	out := make(map[string]int)
	m, ok := doc.Data[field].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range m {
		switch n := v.(type) {
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		case float64:
			out[k] = int(n)
		}
	}
	return out
}

// GetStringSlice returns a string-array field, never nil.
func GetStringSlice(doc Document, field string) []string {
	switch a := doc.Data[field].(type) {
	case []string:
		return a
	case []interface{}:
		out := make([]string, 0, len(a))
		for _, e := range a {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

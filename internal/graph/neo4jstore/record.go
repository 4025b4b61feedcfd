package neo4jstore

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func getString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch i := val.(type) {
	case int64:
		return int(i)
	case int:
		return i
	}
	return 0
}

func getBool(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getTime(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	switch t := val.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.LocalDateTime:
		return t.Time().UTC()
	}
	return time.Time{}
}

func getOptionalTime(record *neo4j.Record, key string) *time.Time {
	t := getTime(record, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getStringSlice(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	items, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optTime converts an optional timestamp into a Cypher parameter.
func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

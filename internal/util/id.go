package util

import "github.com/google/uuid"

// NewID returns a time-ordered unique id, optionally prefixed ("rt_0190...").
func NewID(prefix string) string {
	id := uuid.Must(uuid.NewV7()).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

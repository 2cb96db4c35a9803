package api

import "github.com/google/uuid"

// NewRequestID generates a new request ID (a random UUIDv4 string).
func NewRequestID() string {
	return uuid.NewString()
}

// ValidateRequestID checks whether the given string is a well-formed request ID.
func ValidateRequestID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

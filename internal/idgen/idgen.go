package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixProfile = "prof_"
	PrefixSession = "sess_"
	PrefixRequest = "req_"
)

// NewProfile generates a new profile ID with prof_ prefix
func NewProfile() string {
	return PrefixProfile + uuid.New().String()
}

// NewSession generates a new session ID with sess_ prefix
func NewSession() string {
	return PrefixSession + uuid.New().String()
}

// NewRequest generates a request correlation ID with req_ prefix
func NewRequest() string {
	return PrefixRequest + uuid.New().String()
}

// NewTag generates a short invocation identifier used in session tags
func NewTag() string {
	return uuid.New().String()[:8]
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}

package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// ScreenID identifies one stored screen run. Its time-ordered prefix makes
// ledger listings sortable by id within a second.
type ScreenID ID

// String returns the string representation
func (id ScreenID) String() string { return ID(id).String() }

// ParseScreenID parses a string into ScreenID
func ParseScreenID(s string) (ScreenID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("screen ID cannot be empty")
	}
	return ScreenID(s), nil
}

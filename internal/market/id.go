package market

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseID validates a textual identifier without touching any store.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: nil id", ErrInvalidIdentifier)
	}
	return id, nil
}

package app

import (
	"fmt"

	"github.com/google/uuid"
)

// newPurchaseID returns a random (version 4) UUID backed by crypto/rand.
func newPurchaseID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate purchase id: %w", err)
	}
	return id.String(), nil
}

// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings. Job records use random v4 IDs and ingest
// runs use time-ordered v7 IDs so run listings sort naturally.
type Generator struct {
	timeOrdered bool
}

// NewRecordIDGenerator returns a v4 generator for job records.
func NewRecordIDGenerator() *Generator {
	return &Generator{}
}

// NewRunIDGenerator returns a v7 generator for ingest runs.
func NewRunIDGenerator() *Generator {
	return &Generator{timeOrdered: true}
}

// NewID returns a UUID string.
func (g Generator) NewID() (string, error) {
	if g.timeOrdered {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate uuid7: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}

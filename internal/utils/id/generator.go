package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID generates a dashboard session identifier.
func NewSessionID() string {
	return newIdentifier("session")
}

// NewLogID generates an identifier that ties log lines of one request together.
func NewLogID() string {
	return newIdentifier("log")
}

func newIdentifier(prefix string) string {
	body, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, body.String())
}

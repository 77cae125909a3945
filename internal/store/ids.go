package store

import (
	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// NewID returns a prefixed, time-sortable identifier such as booking_01h455vb4pex5vsknk084sn02q.
func NewID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		// prefixes are compile-time constants; a bad one is a programming error
		panic("store: invalid id prefix " + prefix + ": " + err.Error())
	}
	return tid.String()
}

// GenerateUUID returns a random UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

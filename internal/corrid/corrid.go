// Package corrid generates short opaque correlation ids threaded
// through backend REST calls, for log lines and retry traces.
package corrid

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// New returns a 16-character nanoid correlation id.
func New() string {
	id, err := gonanoid.Generate(alphabet, 16)
	if err != nil {
		panic(fmt.Sprintf("corrid: generate nanoid: %v", err))
	}
	return id
}

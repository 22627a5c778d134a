// Package storage keeps uploaded document files in an object store.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when no object is stored under a key
var ErrObjectNotFound = errors.New("object not found")

const defaultPresignExpiry = 15 * time.Minute

// checkKey rejects keys that are empty, absolute or that climb out of their
// prefix.
func checkKey(key string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("storage key %q must be relative", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("storage key %q contains a relative segment", key)
		}
	}
	return nil
}

// Package batch turns raw operator input into ordered work items.
package batch

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyBatch is returned when input normalizes to no items.
var ErrEmptyBatch = errors.New("empty batch")

// EmptyMessage is shown to the operator in place of an empty submission.
const EmptyMessage = "Please enter at least one ICCID."

// Normalize splits text on \n or \r\n, trims every line and drops the
// ones left empty. Order and duplicates are preserved. Normalizing the
// joined output again yields the same items.
func Normalize(text string) []string {
	lines := strings.Split(text, "\n")
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			items = append(items, s)
		}
	}
	return items
}

// Count returns the number of items Normalize would produce.
func Count(text string) int {
	return len(Normalize(text))
}

// ReadSource reads all of r and normalizes it.
func ReadSource(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return Normalize(string(data)), nil
}

// Validate returns ErrEmptyBatch for an empty item list.
func Validate(items []string) error {
	if len(items) == 0 {
		return ErrEmptyBatch
	}
	return nil
}

//go:build integration

package webhook

import (
	"fmt"
	"testing"
	"time"
)

// GenerateSlug generates a unique slug for integration fixtures
func GenerateSlug(t *testing.T, prefix string, index int) string {
	t.Helper()
	return fmt.Sprintf("%s-%d-%d", prefix, index, time.Now().UnixNano())
}

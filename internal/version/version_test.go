// ABOUTME: Tests for version constants
// ABOUTME: Checks the identifiers published over mDNS
package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifiersDefined(t *testing.T) {
	for name, value := range map[string]string{
		"Version":      Version,
		"Product":      Product,
		"Manufacturer": Manufacturer,
	} {
		assert.NotEmpty(t, value, name)
		assert.Less(t, len(value), 100, name)
		assert.NotContains(t, []string{"TODO", "FIXME", "placeholder"}, value, name)
	}
}

func TestString(t *testing.T) {
	s := String()
	assert.Equal(t, Product+"/"+Version, s)
	// TXT record values must stay single tokens
	assert.False(t, strings.ContainsAny(s, " ="))
}

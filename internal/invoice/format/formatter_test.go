package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayNumber(t *testing.T) {
	assert.Equal(t, "INV-1000", DisplayNumber("", 1000))
	assert.Equal(t, "ACME-42", DisplayNumber("ACME-", 42))
}

func TestParseDisplayNumber(t *testing.T) {
	n, err := ParseDisplayNumber("INV-", "INV-1042")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), n)

	n, err = ParseDisplayNumber("", "INV-7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = ParseDisplayNumber("INV-", "ACME-7")
	assert.Error(t, err)

	_, err = ParseDisplayNumber("INV-", "INV-abc")
	assert.Error(t, err)

	_, err = ParseDisplayNumber("INV-", "INV-0")
	assert.Error(t, err)
}

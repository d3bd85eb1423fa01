package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	n, err := parseCount(nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = parseCount([]string{"3"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"0", "-2", "many"} {
		_, err := parseCount([]string{bad}, 10)
		assert.Error(t, err, bad)
	}
}

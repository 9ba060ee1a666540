package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	before, after, err := parseWindow(nil, 7, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 7}, []int{before, after})

	before, after, err = parseWindow([]string{"3", "0"}, 7, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, []int{before, after})

	for _, bad := range [][]string{{"3"}, {"x", "1"}, {"1", "-1"}, {"1", "2", "3"}} {
		_, _, err := parseWindow(bad, 7, 7)
		assert.Error(t, err, bad)
	}
}

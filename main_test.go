package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMainRunsCLIOnce(t *testing.T) {
	calls := 0
	orig := execute
	execute = func() { calls++ }
	t.Cleanup(func() { execute = orig })

	main()

	assert.Equal(t, 1, calls)
}

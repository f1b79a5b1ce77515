package strx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 3, Coalesce(0, 3))
	assert.Equal(t, "", Coalesce[string]())
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"power", "ina219", "#"}, Split("power/ina219/#", '/'))
	assert.Equal(t, []string{"a", "", "b"}, Split("a//b", '/'))
	assert.Equal(t, []string{""}, Split("", '/'))
}

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHostBinding(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHostBinding(BindingMessage))
	assert.True(t, IsHostBinding(BindingLog))
	assert.False(t, IsHostBinding("counter"))
	assert.False(t, IsHostBinding(""))
}

package envelope

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestNew(t *testing.T) {
	t.Parallel()

	env := New([]byte("hello"))
	require.NotEmpty(t, env.ID())
	assert.Equal(t, []byte("hello"), env.Payload())
	assert.Empty(t, env.Metadata())

	other := New(nil)
	assert.NotEqual(t, env.ID(), other.ID())
}

func TestWrap_WritesThrough(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("id-1", []byte("in"))
	msg.Metadata = nil
	env := Wrap(msg)

	env.SetPayload([]byte("out"))
	env.SetMetadata("k", "v")
	env.SetMetadata("gone", "soon")
	env.DeleteMetadata("gone")

	assert.Equal(t, "id-1", env.ID())
	assert.Equal(t, []byte("out"), msg.Payload)
	assert.Equal(t, "v", msg.Metadata.Get("k"))
	assert.Equal(t, "v", env.GetMetadata("k"))
	assert.Empty(t, env.GetMetadata("gone"))
	assert.Same(t, msg, env.Unwrap())
}

func TestMetadata_ReturnsCopy(t *testing.T) {
	t.Parallel()

	env := New(nil)
	env.SetMetadata("a", "1")

	md := env.Metadata()
	md["a"] = "changed"
	md["b"] = "2"

	assert.Equal(t, "1", env.GetMetadata("a"))
	assert.Empty(t, env.GetMetadata("b"))
}

func TestContext(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("id", nil)
	ctx := context.WithValue(t.Context(), ctxKey{}, "value")
	msg.SetContext(ctx)

	env := Wrap(msg)
	assert.Equal(t, "value", env.Context().Value(ctxKey{}))
}

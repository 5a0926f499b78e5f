package starlark

import (
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

func TestToStarlark_RoundTrip(t *testing.T) {
	t.Parallel()

	u, err := url.Parse("https://example.com/x")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "bool", in: true, want: true},
		{name: "int", in: 7, want: int64(7)},
		{name: "int32", in: int32(7), want: int64(7)},
		{name: "uint64", in: uint64(9), want: int64(9)},
		{name: "float32", in: float32(1.5), want: 1.5},
		{name: "string", in: "s", want: "s"},
		{name: "bytes", in: []byte("b"), want: []byte("b")},
		{name: "url", in: u, want: "https://example.com/x"},
		{name: "string slice", in: []string{"a", "b"}, want: []any{"a", "b"}},
		{name: "nested", in: map[string]any{"l": []any{1, "x"}}, want: map[string]any{"l": []any{int64(1), "x"}}},
		{name: "string map", in: map[string]string{"k": "v"}, want: map[string]any{"k": "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sv, err := toStarlark(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fromStarlark(sv))
		})
	}
}

func TestToStarlark_Special(t *testing.T) {
	t.Parallel()

	msg, err := toStarlark(envelope.New([]byte("p")))
	require.NoError(t, err)
	assert.Equal(t, "message", msg.Type())

	logMod, err := toStarlark(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	mod, ok := logMod.(*starlarkstruct.Module)
	require.True(t, ok)
	assert.Len(t, mod.Members, 4)

	set, err := toStarlark(map[string]struct{}{"a": {}})
	require.NoError(t, err)
	assert.Equal(t, "set", set.Type())

	native := starlarkLib.String("keep")
	same, err := toStarlark(native)
	require.NoError(t, err)
	assert.Equal(t, native, same)

	_, err = toStarlark(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}

func TestFromStarlark_Other(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []any{"a", int64(1)}, fromStarlark(starlarkLib.Tuple{starlarkLib.String("a"), starlarkLib.MakeInt(1)}))

	d := starlarkLib.NewDict(1)
	require.NoError(t, d.SetKey(starlarkLib.MakeInt(1), starlarkLib.String("one")))
	assert.Equal(t, map[string]any{"1": "one"}, fromStarlark(d))

	assert.Equal(t, "<built-in function len>", fromStarlark(starlarkLib.Universe["len"]))
	assert.Equal(t, "plain", ToGo("plain"))
}

func TestToStarlarkDict_Freeze(t *testing.T) {
	t.Parallel()

	d, err := toStarlarkDict(map[string]any{"l": []any{1}}, true)
	require.NoError(t, err)
	list := d["l"].(*starlarkLib.List)
	require.Error(t, list.Append(starlarkLib.MakeInt(2)))
}

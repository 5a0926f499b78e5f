package helpers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorReader struct{}

func (r *errorReader) Read(p []byte) (int, error) {
	return 0, errors.New("forced read error")
}

func TestSHA256(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty string",
			in:   "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "basic string",
			in:   "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SHA256(tt.in))
			assert.Equal(t, tt.want, SHA256Bytes([]byte(tt.in)))
			assert.Equal(t, tt.want[:8], ShortSHA256([]byte(tt.in)))

			got, err := SHA256Reader(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSHA256Reader_Error(t *testing.T) {
	t.Parallel()

	_, err := SHA256Reader(&errorReader{})
	require.Error(t, err)
}

package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-scriptsvc/engines/types"
)

func TestForType(t *testing.T) {
	t.Parallel()

	for _, lang := range types.All() {
		t.Run(lang.String(), func(t *testing.T) {
			t.Parallel()
			e, err := ForType(lang)
			require.NoError(t, err)
			assert.Equal(t, lang, e.Type())
			assert.NotEmpty(t, ModuleExtension(lang))
		})
	}

	_, err := ForType(types.Type("cobol"))
	require.ErrorIs(t, err, ErrUnknownLanguage)
	assert.Empty(t, ModuleExtension(types.Type("cobol")))
}

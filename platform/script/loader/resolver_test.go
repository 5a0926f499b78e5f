package loader

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/srv/app/main.star":        "main = 1",
		"/srv/app/lib/util.star":    "util = 1",
		"/opt/scripts/shared.star":  "shared = 1",
		"/opt/scripts/other/x.star": "x = 1",
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	fs := newTestFs(t)
	resources := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(resources, "bundled.star", []byte("b = 1"), 0o644))
	require.NoError(t, afero.WriteFile(resources, "shared.star", []byte("from resources"), 0o644))

	r := &Resolver{Fs: fs, Resources: resources, BaseDir: "/srv/app"}
	searchPath := []string{"/srv/app/lib", "/opt/scripts"}

	tests := []struct {
		name    string
		loc     Location
		wantURL string
		want    string
		wantErr error
	}{
		{
			name:    "absolute",
			loc:     Absolute("/srv/app/main.star"),
			wantURL: "file:///srv/app/main.star",
			want:    "main = 1",
		},
		{
			name:    "empty kind is absolute",
			loc:     Location{Path: "/opt/scripts/shared.star"},
			wantURL: "file:///opt/scripts/shared.star",
			want:    "shared = 1",
		},
		{
			name:    "relative",
			loc:     Relative("lib/util.star"),
			wantURL: "file:///srv/app/lib/util.star",
			want:    "util = 1",
		},
		{
			name:    "classpath from resources first",
			loc:     Classpath("/shared.star"),
			wantURL: "classpath:shared.star",
			want:    "from resources",
		},
		{
			name:    "classpath from search path",
			loc:     Classpath("other/x.star"),
			wantURL: "file:///opt/scripts/other/x.star",
			want:    "x = 1",
		},
		{name: "blank", loc: Absolute(" "), wantErr: ErrBlankLocation},
		{name: "missing absolute", loc: Absolute("/srv/none.star"), wantErr: ErrScriptNotAvailable},
		{name: "directory is not a script", loc: Absolute("/srv/app/lib"), wantErr: ErrScriptNotAvailable},
		{name: "missing classpath", loc: Classpath("none.star"), wantErr: ErrScriptNotAvailable},
		{name: "unknown kind", loc: Location{Kind: "url", Path: "x"}, wantErr: ErrUnknownPathKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := r.Resolve(tt.loc, searchPath)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, l.GetSourceURL().String())
			content, err := ReadAll(l)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(content))
		})
	}
}

func TestFindInPath(t *testing.T) {
	t.Parallel()

	fs := newTestFs(t)
	searchPath := []string{"/missing", "/srv/app/lib", "/opt/scripts"}

	got, ok := FindInPath(fs, searchPath, "util", ".lua", ".star")
	require.True(t, ok)
	assert.Equal(t, "/srv/app/lib/util.star", got)

	got, ok = FindInPath(fs, searchPath, "shared.star", ".star")
	require.True(t, ok)
	assert.Equal(t, "/opt/scripts/shared.star", got)

	got, ok = FindInPath(fs, nil, "/srv/app/main", ".star")
	require.True(t, ok)
	assert.Equal(t, "/srv/app/main.star", got)

	_, ok = FindInPath(fs, searchPath, "other")
	assert.False(t, ok, "directories are not matches")

	_, ok = FindInPath(fs, searchPath, "nope", ".star")
	assert.False(t, ok)
}

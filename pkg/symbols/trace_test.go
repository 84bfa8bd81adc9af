package symbols

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLoadTrace(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/traces/kernel/trace.yaml", []byte(`
id: kernel-2024
attributes:
  kallsyms: kallsyms.txt
  binary: /usr/bin/stress
  symbols.base: "0x400000"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/traces/broken.yaml", []byte("id: [oops"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/traces/noid.yaml", []byte("name: foo"), 0o644))

	tr, err := LoadTrace(fs, "/traces/kernel/trace.yaml")
	require.NoError(t, err)
	require.Equal(t, "kernel-2024", tr.ID)
	require.Equal(t, "kernel-2024", tr.Name)
	require.Equal(t, "kernel-2024", tr.String())

	p, ok := tr.Path(AttrKallsyms)
	require.True(t, ok)
	require.Equal(t, filepath.Join("/traces/kernel", "kallsyms.txt"), p)

	p, ok = tr.Path(AttrBinary)
	require.True(t, ok)
	require.Equal(t, "/usr/bin/stress", p)

	_, ok = tr.Path(AttrLidia)
	require.False(t, ok)

	base, err := tr.Base()
	require.NoError(t, err)
	require.Equal(t, uint64(0x400000), base)

	_, err = LoadTrace(fs, "/traces/broken.yaml")
	require.Error(t, err)

	_, err = LoadTrace(fs, "/traces/noid.yaml")
	require.ErrorIs(t, err, ErrMissingTraceID)

	_, err = LoadTrace(fs, "/traces/missing.yaml")
	require.Error(t, err)
}

func TestTraceBase(t *testing.T) {
	for _, tc := range []struct {
		value   string
		want    uint64
		wantErr bool
	}{
		{value: "", want: 0},
		{value: "4096", want: 4096},
		{value: "0x1000", want: 0x1000},
		{value: "nope", wantErr: true},
	} {
		tr := &Trace{ID: "t", Attributes: map[string]string{AttrBase: tc.value}}
		got, err := tr.Base()
		if tc.wantErr {
			require.Error(t, err, tc.value)
			continue
		}
		require.NoError(t, err, tc.value)
		require.Equal(t, tc.want, got, tc.value)
	}
}

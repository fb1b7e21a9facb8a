package theme

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse([]byte("bg: '#000000'\naccent: teal\nunknown: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, Theme{Bg: "#000000", Accent: "teal"}, got)

	got, err = Parse([]byte("log_level: info\ntheme:\n  font: Georgia, serif\n"))
	require.NoError(t, err)
	assert.Equal(t, Theme{Font: "Georgia, serif"}, got)

	_, err = Parse([]byte("colour: red\n"))
	assert.True(t, errors.Is(err, ErrNoKeys))

	_, err = Parse([]byte("bg: 'red; background: url(x)'\n"))
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = Parse([]byte("bg: [unterminated\n"))
	assert.Error(t, err)
}

func TestMergeKeepsMissingKeys(t *testing.T) {
	merged := Default().Merge(Theme{Text: "#111111"})
	assert.Equal(t, "#111111", merged.Text)
	assert.Equal(t, Default().Bg, merged.Bg)
	assert.Equal(t, Default().Font, merged.Font)
}

func TestStoreApplyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")

	s, err := NewStore(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, Default(), s.Current())

	applied, err := s.Apply([]byte("btn_bg: '#198754'\n"))
	require.NoError(t, err)
	assert.Equal(t, "#198754", applied.BtnBg)
	assert.Equal(t, applied, s.Current())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewStore(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, applied, reloaded.Current())
}

func TestStoreApplyRejectsBadUploadWithoutChange(t *testing.T) {
	s, err := NewStore(Default(), "")
	require.NoError(t, err)

	_, err = s.Apply([]byte("nothing: here\n"))
	require.Error(t, err)
	assert.Equal(t, Default(), s.Current())
}

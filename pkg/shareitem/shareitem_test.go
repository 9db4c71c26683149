package shareitem_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/shareimport/pkg/shareitem"
	"go.mau.fi/shareimport/pkg/uti"
)

func TestFileProviderTransientLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o600))
	provider := shareitem.NewFileProvider(path)

	assert.True(t, provider.HasConformingIdentifier(uti.Movie))
	assert.True(t, provider.HasIdentifier(uti.FileURL))
	assert.Equal(t, "video.mp4", provider.SuggestedName())

	var transient string
	err := provider.ProvideFile(context.Background(), uti.Movie, nil, func(transientPath string) error {
		transient = transientPath
		data, readErr := os.ReadFile(transientPath)
		require.NoError(t, readErr)
		assert.Equal(t, []byte("not really a video"), data)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, transient)
	assert.NotEqual(t, path, transient)
	// The transient path dies with the callback.
	_, statErr := os.Stat(transient)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileProviderUnavailableRepresentation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o600))
	provider := shareitem.NewFileProvider(path)

	err := provider.ProvideFile(context.Background(), uti.Movie, nil, func(string) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.ErrorIs(t, err, shareitem.ErrRepresentationUnavailable)
}

func TestStringProvider(t *testing.T) {
	provider := shareitem.NewURLProvider("https://example.com/article")
	assert.True(t, provider.HasConformingIdentifier(uti.URL))
	assert.False(t, provider.HasIdentifier(uti.FileURL))

	value, err := provider.ProvideString(context.Background(), uti.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/article", value)

	err = provider.ProvideFile(context.Background(), uti.URL, nil, func(string) error { return nil })
	assert.ErrorIs(t, err, shareitem.ErrRepresentationUnavailable)
}

func TestDataProvider(t *testing.T) {
	provider := shareitem.NewDataProvider("card.vcf", []byte("BEGIN:VCARD"), uti.VCard)
	data, err := provider.ProvideData(context.Background(), uti.VCard)
	require.NoError(t, err)
	assert.Equal(t, []byte("BEGIN:VCARD"), data)

	_, err = provider.ProvideData(context.Background(), uti.Image)
	assert.ErrorIs(t, err, shareitem.ErrRepresentationUnavailable)
}

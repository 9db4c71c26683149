package shareingest_test

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ffmpeg"

	"go.mau.fi/shareimport/pkg/shareingest"
	"go.mau.fi/shareimport/pkg/shareitem"
	"go.mau.fi/shareimport/pkg/uti"
)

func newBuilder(t *testing.T, transcode shareingest.TranscodeOptions) (*shareingest.Builder, string) {
	t.Helper()
	workDir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(workDir, 0o700))
	builder, err := shareingest.NewBuilder(workDir, transcode, nil)
	require.NoError(t, err)
	return builder, workDir
}

func filePayload(t *testing.T, workDir, name string, contents []byte, ids ...uti.Identifier) *shareingest.LoadedPayload {
	t.Helper()
	path := filepath.Join(workDir, name)
	require.NoError(t, os.WriteFile(path, contents, 0o600))
	var provider shareitem.Provider
	if len(ids) > 0 {
		provider = shareitem.NewFileProviderWithIdentifiers(path, ids...)
	} else {
		provider = shareitem.NewFileProvider(path)
	}
	return &shareingest.LoadedPayload{
		Item:     shareingest.Classify(provider),
		Kind:     shareingest.PayloadFile,
		FilePath: path,
	}
}

func TestBuildOversizeTextFromURL(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	payload := &shareingest.LoadedPayload{
		Item: shareingest.Classify(shareitem.NewURLProvider("https://example.com/article")),
		Kind: shareingest.PayloadURL,
		Text: "https://example.com/article",
	}
	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.True(t, att.ConvertibleToText)
	assert.False(t, att.ConvertibleToContact)
	assert.Equal(t, shareingest.OversizeTextMIME, att.MIME)
	assert.Equal(t, []byte("https://example.com/article"), att.Data)
}

func TestBuildContact(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	payload := &shareingest.LoadedPayload{
		Item: shareingest.Classify(shareitem.NewDataProvider("card.vcf", []byte(testVCard), uti.VCard)),
		Kind: shareingest.PayloadContact,
		Data: []byte(testVCard),
	}
	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.True(t, att.ConvertibleToContact)
	assert.Equal(t, "text/vcard", att.MIME)
	assert.Equal(t, "Jane Doe.vcf", att.FileName)
	assert.Contains(t, string(att.Data), "FN:Jane Doe")
}

func TestBuildContactInvalid(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	payload := &shareingest.LoadedPayload{
		Item: shareingest.Classify(shareitem.NewDataProvider("card.vcf", []byte("garbage"), uti.VCard)),
		Kind: shareingest.PayloadContact,
		Data: []byte("garbage"),
	}
	_, err := builder.Build(context.Background(), payload, nil)
	assert.ErrorIs(t, err, shareingest.ErrEncodingFailed)
}

func TestBuildImageReencodesToPNG(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	decoded, err := png.Decode(bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	payload := &shareingest.LoadedPayload{
		Item:  shareingest.Classify(&fakeProvider{ids: []uti.Identifier{uti.JPEG}, name: "photo.jpg"}),
		Kind:  shareingest.PayloadImage,
		Image: decoded,
	}
	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.MIME)
	assert.Equal(t, "photo.png", att.FileName)
	_, err = png.Decode(bytes.NewReader(att.Data))
	assert.NoError(t, err)
}

func TestBuildFileClonesWhenPathUnchanged(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	payload := filePayload(t, t.TempDir(), "notes.txt", []byte("remember the milk"))

	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	require.NotEqual(t, payload.FilePath, att.FilePath)
	assert.Equal(t, "text/plain", att.MIME)
	assert.Equal(t, "notes.txt", att.FileName)

	// The clone must survive the original: mutate and delete the input and
	// confirm the attachment is unaffected.
	require.NoError(t, os.WriteFile(payload.FilePath, []byte("overwritten"), 0o600))
	require.NoError(t, os.Remove(payload.FilePath))
	data, err := att.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("remember the milk"), data)
}

func TestBuildFileRelocatesSilentlyTranscodedVideo(t *testing.T) {
	builder, workDir := newBuilder(t, shareingest.TranscodeOptions{})
	// The item was declared as QuickTime, but the host exported MPEG-4
	// bytes: exactly the silent-transcode case the shim exists for.
	payload := filePayload(t, t.TempDir(), "clip.mov", mp4Bytes(), uti.QuickTimeMovie, uti.FileURL)

	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", att.MIME)
	assert.Equal(t, filepath.Join(workDir, "media"), filepath.Dir(att.FilePath))
}

func TestBuildFileNoRelocationWhenContainerDeclared(t *testing.T) {
	builder, workDir := newBuilder(t, shareingest.TranscodeOptions{})
	payload := filePayload(t, t.TempDir(), "clip.mp4", mp4Bytes(), uti.MPEG4, uti.FileURL)

	att, err := builder.Build(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", att.MIME)
	// No relocation, so the clone rule applies instead.
	assert.Equal(t, workDir, filepath.Dir(att.FilePath))
	assert.NotEqual(t, payload.FilePath, att.FilePath)
}

func TestBuildFileMissing(t *testing.T) {
	builder, _ := newBuilder(t, shareingest.TranscodeOptions{})
	payload := &shareingest.LoadedPayload{
		Item: shareingest.Classify(&fakeProvider{ids: []uti.Identifier{uti.FileURL}}),
		Kind: shareingest.PayloadFile,
	}
	_, err := builder.Build(context.Background(), payload, nil)
	assert.ErrorIs(t, err, shareingest.ErrNotAFileReference)

	payload.FilePath = filepath.Join(t.TempDir(), "gone.bin")
	_, err = builder.Build(context.Background(), payload, nil)
	assert.ErrorIs(t, err, shareingest.ErrNotAFileReference)
}

func TestBuildFileTranscodesUnsupportedContainer(t *testing.T) {
	if !ffmpeg.Supported() {
		t.Skip("ffmpeg not available")
	}
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.avi")
	synth := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "testsrc=duration=0.5:size=64x64:rate=10", source)
	if out, err := synth.CombinedOutput(); err != nil {
		t.Skipf("failed to synthesize test video: %v\n%s", err, out)
	}

	builder, _ := newBuilder(t, shareingest.TranscodeOptions{Enabled: true})
	payload := &shareingest.LoadedPayload{
		Item:     shareingest.Classify(shareitem.NewFileProvider(source)),
		Kind:     shareingest.PayloadFile,
		FilePath: source,
	}

	tracker := &shareingest.Tracker{}
	att, err := builder.Build(context.Background(), payload, tracker)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", att.MIME)
	assert.Equal(t, ".mp4", filepath.Ext(att.FilePath))
	assert.Equal(t, 100, tracker.Percent())
	_, err = os.Stat(att.FilePath)
	assert.NoError(t, err)
}

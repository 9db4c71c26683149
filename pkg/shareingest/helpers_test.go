package shareingest_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"go.mau.fi/shareimport/pkg/shareitem"
	"go.mau.fi/shareimport/pkg/uti"
)

// fakeProvider is a scriptable share item for exercising failure paths the
// concrete providers can't produce.
type fakeProvider struct {
	ids  []uti.Identifier
	name string

	provideFile   func(ctx context.Context, id uti.Identifier, progress shareitem.ProgressFunc, fn shareitem.FileCallback) error
	provideData   func(ctx context.Context, id uti.Identifier) ([]byte, error)
	provideString func(ctx context.Context, id uti.Identifier) (string, error)
}

var _ shareitem.Provider = (*fakeProvider)(nil)

func (fp *fakeProvider) Identifiers() []uti.Identifier {
	return fp.ids
}

func (fp *fakeProvider) HasIdentifier(id uti.Identifier) bool {
	for _, own := range fp.ids {
		if own == id {
			return true
		}
	}
	return false
}

func (fp *fakeProvider) HasConformingIdentifier(id uti.Identifier) bool {
	for _, own := range fp.ids {
		if own.ConformsTo(id) {
			return true
		}
	}
	return false
}

func (fp *fakeProvider) SuggestedName() string {
	return fp.name
}

func (fp *fakeProvider) ProvideFile(ctx context.Context, id uti.Identifier, progress shareitem.ProgressFunc, fn shareitem.FileCallback) error {
	if fp.provideFile == nil {
		return shareitem.ErrRepresentationUnavailable
	}
	return fp.provideFile(ctx, id, progress, fn)
}

func (fp *fakeProvider) ProvideData(ctx context.Context, id uti.Identifier) ([]byte, error) {
	if fp.provideData == nil {
		return nil, shareitem.ErrRepresentationUnavailable
	}
	return fp.provideData(ctx, id)
}

func (fp *fakeProvider) ProvideString(ctx context.Context, id uti.Identifier) (string, error) {
	if fp.provideString == nil {
		return "", shareitem.ErrRepresentationUnavailable
	}
	return fp.provideString(ctx, id)
}

// recordingProvider wraps a real provider and records which identifiers were
// requested for file loads.
type recordingProvider struct {
	shareitem.Provider
	requestedFile []uti.Identifier
	transientPath string
}

func (rp *recordingProvider) ProvideFile(ctx context.Context, id uti.Identifier, progress shareitem.ProgressFunc, fn shareitem.FileCallback) error {
	rp.requestedFile = append(rp.requestedFile, id)
	return rp.Provider.ProvideFile(ctx, id, progress, func(transientPath string) error {
		rp.transientPath = transientPath
		return fn(transientPath)
	})
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	return buf.Bytes()
}

// mp4Bytes is a minimal MPEG-4 ftyp header, enough for content sniffers to
// report video/mp4.
func mp4Bytes() []byte {
	header := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'm', 'p', '4', '2',
	}
	return append(header, make([]byte, 64)...)
}

const testVCard = "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Jane Doe\r\nTEL;TYPE=cell:+12025550123\r\nEND:VCARD\r\n"

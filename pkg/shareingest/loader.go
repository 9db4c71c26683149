// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package shareingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.mau.fi/util/random"

	"go.mau.fi/shareimport/pkg/shareitem"
	"go.mau.fi/shareimport/pkg/uti"
)

// PayloadKind tags the representation held by a LoadedPayload.
type PayloadKind int

const (
	PayloadFile PayloadKind = iota
	PayloadImage
	PayloadText
	PayloadURL
	PayloadContact
)

// LoadedPayload is the materialized form of one classified item. Whatever
// storage it references is owned exclusively by the pipeline: file payloads
// point into the loader's working directory, never at the transient path the
// provider handed out.
type LoadedPayload struct {
	Item ClassifiedItem
	Kind PayloadKind

	// FilePath is set for PayloadFile.
	FilePath string
	// Image is set for PayloadImage (decoded-bitmap fallback).
	Image image.Image
	// Text is set for PayloadText and PayloadURL.
	Text string
	// Data is set for PayloadContact.
	Data []byte
}

// Per-item load progress is two weighted phases: the provider-side transfer
// dominates, the local copy into owned storage accounts for the rest.
const (
	transferWeight = 90
	copyWeight     = 10
)

// preferredImageIdentifiers is consulted in order when an image item is
// loaded. Requesting a native still-image format up front avoids decoding
// and re-transforming certain lossy formats, which blows up memory on large
// photos.
var preferredImageIdentifiers = []uti.Identifier{uti.PNG, uti.HEIC}

// requestIdentifiers maps a non-image kind to the identifier requested from
// the provider when loading it.
var requestIdentifiers = map[ItemKind]uti.Identifier{
	KindVideo:         uti.Movie,
	KindWebLink:       uti.URL,
	KindFileReference: uti.FileURL,
	KindContact:       uti.VCard,
	KindText:          uti.PlainText,
	KindDocument:      uti.Composite,
	KindPass:          uti.Pass,
	KindOther:         uti.Data,
}

// Loader materializes classified items into payloads owned by the pipeline.
type Loader struct {
	workDir string
}

func NewLoader(workDir string) (*Loader, error) {
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &Loader{workDir: workDir}, nil
}

// Load produces an exclusively owned payload for the item. tracker may be
// nil. Failures are mapped onto the pipeline taxonomy: provider errors
// become ErrSourceUnavailable, absent data with no error becomes ErrUnknown.
func (l *Loader) Load(ctx context.Context, item ClassifiedItem, tracker *Tracker) (*LoadedPayload, error) {
	if tracker == nil {
		tracker = &Tracker{}
	}
	defer tracker.finish()
	switch item.Kind {
	case KindImage:
		return l.loadImage(ctx, item, tracker)
	case KindWebLink:
		return l.loadString(ctx, item, PayloadURL)
	case KindText:
		return l.loadString(ctx, item, PayloadText)
	case KindContact:
		return l.loadContact(ctx, item)
	default:
		return l.loadFile(ctx, item, requestIdentifiers[item.Kind], tracker)
	}
}

// loadFile requests the file-backed representation and copies it into the
// working directory before the provider callback returns. The provider path
// is only valid for the duration of the callback, so the copy is mandatory.
func (l *Loader) loadFile(ctx context.Context, item ClassifiedItem, id uti.Identifier, tracker *Tracker) (*LoadedPayload, error) {
	var ownedPath string
	err := item.Provider.ProvideFile(ctx, id, func(percent int) {
		tracker.set(percent * transferWeight / 100)
	}, func(transientPath string) error {
		tracker.set(transferWeight)
		var copyErr error
		ownedPath, copyErr = l.copyIntoWorkDir(transientPath)
		return copyErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if ownedPath == "" {
		return nil, ErrUnknown
	}
	return &LoadedPayload{Item: item, Kind: PayloadFile, FilePath: ownedPath}, nil
}

// loadImage prefers a native still-image file representation when the item
// declares one. When the provider can't produce the requested type, it falls
// back to an in-memory bitmap decode instead of a file.
func (l *Loader) loadImage(ctx context.Context, item ClassifiedItem, tracker *Tracker) (*LoadedPayload, error) {
	id := imageRequestIdentifier(item.Provider)
	payload, err := l.loadFile(ctx, item, id, tracker)
	if err == nil {
		return payload, nil
	}
	zerolog.Ctx(ctx).Debug().Err(err).
		Str("requested_identifier", string(id)).
		Msg("File-backed image load failed, falling back to bitmap decode")
	data, dataErr := item.Provider.ProvideData(ctx, uti.Image)
	if dataErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, dataErr)
	}
	if data == nil {
		return nil, ErrUnknown
	}
	img, _, decodeErr := image.Decode(bytes.NewReader(data))
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, decodeErr)
	}
	return &LoadedPayload{Item: item, Kind: PayloadImage, Image: img}, nil
}

// imageRequestIdentifier picks which identifier to request for an image
// item: the first preferred native format the item declares, otherwise the
// first declared identifier that is an image at all.
func imageRequestIdentifier(p shareitem.Provider) uti.Identifier {
	for _, preferred := range preferredImageIdentifiers {
		if p.HasIdentifier(preferred) {
			return preferred
		}
	}
	for _, id := range p.Identifiers() {
		if id.ConformsTo(uti.Image) {
			return id
		}
	}
	return uti.Image
}

func (l *Loader) loadString(ctx context.Context, item ClassifiedItem, kind PayloadKind) (*LoadedPayload, error) {
	str, err := item.Provider.ProvideString(ctx, requestIdentifiers[item.Kind])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return &LoadedPayload{Item: item, Kind: kind, Text: str}, nil
}

func (l *Loader) loadContact(ctx context.Context, item ClassifiedItem) (*LoadedPayload, error) {
	data, err := item.Provider.ProvideData(ctx, uti.VCard)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if data == nil {
		return nil, ErrUnknown
	}
	return &LoadedPayload{Item: item, Kind: PayloadContact, Data: data}, nil
}

// copyIntoWorkDir duplicates src under a fresh name in the loader's working
// directory, preserving the extension so later format derivation still works.
func (l *Loader) copyIntoWorkDir(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	dst := filepath.Join(l.workDir, random.String(16)+filepath.Ext(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// errorIsUnavailable tells provider failures apart from pipeline bugs, so
// the importer can log the former quietly.
func errorIsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, shareitem.ErrRepresentationUnavailable)
}

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
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exmime"
	"go.mau.fi/util/random"

	"go.mau.fi/shareimport/pkg/uti"
)

// OversizeTextMIME marks a text payload wrapped as attachment data because
// it may exceed inline message size limits.
const OversizeTextMIME = "text/x-signal-plain"

// Attachment is a self-contained, independently owned sendable object. Its
// backing storage (FilePath or Data) never aliases provider-owned storage.
type Attachment struct {
	// FilePath points into the pipeline's working directory for file-backed
	// attachments. Empty for in-memory attachments.
	FilePath string
	// Data holds small in-memory attachments (text, contacts, re-encoded
	// images).
	Data []byte
	MIME string
	// FileName is the name suggested to the recipient.
	FileName string

	// ConvertibleToText marks attachments that the composer may send as a
	// plain text message instead.
	ConvertibleToText bool
	// ConvertibleToContact marks attachments that the composer may send as
	// a contact share instead.
	ConvertibleToContact bool
}

// Bytes returns the attachment contents, reading file-backed attachments
// from disk.
func (att *Attachment) Bytes() ([]byte, error) {
	if att.FilePath != "" {
		return os.ReadFile(att.FilePath)
	}
	return att.Data, nil
}

// TranscodeOptions controls the video recompression step.
type TranscodeOptions struct {
	Enabled bool
	// OutputArgs are extra ffmpeg output arguments for the MPEG-4 target.
	OutputArgs []string
	// PollInterval is how often an active export session is sampled for
	// progress. Defaults to 250ms.
	PollInterval time.Duration
}

const defaultTranscodePollInterval = 250 * time.Millisecond

// Builder converts loaded payloads into final owned attachments.
type Builder struct {
	workDir   string
	mediaDir  string
	transcode TranscodeOptions
	metrics   *Metrics
}

// NewBuilder creates a builder writing into workDir. The media subdirectory
// is reserved for the relocation shim (see relocateForPlayback).
func NewBuilder(workDir string, transcode TranscodeOptions, metrics *Metrics) (*Builder, error) {
	if transcode.PollInterval <= 0 {
		transcode.PollInterval = defaultTranscodePollInterval
	}
	mediaDir := filepath.Join(workDir, "media")
	if err := os.MkdirAll(mediaDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Builder{
		workDir:   workDir,
		mediaDir:  mediaDir,
		transcode: transcode,
		metrics:   metrics,
	}, nil
}

// Build converts a payload into an attachment, applying format-specific
// transformation rules. tracker may be nil.
func (b *Builder) Build(ctx context.Context, payload *LoadedPayload, tracker *Tracker) (*Attachment, error) {
	if tracker == nil {
		tracker = &Tracker{}
	}
	defer tracker.finish()
	switch payload.Kind {
	case PayloadURL, PayloadText:
		return b.buildOversizeText(payload)
	case PayloadContact:
		return b.buildContact(payload)
	case PayloadImage:
		return b.buildImage(payload)
	case PayloadFile:
		return b.buildFile(ctx, payload, tracker)
	default:
		return nil, fmt.Errorf("unsupported payload kind %d", payload.Kind)
	}
}

func (b *Builder) buildOversizeText(payload *LoadedPayload) (*Attachment, error) {
	return &Attachment{
		Data:              []byte(payload.Text),
		MIME:              OversizeTextMIME,
		FileName:          "message.txt",
		ConvertibleToText: true,
	}, nil
}

// buildContact validates the card and re-encodes it so the outgoing bytes
// are always well-formed vCard 4.0 regardless of what the source produced.
func (b *Builder) buildContact(payload *LoadedPayload) (*Attachment, error) {
	card, err := vcard.NewDecoder(bytes.NewReader(payload.Data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid contact card: %w", ErrEncodingFailed, err)
	}
	vcard.ToV4(card)
	var buf bytes.Buffer
	if err = vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	displayName := card.PreferredValue(vcard.FieldFormattedName)
	if displayName == "" {
		displayName = "contact"
	}
	return &Attachment{
		Data:                 buf.Bytes(),
		MIME:                 "text/vcard",
		FileName:             displayName + ".vcf",
		ConvertibleToContact: true,
	}, nil
}

// buildImage re-encodes a decoded bitmap to PNG. The bitmap is never passed
// through un-encoded.
func (b *Builder) buildImage(payload *LoadedPayload) (*Attachment, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, payload.Image); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	name := payload.Item.Provider.SuggestedName()
	if name == "" {
		name = "image"
	}
	return &Attachment{
		Data:     buf.Bytes(),
		MIME:     "image/png",
		FileName: replaceExtension(name, ".png"),
	}, nil
}

func (b *Builder) buildFile(ctx context.Context, payload *LoadedPayload, tracker *Tracker) (*Attachment, error) {
	log := zerolog.Ctx(ctx)
	path := payload.FilePath
	if path == "" {
		return nil, ErrNotAFileReference
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAFileReference, err)
	}
	mimeType := deriveMIME(path)
	if needsRelocation(path, payload.Item.Provider) {
		relocated, err := b.copyFile(path, b.mediaDir)
		if err != nil {
			return nil, fmt.Errorf("failed to relocate media file: %w", err)
		}
		log.Debug().Str("path", relocated).Msg("Relocated silently transcoded video before processing")
		path = relocated
		mimeType = "video/mp4"
	}
	if b.transcode.Enabled && b.needsTranscode(ctx, mimeType, path) {
		return b.buildTranscoded(ctx, payload, path, tracker)
	}
	// If nothing above copied or transformed the file, the attachment would
	// alias the loaded payload's storage, so it has to be cloned.
	if path == payload.FilePath {
		cloned, err := b.copyFile(path, b.workDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCloneFailed, err)
		}
		path = cloned
	}
	return &Attachment{
		FilePath: path,
		MIME:     mimeType,
		FileName: attachmentFileName(payload, mimeType),
	}, nil
}

func (b *Builder) buildTranscoded(ctx context.Context, payload *LoadedPayload, path string, tracker *Tracker) (*Attachment, error) {
	start := time.Now()
	session, err := b.startTranscode(ctx, path, tracker)
	if err != nil {
		return nil, err
	}
	// Cancellation settles the session's progress immediately instead of
	// waiting for ffmpeg to notice and exit.
	go func() {
		select {
		case <-ctx.Done():
			session.Cancel()
		case <-session.done:
		}
	}()
	outputPath, err := session.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to recompress video: %w", err)
	}
	b.metrics.TranscodeFinished(time.Since(start))
	return &Attachment{
		FilePath: outputPath,
		MIME:     "video/mp4",
		FileName: replaceExtension(attachmentFileName(payload, "video/mp4"), ".mp4"),
	}, nil
}

// deriveMIME maps the file extension to an output format, falling back to
// content sniffing and finally to generic binary data.
func deriveMIME(path string) string {
	if mimeType := uti.FromPath(path).MIME(); mimeType != "" && filepath.Ext(path) != "" {
		return mimeType
	}
	if sniffed, err := mimetype.DetectFile(path); err == nil {
		return sniffed.String()
	}
	return "application/octet-stream"
}

// needsRelocation implements a compatibility shim: some host applications
// silently transcode videos to MPEG-4 during export. When the bytes on disk
// are MPEG-4 but the item never declared that container, media frameworks
// have been observed to fail opaquely on the file unless it is first copied
// into a dedicated media directory. The trigger condition is reproduced
// as-is; no principled explanation for the underlying failure is known.
func needsRelocation(path string, provider interface{ HasIdentifier(uti.Identifier) bool }) bool {
	sniffed, err := mimetype.DetectFile(path)
	if err != nil || !sniffed.Is("video/mp4") {
		return false
	}
	return !provider.HasIdentifier(uti.MPEG4)
}

// sendableVideoMIMEs are containers that can be sent without recompression,
// provided the codec check also passes.
var sendableVideoMIMEs = map[string]bool{
	"video/mp4": true,
}

// sendableVideoCodecs are codecs recipients are expected to decode.
var sendableVideoCodecs = map[string]bool{
	"h264": true,
	"hevc": true,
}

// needsTranscode decides whether a video payload must be recompressed to
// MPEG-4 before sending. Non-video files never transcode. An unsupported
// container always does; a supported container is probed for its codec when
// ffprobe is available, and assumed sendable when probing fails.
func (b *Builder) needsTranscode(ctx context.Context, mimeType, path string) bool {
	if !strings.HasPrefix(mimeType, "video/") {
		return false
	}
	if !sendableVideoMIMEs[mimeType] {
		return true
	}
	codec, err := probeVideoCodec(ctx, path)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", path).
			Msg("Failed to probe video codec, assuming sendable")
		return false
	}
	return !sendableVideoCodecs[codec]
}

func attachmentFileName(payload *LoadedPayload, mimeType string) string {
	if name := payload.Item.Provider.SuggestedName(); name != "" {
		return name
	}
	return payload.Item.Kind.String() + exmime.ExtensionFromMimetype(mimeType)
}

func replaceExtension(name, newExt string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + newExt
}

// copyFile duplicates src into dir under a fresh name, preserving the
// extension, and returns the new path.
func (b *Builder) copyFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	dst := filepath.Join(dir, random.String(16)+filepath.Ext(src))
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

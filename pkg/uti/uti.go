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

// Package uti implements hierarchical format identifiers with conformance
// checking, modeled after the identifier trees used by cross-app share
// mechanisms ("is this a movie, or anything that behaves like a movie").
package uti

import (
	"mime"
	"path/filepath"
	"strings"

	"go.mau.fi/util/exmime"
)

// Identifier is a hierarchical format identifier. An identifier conforms to
// zero or more parent identifiers, forming a tree rooted at Item.
type Identifier string

const (
	Item      Identifier = "public.item"
	Content   Identifier = "public.content"
	Data      Identifier = "public.data"
	Composite Identifier = "public.composite-content"

	URL     Identifier = "public.url"
	FileURL Identifier = "public.file-url"

	Text      Identifier = "public.text"
	PlainText Identifier = "public.plain-text"
	UTF8Text  Identifier = "public.utf8-plain-text"

	Image Identifier = "public.image"
	JPEG  Identifier = "public.jpeg"
	PNG   Identifier = "public.png"
	GIF   Identifier = "com.compuserve.gif"
	WebP  Identifier = "org.webmproject.webp"
	HEIC  Identifier = "public.heic"

	AudiovisualContent Identifier = "public.audiovisual-content"
	Movie              Identifier = "public.movie"
	Video              Identifier = "public.video"
	MPEG4              Identifier = "public.mpeg-4"
	QuickTimeMovie     Identifier = "com.apple.quicktime-movie"
	Audio              Identifier = "public.audio"
	MPEG4Audio         Identifier = "public.mpeg-4-audio"

	VCard Identifier = "public.vcard"
	PDF   Identifier = "com.adobe.pdf"
	Pass  Identifier = "com.apple.pkpass"
)

// conformance maps each identifier to its direct parents. Identifiers not
// listed here conform only to themselves.
var conformance = map[Identifier][]Identifier{
	Content:   {Item},
	Data:      {Item},
	Composite: {Content},

	URL:     {Data},
	FileURL: {URL},

	Text:      {Data, Content},
	PlainText: {Text},
	UTF8Text:  {PlainText},

	Image: {Data, Content},
	JPEG:  {Image},
	PNG:   {Image},
	GIF:   {Image},
	WebP:  {Image},
	HEIC:  {Image},

	AudiovisualContent: {Data, Content},
	Movie:              {AudiovisualContent},
	Video:              {Movie},
	MPEG4:              {Movie},
	QuickTimeMovie:     {Movie},
	Audio:              {AudiovisualContent},
	MPEG4Audio:         {Audio},

	VCard: {Text},
	PDF:   {Data, Composite},
	Pass:  {Data},
}

// ConformsTo reports whether id is target or any ancestor of id is target.
func (id Identifier) ConformsTo(target Identifier) bool {
	if id == target {
		return true
	}
	for _, parent := range conformance[id] {
		if parent.ConformsTo(target) {
			return true
		}
	}
	return false
}

var mimeByIdentifier = map[Identifier]string{
	URL:       "text/uri-list",
	PlainText: "text/plain",
	UTF8Text:  "text/plain",
	JPEG:      "image/jpeg",
	PNG:       "image/png",
	GIF:       "image/gif",
	WebP:      "image/webp",
	HEIC:      "image/heic",
	MPEG4:     "video/mp4",
	// Sniffers report QuickTime containers separately from MP4 even though
	// the box structure is shared.
	QuickTimeMovie: "video/quicktime",
	MPEG4Audio:     "audio/mp4",
	VCard:          "text/vcard",
	PDF:            "application/pdf",
	Pass:           "application/vnd.apple.pkpass",
}

var identifierByMIME = make(map[string]Identifier, len(mimeByIdentifier))

func init() {
	for id, mimeType := range mimeByIdentifier {
		if _, conflict := identifierByMIME[mimeType]; !conflict {
			identifierByMIME[mimeType] = id
		}
	}
	identifierByMIME["text/x-vcard"] = VCard
}

// MIME returns the preferred MIME type for the identifier, or an empty
// string when the identifier has no defined MIME mapping.
func (id Identifier) MIME() string {
	return mimeByIdentifier[id]
}

// Extension returns the preferred filename extension (with leading dot) for
// the identifier, or an empty string when unknown.
func (id Identifier) Extension() string {
	mimeType := id.MIME()
	if mimeType == "" {
		return ""
	}
	return exmime.ExtensionFromMimetype(mimeType)
}

// FromMIME returns the identifier for a MIME type. Types without an exact
// mapping fall back to their top-level class (image/*, video/*, audio/*,
// text/*) and finally to Data.
func FromMIME(mimeType string) Identifier {
	if mimeType == "" {
		return Data
	}
	if semicolon := strings.IndexByte(mimeType, ';'); semicolon != -1 {
		mimeType = strings.TrimSpace(mimeType[:semicolon])
	}
	if id, ok := identifierByMIME[mimeType]; ok {
		return id
	}
	switch strings.Split(mimeType, "/")[0] {
	case "image":
		return Image
	case "video":
		return Movie
	case "audio":
		return Audio
	case "text":
		return Text
	default:
		return Data
	}
}

// identifierByExtension covers the extensions this pipeline cares about
// directly. The stdlib mime table is consulted for everything else, but its
// builtin entries don't include common media containers.
var identifierByExtension = map[string]Identifier{
	".jpg":    JPEG,
	".jpeg":   JPEG,
	".png":    PNG,
	".gif":    GIF,
	".webp":   WebP,
	".heic":   HEIC,
	".heif":   HEIC,
	".mp4":    MPEG4,
	".m4v":    MPEG4,
	".mov":    QuickTimeMovie,
	".qt":     QuickTimeMovie,
	".m4a":    MPEG4Audio,
	".txt":    PlainText,
	".text":   PlainText,
	".vcf":    VCard,
	".pdf":    PDF,
	".pkpass": Pass,
}

// FromExtension returns the identifier for a filename extension. The
// extension may be passed with or without the leading dot.
func FromExtension(ext string) Identifier {
	if ext == "" {
		return Data
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ext = strings.ToLower(ext)
	if id, ok := identifierByExtension[ext]; ok {
		return id
	}
	return FromMIME(mime.TypeByExtension(ext))
}

// FromPath returns the identifier for a file path based on its extension.
func FromPath(path string) Identifier {
	return FromExtension(filepath.Ext(path))
}

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
	"go.mau.fi/shareimport/pkg/shareitem"
	"go.mau.fi/shareimport/pkg/uti"
)

// ItemKind is the semantic payload kind inferred for a shared item.
type ItemKind int

const (
	KindOther ItemKind = iota
	KindVideo
	KindImage
	KindWebLink
	KindFileReference
	KindContact
	KindText
	KindDocument
	KindPass
)

func (k ItemKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindWebLink:
		return "web-link"
	case KindFileReference:
		return "file"
	case KindContact:
		return "contact"
	case KindText:
		return "text"
	case KindDocument:
		return "document"
	case KindPass:
		return "pass"
	default:
		return "other"
	}
}

// IsVisualMedia reports whether the kind is image or video.
func (k ItemKind) IsVisualMedia() bool {
	return k == KindImage || k == KindVideo
}

// ClassifiedItem pairs a provider with its inferred kind. Created once
// during classification, never mutated.
type ClassifiedItem struct {
	Provider shareitem.Provider
	Kind     ItemKind
}

type classificationRule struct {
	kind  ItemKind
	match func(p shareitem.Provider) bool
}

func conformsTo(id uti.Identifier) func(shareitem.Provider) bool {
	return func(p shareitem.Provider) bool {
		return p.HasConformingIdentifier(id)
	}
}

// classificationOrder is the fixed priority table for kind inference. The
// web-link rule requires the URL identifier without a competing file-URL
// identifier, because file URLs conform to the URL identifier and would
// otherwise shadow document shares.
var classificationOrder = []classificationRule{
	{KindVideo, conformsTo(uti.Movie)},
	{KindImage, conformsTo(uti.Image)},
	{KindWebLink, func(p shareitem.Provider) bool {
		return p.HasConformingIdentifier(uti.URL) && !p.HasIdentifier(uti.FileURL)
	}},
	{KindFileReference, conformsTo(uti.FileURL)},
	{KindContact, conformsTo(uti.VCard)},
	{KindText, conformsTo(uti.PlainText)},
	{KindDocument, conformsTo(uti.Composite)},
	{KindPass, conformsTo(uti.Pass)},
}

// Classify infers the kind of a single item. It is total: items matching no
// rule come back as KindOther instead of failing.
func Classify(p shareitem.Provider) ClassifiedItem {
	for _, rule := range classificationOrder {
		if rule.match(p) {
			return ClassifiedItem{Provider: p, Kind: rule.kind}
		}
	}
	return ClassifiedItem{Provider: p, Kind: KindOther}
}

// SelectForImport classifies all offered items and picks the subset to
// actually import. A web link beats everything else in the share, including
// its accompanying caption or icon. Failing that, a coherent visual-media
// set is imported together, excluding any non-visual items. Otherwise only
// the first item in original order is taken.
func SelectForImport(items []shareitem.Provider) ([]ClassifiedItem, error) {
	if len(items) == 0 {
		return nil, ErrMissingInput
	}
	classified := make([]ClassifiedItem, len(items))
	for i, item := range items {
		classified[i] = Classify(item)
	}
	var visual []ClassifiedItem
	for _, ci := range classified {
		if ci.Kind == KindWebLink {
			return []ClassifiedItem{ci}, nil
		}
		if ci.Kind.IsVisualMedia() {
			visual = append(visual, ci)
		}
	}
	if len(visual) > 0 {
		return visual, nil
	}
	return classified[:1], nil
}

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
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when an import is started with no items.
	ErrMissingInput = errors.New("no items offered for import")
	// ErrSourceUnavailable is returned when a provider could not produce
	// any data for the requested representation.
	ErrSourceUnavailable = errors.New("provider could not produce data")
	// ErrTypeMismatch is returned when a provider produced a different
	// representation than the one requested.
	ErrTypeMismatch = errors.New("provider returned unexpected representation")
	// ErrEncodingFailed is returned when a payload (image or contact card)
	// could not be re-encoded for sending.
	ErrEncodingFailed = errors.New("failed to re-encode payload")
	// ErrNotAFileReference is returned when a payload that should be
	// file-backed has no resolvable path.
	ErrNotAFileReference = errors.New("payload is not file-backed")
	// ErrCloneFailed is returned when duplicating attachment storage to
	// satisfy the ownership invariant fails.
	ErrCloneFailed = errors.New("failed to clone attachment storage")
	// ErrTooManyAttachments is a policy rejection, not an I/O failure: the
	// share contained more importable items than the configured limit.
	ErrTooManyAttachments = errors.New("too many attachments")
	// ErrUnknown covers loads that produced neither data nor an explicit
	// error. They must still be treated as failures.
	ErrUnknown = errors.New("load finished with no data and no error")
)

// Alert is the single user-facing error surface of an import. Every failed
// import maps to exactly one alert.
type Alert struct {
	Title   string
	Message string
}

// AlertFor maps a pipeline error to its user-facing alert. The attachment
// limit gets a dedicated message since it's a policy rejection the user can
// act on; everything else funnels into one generic alert with the underlying
// detail appended.
func AlertFor(err error, maxAttachments int) Alert {
	if errors.Is(err, ErrTooManyAttachments) {
		return Alert{
			Title:   "Too Many Attachments",
			Message: fmt.Sprintf("A maximum of %d attachments may be shared at once.", maxAttachments),
		}
	}
	return Alert{
		Title:   "Import Failed",
		Message: fmt.Sprintf("Could not build attachment: %v", err),
	}
}

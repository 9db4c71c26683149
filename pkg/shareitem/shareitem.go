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

// Package shareitem defines the boundary between an importing pipeline and
// the application offering content. A Provider is the opaque handle for one
// shared item: it declares which format identifiers it can produce and
// materializes them on request. Providers own any storage they hand out only
// for the duration of the call, so consumers must copy what they keep.
package shareitem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.mau.fi/util/random"
	"golang.org/x/exp/slices"

	"go.mau.fi/shareimport/pkg/uti"
)

// ErrRepresentationUnavailable is returned when a provider cannot produce
// the requested identifier at all.
var ErrRepresentationUnavailable = errors.New("no representation available for requested identifier")

// ProgressFunc receives provider-side transfer progress in the range 0-100.
type ProgressFunc func(percent int)

// FileCallback receives a transient path to the item's contents. The path is
// destroyed when the callback returns; anything the caller wants to keep
// must be copied into storage the caller owns before returning.
type FileCallback func(transientPath string) error

// Provider is one shared item offered by a source application.
type Provider interface {
	// Identifiers returns the format identifiers the item declares, in the
	// source application's preference order.
	Identifiers() []uti.Identifier
	// HasIdentifier reports whether the item declares exactly id.
	HasIdentifier(id uti.Identifier) bool
	// HasConformingIdentifier reports whether any declared identifier
	// conforms to id.
	HasConformingIdentifier(id uti.Identifier) bool
	// SuggestedName returns a filename hint for the item, or "".
	SuggestedName() string

	// ProvideFile materializes the item as a file and invokes fn with a
	// transient path (see FileCallback). progress may be nil.
	ProvideFile(ctx context.Context, id uti.Identifier, progress ProgressFunc, fn FileCallback) error
	// ProvideData returns the item's contents in memory.
	ProvideData(ctx context.Context, id uti.Identifier) ([]byte, error)
	// ProvideString returns the item decoded as a string.
	ProvideString(ctx context.Context, id uti.Identifier) (string, error)
}

type declared []uti.Identifier

func (d declared) Identifiers() []uti.Identifier {
	return d
}

func (d declared) HasIdentifier(id uti.Identifier) bool {
	return slices.Contains(d, id)
}

func (d declared) HasConformingIdentifier(id uti.Identifier) bool {
	return slices.ContainsFunc(d, func(own uti.Identifier) bool {
		return own.ConformsTo(id)
	})
}

// FileProvider offers a local file. It declares the file's concrete type
// (inferred from the extension) plus the file-URL identifier, matching how
// document shares are declared in practice.
type FileProvider struct {
	declared
	Path string
}

var _ Provider = (*FileProvider)(nil)

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{
		declared: declared{uti.FromPath(path), uti.FileURL},
		Path:     path,
	}
}

// NewFileProviderWithIdentifiers overrides the inferred declaration. Used
// when the source application declares something other than what the file
// extension implies.
func NewFileProviderWithIdentifiers(path string, ids ...uti.Identifier) *FileProvider {
	return &FileProvider{declared: declared(ids), Path: path}
}

func (fp *FileProvider) SuggestedName() string {
	return filepath.Base(fp.Path)
}

func (fp *FileProvider) ProvideFile(ctx context.Context, id uti.Identifier, progress ProgressFunc, fn FileCallback) error {
	if !fp.HasConformingIdentifier(id) {
		return fmt.Errorf("%w: %s", ErrRepresentationUnavailable, id)
	}
	transient, err := copyToTransient(fp.Path)
	if err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}
	defer os.Remove(transient)
	if err = ctx.Err(); err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return fn(transient)
}

func (fp *FileProvider) ProvideData(ctx context.Context, id uti.Identifier) ([]byte, error) {
	if !fp.HasConformingIdentifier(id) {
		return nil, fmt.Errorf("%w: %s", ErrRepresentationUnavailable, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(fp.Path)
}

func (fp *FileProvider) ProvideString(ctx context.Context, id uti.Identifier) (string, error) {
	data, err := fp.ProvideData(ctx, id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// copyToTransient stages a copy of the file in the system temp directory.
// The copy stands in for the short-lived path a share mechanism hands out.
func copyToTransient(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	transient := filepath.Join(os.TempDir(), "shareitem-"+random.String(12)+filepath.Ext(path))
	dst, err := os.Create(transient)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(transient)
		return "", err
	}
	return transient, nil
}

// DataProvider offers an in-memory blob under a fixed set of identifiers.
type DataProvider struct {
	declared
	Name string
	Data []byte
}

var _ Provider = (*DataProvider)(nil)

func NewDataProvider(name string, data []byte, ids ...uti.Identifier) *DataProvider {
	return &DataProvider{declared: declared(ids), Name: name, Data: data}
}

func (dp *DataProvider) SuggestedName() string {
	return dp.Name
}

func (dp *DataProvider) ProvideFile(ctx context.Context, id uti.Identifier, progress ProgressFunc, fn FileCallback) error {
	if !dp.HasConformingIdentifier(id) {
		return fmt.Errorf("%w: %s", ErrRepresentationUnavailable, id)
	}
	transient := filepath.Join(os.TempDir(), "shareitem-"+random.String(12))
	if err := os.WriteFile(transient, dp.Data, 0o600); err != nil {
		return fmt.Errorf("failed to stage data: %w", err)
	}
	defer os.Remove(transient)
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return fn(transient)
}

func (dp *DataProvider) ProvideData(ctx context.Context, id uti.Identifier) ([]byte, error) {
	if !dp.HasConformingIdentifier(id) {
		return nil, fmt.Errorf("%w: %s", ErrRepresentationUnavailable, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dp.Data, nil
}

func (dp *DataProvider) ProvideString(ctx context.Context, id uti.Identifier) (string, error) {
	data, err := dp.ProvideData(ctx, id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StringProvider offers a short textual value, such as a URL or a message
// snippet, under a single identifier.
type StringProvider struct {
	declared
	Value string
}

var _ Provider = (*StringProvider)(nil)

func NewStringProvider(value string, id uti.Identifier) *StringProvider {
	return &StringProvider{declared: declared{id}, Value: value}
}

// NewURLProvider offers value under the web URL identifier.
func NewURLProvider(value string) *StringProvider {
	return NewStringProvider(value, uti.URL)
}

// NewTextProvider offers value as plain text.
func NewTextProvider(value string) *StringProvider {
	return NewStringProvider(value, uti.PlainText)
}

func (sp *StringProvider) SuggestedName() string {
	return ""
}

func (sp *StringProvider) ProvideFile(ctx context.Context, id uti.Identifier, progress ProgressFunc, fn FileCallback) error {
	return fmt.Errorf("%w: %s is not file-backed", ErrRepresentationUnavailable, id)
}

func (sp *StringProvider) ProvideData(ctx context.Context, id uti.Identifier) ([]byte, error) {
	str, err := sp.ProvideString(ctx, id)
	if err != nil {
		return nil, err
	}
	return []byte(str), nil
}

func (sp *StringProvider) ProvideString(ctx context.Context, id uti.Identifier) (string, error) {
	if !sp.HasConformingIdentifier(id) {
		return "", fmt.Errorf("%w: %s", ErrRepresentationUnavailable, id)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sp.Value, nil
}

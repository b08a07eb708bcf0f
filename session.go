/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package heifcore reads HEIF/ISOBMFF containers with HEVC-coded images, as
// found in Apple HEIC files; items of other codecs (such as AVIF's av01) are
// not registered as images. It does not decode image pixels; it
// parses the box tree, builds the item/property graph, and hands back
// compressed bitstreams and composite-image metadata (grid, overlay, depth).
package heifcore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/go-heif/heifcore/bmff"
	"github.com/go-heif/heifcore/heiferr"
	"github.com/go-heif/heifcore/heifitem"
)

// Session represents an opened HEIF container.
//
// Methods on a Session may be called concurrently only if the session was
// opened with WithThreadSafeReads(true).
type Session struct {
	ra    io.ReaderAt
	opts  options
	mu    sync.Mutex // guards ra reads when opts.threadSafeReads
	model *heifitem.Model
}

type options struct {
	threadSafeReads bool
	maxMemoryBlock  int
	logger          *log.Logger
}

func defaultOptions() options {
	return options{
		maxMemoryBlock: bmff.MaxMemoryBlockSize,
		logger:         log.Default(),
	}
}

// Option configures a Session, using the functional-options pattern.
type Option func(*options)

// WithThreadSafeReads serializes, with a mutex, the Session methods that
// read item data through the underlying reader (CompressedBytes, ImageData,
// GridInfo, OverlayInfo, ExifTags), for callers that share one Session
// across goroutines.
func WithThreadSafeReads(b bool) Option {
	return func(o *options) { o.threadSafeReads = b }
}

// WithMaxMemoryBlockSize overrides the cumulative per-item extent-read cap
// (default bmff.MaxMemoryBlockSize).
func WithMaxMemoryBlockSize(n int) Option {
	return func(o *options) { o.maxMemoryBlock = n }
}

// WithLogger overrides the logger used for best-effort diagnostics
// (default log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open parses a HEIF container's box tree and item model from ra.
func Open(ra io.ReaderAt, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{ra: ra, opts: o}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFile opens and parses the HEIF container at path.
func OpenFile(path string, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, heiferr.Errorf(heiferr.InputDoesNotExist, heiferr.Unspecified, "%v", err)
	}
	// f is intentionally left open for the lifetime of the Session: every
	// CompressedBytes/ImageData call reads lazily through ra.
	return Open(f, opts...)
}

const assumedMaxSize = 5 << 40 // arbitrary upper bound on a HEIF file's size

func (s *Session) load() error {
	sr := io.NewSectionReader(s.ra, 0, assumedMaxSize)
	r := bmff.NewReader(sr)

	ftBox, err := r.ReadAndParseBox(bmff.TypeFtyp)
	if err != nil {
		return err
	}
	ft, ok := ftBox.(*bmff.FileTypeBox)
	if !ok {
		return heiferr.New(heiferr.InvalidInput, heiferr.NoFtypBox)
	}

	metaBox, err := r.ReadAndParseBox(bmff.TypeMeta)
	if err != nil {
		return err
	}
	meta, ok := metaBox.(*bmff.MetaBox)
	if !ok {
		return heiferr.New(heiferr.InvalidInput, heiferr.NoMetaBox)
	}

	model, err := heifitem.Interpret(ft, meta)
	if err != nil {
		return err
	}
	if s.opts.maxMemoryBlock > 0 {
		model.MaxMemoryBlockSize = s.opts.maxMemoryBlock
	}
	s.model = model
	return nil
}

func (s *Session) lock() {
	if s.opts.threadSafeReads {
		s.mu.Lock()
	}
}

func (s *Session) unlock() {
	if s.opts.threadSafeReads {
		s.mu.Unlock()
	}
}

// PrimaryImageIndex returns the index, into TopLevelItemIDs, of the
// primary item.
func (s *Session) PrimaryImageIndex() (int, error) {
	for i, id := range s.model.TopLevel {
		if id == s.model.PrimaryItemID {
			return i, nil
		}
	}
	return 0, heiferr.New(heiferr.InvalidInput, heiferr.NoOrInvalidPrimaryImage,
		"primary item is hidden or does not exist among top-level items")
}

// ImageCount returns the number of top-level (non-thumbnail, non-auxiliary,
// non-hidden) images.
func (s *Session) ImageCount() int {
	return len(s.model.TopLevel)
}

// TopLevelItemIDs returns the ids of every top-level image, in file order.
func (s *Session) TopLevelItemIDs() []uint32 {
	out := make([]uint32, len(s.model.TopLevel))
	copy(out, s.model.TopLevel)
	return out
}

// ItemByID returns the interpreted Item for id.
func (s *Session) ItemByID(id uint32) (*Item, error) {
	it, ok := s.model.Item(id)
	if !ok {
		return nil, heiferr.Errorf(heiferr.UsageError, heiferr.NonexistingImageReferenced, "item %d does not exist", id)
	}
	return it, nil
}

// ImageData returns the ImageBundle for the top-level image at index.
func (s *Session) ImageData(index int) (*ImageBundle, error) {
	if index < 0 || index >= len(s.model.TopLevel) {
		return nil, heiferr.Errorf(heiferr.UsageError, heiferr.IndexOutOfRange, "image index %d out of range [0,%d)", index, len(s.model.TopLevel))
	}
	id := s.model.TopLevel[index]
	data, err := s.CompressedBytes(id)
	if err != nil {
		return nil, err
	}
	item, _ := s.model.Item(id)
	return &ImageBundle{
		ItemID:         id,
		Kind:           item.Type,
		Width:          item.Width,
		Height:         item.Height,
		CompressedData: data,
	}, nil
}

// CompressedBytes returns an item's compressed bitstream: HEVC parameter
// sets plus Annex-B-rewritten coded-slice NALs for hvc1 items, or the raw
// extent bytes for every other item type.
func (s *Session) CompressedBytes(id uint32) ([]byte, error) {
	s.lock()
	defer s.unlock()
	data, err := heifitem.CompressedBytes(s.model, s.ra, id)
	if err != nil {
		var he *heiferr.Error
		if errors.As(err, &he) && he.Subcode == heiferr.EndOfData {
			s.opts.logger.Printf("heifcore: reading item %d: %v", id, err)
		}
		return nil, err
	}
	return data, nil
}

// GridInfo parses a "grid" item's tile geometry.
func (s *Session) GridInfo(id uint32) (*GridInfo, error) {
	s.lock()
	defer s.unlock()
	return heifitem.GridInfo(s.model, s.ra, id)
}

// OverlayInfo parses an "iovl" item's composite geometry.
func (s *Session) OverlayInfo(id uint32) (*OverlayInfo, error) {
	s.lock()
	defer s.unlock()
	return heifitem.OverlayInfo(s.model, s.ra, id)
}

// ThumbnailsOf returns the item ids of id's thumbnails, if any.
func (s *Session) ThumbnailsOf(id uint32) []uint32 {
	it, ok := s.model.Item(id)
	if !ok {
		return nil
	}
	out := make([]uint32, len(it.Thumbnails))
	copy(out, it.Thumbnails)
	return out
}

// AlphaOf returns the item id of id's alpha auxiliary image, if any.
func (s *Session) AlphaOf(id uint32) (uint32, bool) {
	for _, it := range s.model.Items {
		if it.AlphaOf != nil && *it.AlphaOf == id {
			return it.ID, true
		}
	}
	return 0, false
}

// DepthOf returns the item id of id's depth auxiliary image, if any.
func (s *Session) DepthOf(id uint32) (uint32, bool) {
	for _, it := range s.model.Items {
		if it.DepthOf != nil && *it.DepthOf == id {
			return it.ID, true
		}
	}
	return 0, false
}

// DepthInfo returns the decoded depth-representation-info SEI payload
// attached to the depth auxiliary item id, if any.
func (s *Session) DepthInfo(id uint32) (*DepthRepresentationInfo, bool) {
	it, ok := s.model.Item(id)
	if !ok || it.DepthInfo == nil {
		return nil, false
	}
	return it.DepthInfo, true
}

// DebugDumpBoxes renders the top-level meta box tree, for inspection
// tooling (cmd/heifdump).
func (s *Session) DebugDumpBoxes() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ftyp major=%s compatible=%v\n", s.model.FileType.MajorBrand, s.model.FileType.Compatible)
	dumpChildren(&buf, s.model.Meta.Children, 0)
	return buf.String()
}

func dumpChildren(buf *bytes.Buffer, boxes []bmff.Box, depth int) {
	for _, b := range boxes {
		for i := 0; i < depth; i++ {
			buf.WriteString("  ")
		}
		fmt.Fprintf(buf, "%s (%d bytes)\n", b.Type(), b.Size())
		if mb, ok := mustParse(b).(*bmff.MetaBox); ok {
			dumpChildren(buf, mb.Children, depth+1)
		}
	}
}

func mustParse(b bmff.Box) bmff.Box {
	p, err := b.Parse()
	if err != nil {
		return b
	}
	return p
}

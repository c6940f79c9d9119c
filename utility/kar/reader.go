// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect. When the length of r is known, index
// entries are checked against it.
func Open(r io.ReaderAt) (*Archive, error) {
	prefix := make([]byte, MagicLength+HeaderSizeNumberLength)
	if num, err := r.ReadAt(prefix, 0); num < len(prefix) {
		if err == nil || err == io.EOF {
			err = ErrFileFormat
		}
		return nil, err
	}
	if !bytes.Equal(prefix[:MagicLength], magic[:]) {
		return nil, ErrFileFormat
	}

	headerSize, err := binaryToint64(prefix[MagicLength:])
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	length := archiveLength(r)
	if length >= 0 && headerSize > length-int64(len(prefix)) {
		return nil, errors.Wrapf(ErrFileFormat, "header of %d bytes", headerSize)
	}

	// bounded by what r actually holds
	headerBytes, err := io.ReadAll(io.NewSectionReader(r, int64(len(prefix)), headerSize))
	if err != nil {
		return nil, err
	}
	if int64(len(headerBytes)) < headerSize {
		return nil, ErrFileFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}

	dataStart := int64(len(prefix)) + headerSize
	index := make(map[string]IndexEntry, len(header.Index))
	for _, entry := range header.Index {
		if err := entry.check(length - dataStart); err != nil {
			return nil, err
		}
		index[entry.Name] = entry
	}

	return &Archive{
		reader:    r,
		header:    header,
		index:     index,
		dataStart: dataStart,
	}, nil
}

// archiveLength returns the length of r, -1 when r can't tell.
// bytes.Reader and io.SectionReader have Size, mmap.ReaderAt has Len.
func archiveLength(r io.ReaderAt) int64 {
	switch l := r.(type) {
	case interface{ Size() int64 }:
		return l.Size()
	case interface{ Len() int }:
		return int64(l.Len())
	}
	return -1
}

// check validates the entry against dataLength bytes of compressed
// data. A negative dataLength skips the bounds check.
func (e IndexEntry) check(dataLength int64) error {
	if e.Offset < 0 || e.Size < 0 || e.CompressedSize < 0 {
		return errors.Wrapf(ErrFileFormat, "entry %s has negative bounds", e.Name)
	}
	if dataLength >= 0 && (e.Offset > dataLength || e.CompressedSize > dataLength-e.Offset) {
		return errors.Wrapf(ErrFileFormat, "entry %s runs past the archive", e.Name)
	}
	return nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader    io.ReaderAt
	header    Header
	index     map[string]IndexEntry
	dataStart int64
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

// List returns the names of all files, sorted.
func (a *Archive) List() []string {
	names := make([]string, 0, len(a.header.Index))
	for _, entry := range a.header.Index {
		names = append(names, entry.Name)
	}
	return names
}

// Has reports whether the archive contains name.
func (a *Archive) Has(name string) bool {
	_, ok := a.index[name]
	return ok
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	// the stored size has to match what decompression produced
	data, err := io.ReadAll(io.LimitReader(f, f.Size()))
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", name)
	}
	if int64(len(data)) != f.Size() {
		return nil, errors.Wrapf(ErrFileFormat, "%s decompressed to %d of %d bytes", name, len(data), f.Size())
	}
	return data, nil
}

// Find returns the contents of name.
func (a *Archive) Find(name string) ([]byte, error) {
	return a.ReadAll(name)
}

// FindString returns the contents of name as a string.
func (a *Archive) FindString(name string) (string, error) {
	data, err := a.ReadAll(name)
	return string(data), err
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	entry, ok := a.index[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	section := io.NewSectionReader(a.reader, a.dataStart+entry.Offset, entry.CompressedSize)
	return &Reader{
		entry:  entry,
		reader: lz4.NewReader(section),
	}, nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

// Name returns the file name.
func (r *Reader) Name() string {
	return r.entry.Name
}

// Size returns the decompressed size.
func (r *Reader) Size() int64 {
	return r.entry.Size
}

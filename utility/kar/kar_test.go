// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/devblok/hellotriangle/utility/kar"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func build(t *testing.T) []byte {
	t.Helper()
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("test2", strings.NewReader(testString2)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test", strings.NewReader(testString1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("empty", strings.NewReader("")); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(build(t)))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("test")
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != int64(len(testString1)) {
		t.Errorf("size %d", f.Size())
	}

	result, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != testString1 {
		t.Error("test string does not match up")
	}
}

func TestCreateAndReadAll(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(build(t)))
	if err != nil {
		t.Fatal(err)
	}

	for name, expected := range map[string]string{"test": testString1, "test2": testString2, "empty": ""} {
		f, err := ar.ReadAll(name)
		if err != nil {
			t.Fatal(err)
		}
		if string(f) != expected {
			t.Errorf("%s: got %q", name, f)
		}
	}

	if got := ar.List(); strings.Join(got, ",") != "empty,test,test2" {
		t.Errorf("list %v", got)
	}
	if ar.Header().Author != "devblok" {
		t.Errorf("author %q", ar.Header().Author)
	}
	if !ar.Has("test2") || ar.Has("test3") {
		t.Error("Has is wrong")
	}
}

func TestNotFound(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(build(t)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Find("missing"); errors.Cause(err) != kar.ErrNotFound {
		t.Errorf("got %v", err)
	}
}

func TestOpenmmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	if err := os.WriteFile(path, build(t), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ar.FindString("test2")
	if err != nil {
		t.Fatal(err)
	}
	if s != testString2 {
		t.Errorf("got %q", s)
	}
}

// rewrite re-encodes the header of an archive built by build.
func rewrite(t *testing.T, data []byte, change func(*kar.Header)) []byte {
	t.Helper()
	prefix := kar.MagicLength + kar.HeaderSizeNumberLength
	headerSize := int(binary.LittleEndian.Uint64(data[kar.MagicLength:prefix]))

	var header kar.Header
	if err := gob.NewDecoder(bytes.NewReader(data[prefix : prefix+headerSize])).Decode(&header); err != nil {
		t.Fatal(err)
	}
	change(&header)

	var encoded bytes.Buffer
	if err := gob.NewEncoder(&encoded).Encode(header); err != nil {
		t.Fatal(err)
	}
	out := append([]byte(nil), data[:kar.MagicLength]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(encoded.Len()))
	out = append(out, encoded.Bytes()...)
	return append(out, data[prefix+headerSize:]...)
}

func entry(name string, change func(*kar.IndexEntry)) func(*kar.Header) {
	return func(h *kar.Header) {
		for i := range h.Index {
			if h.Index[i].Name == name {
				change(&h.Index[i])
			}
		}
	}
}

// readerAt hides the length of the wrapped reader.
type readerAt struct {
	io.ReaderAt
}

func TestOpenCorrupted(t *testing.T) {
	data := build(t)
	hugeHeader := binary.LittleEndian.AppendUint64([]byte("KAR\x00"), 1<<62)

	tests := map[string][]byte{
		"empty":       {},
		"magic":       append([]byte("TAR\x00"), data[4:]...),
		"truncated":   data[:20],
		"huge header": hugeHeader,
		"negative size": rewrite(t, data, entry("test", func(e *kar.IndexEntry) {
			e.Size = -1
		})),
		"negative offset": rewrite(t, data, entry("test", func(e *kar.IndexEntry) {
			e.Offset = -8
		})),
		"negative compressed size": rewrite(t, data, entry("test", func(e *kar.IndexEntry) {
			e.CompressedSize = -1
		})),
		"past the end": rewrite(t, data, entry("test2", func(e *kar.IndexEntry) {
			e.CompressedSize = 1 << 40
		})),
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := kar.Open(bytes.NewReader(input)); errors.Cause(err) != kar.ErrFileFormat {
				t.Errorf("got %v", err)
			}
		})
	}

	t.Run("huge header, unknown length", func(t *testing.T) {
		if _, err := kar.Open(readerAt{bytes.NewReader(hugeHeader)}); errors.Cause(err) != kar.ErrFileFormat {
			t.Errorf("got %v", err)
		}
	})
}

func TestReadAllSizeMismatch(t *testing.T) {
	data := rewrite(t, build(t), entry("test", func(e *kar.IndexEntry) {
		e.Size = 1 << 50
	}))
	ar, err := kar.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.ReadAll("test"); errors.Cause(err) != kar.ErrFileFormat {
		t.Errorf("got %v", err)
	}
	if s, err := ar.FindString("test2"); err != nil || s != testString2 {
		t.Errorf("got %q, %v", s, err)
	}
}

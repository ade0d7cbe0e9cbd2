// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Errors specific to heap decoding.
var (
	// ErrInvalidBlobLength is returned when a Blob/User-Strings heap entry's
	// variable-length prefix does not match any of the three encodings
	// §II.24.2.4 defines.
	ErrInvalidBlobLength = errors.New("invalid blob length prefix")

	// ErrInvalidEncoding is returned when a Strings heap entry is not valid
	// UTF-8, or a User-Strings heap entry is not valid UTF-16.
	ErrInvalidEncoding = errors.New("heap entry is not validly encoded")

	// ErrInvalidGUIDHeapSize is returned when the #GUID heap's length isn't
	// a multiple of 16 bytes.
	ErrInvalidGUIDHeapSize = errors.New("GUID heap size is not a multiple of 16")
)

// readBlobLength decodes the variable-length size prefix shared by the Blob
// and User-Strings heaps, §II.23.2/II.24.2.4: the top bits of the first byte
// select a 1-, 2- or 4-byte encoding of the length that follows.
func readBlobLength(data []byte) (length, prefixSize int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrInvalidBlobLength
	}

	b0 := data[0]
	switch {
	case b0&0x80 == 0:
		return int(b0 & 0x7f), 1, nil
	case b0&0xc0 == 0x80:
		if len(data) < 2 {
			return 0, 0, ErrInvalidBlobLength
		}
		return int(b0&0x3f)<<8 | int(data[1]), 2, nil
	case b0&0xe0 == 0xc0:
		if len(data) < 4 {
			return 0, 0, ErrInvalidBlobLength
		}
		return int(b0&0x1f)<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3]), 4, nil
	default:
		return 0, 0, ErrInvalidBlobLength
	}
}

// BlobHeap gives access to the #Blob stream: opaque byte strings addressed by
// a heap offset, each prefixed by its own variable-length size.
type BlobHeap struct {
	data []byte
}

// NewBlobHeap wraps a #Blob stream's raw bytes.
func NewBlobHeap(data []byte) BlobHeap {
	return BlobHeap{data: data}
}

// Blob returns the blob stored at the given heap offset, not including its
// length prefix.
func (h BlobHeap) Blob(offset uint32) ([]byte, error) {
	if offset >= uint32(len(h.data)) {
		return nil, ErrOutsideBoundary
	}
	length, prefixSize, err := readBlobLength(h.data[offset:])
	if err != nil {
		return nil, err
	}
	start := int(offset) + prefixSize
	end := start + length
	if end > len(h.data) {
		return nil, ErrOutsideBoundary
	}
	return h.data[start:end], nil
}

// StringsHeap gives access to the #Strings stream: a sequence of
// NUL-terminated, UTF-8 encoded strings.
type StringsHeap struct {
	data []byte
}

// NewStringsHeap wraps a #Strings stream's raw bytes.
func NewStringsHeap(data []byte) StringsHeap {
	return StringsHeap{data: data}
}

// String returns the NUL-terminated string stored at the given heap offset.
func (h StringsHeap) String(offset uint32) (string, error) {
	if offset >= uint32(len(h.data)) {
		return "", ErrOutsideBoundary
	}
	rest := h.data[offset:]
	n := 0
	for n < len(rest) && rest[n] != 0 {
		n++
	}
	if n == len(rest) {
		return "", ErrOutsideBoundary
	}
	s := rest[:n]
	if !utf8.Valid(s) {
		return "", ErrInvalidEncoding
	}
	return string(s), nil
}

// UserStringsHeap gives access to the #US stream: length-prefixed, UTF-16LE
// encoded strings, each followed by a single trailing byte flagging whether
// the string needs more than 8-bit handling, §II.24.2.4.
type UserStringsHeap struct {
	data []byte
}

// NewUserStringsHeap wraps a #US stream's raw bytes.
func NewUserStringsHeap(data []byte) UserStringsHeap {
	return UserStringsHeap{data: data}
}

// String decodes the user string stored at the given heap offset and
// reports whether its trailing safety byte is set.
func (h UserStringsHeap) String(offset uint32) (s string, unicodeFlag bool, err error) {
	if offset >= uint32(len(h.data)) {
		return "", false, ErrOutsideBoundary
	}
	length, prefixSize, err := readBlobLength(h.data[offset:])
	if err != nil {
		return "", false, err
	}
	start := int(offset) + prefixSize
	end := start + length
	if end > len(h.data) {
		return "", false, ErrOutsideBoundary
	}
	if length == 0 {
		return "", false, nil
	}

	blob := h.data[start:end]
	unicodeFlag = blob[length-1] != 0
	utf16bytes := blob[:length-1]

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(utf16bytes)
	if err != nil {
		return "", false, ErrInvalidEncoding
	}
	return string(decoded), unicodeFlag, nil
}

// GUID is a 16-byte record from the #GUID heap, laid out the way
// Windows/.NET format GUIDs: a 4-byte, a 2-byte and a 2-byte little-endian
// field followed by 8 raw bytes.
type GUID struct {
	Data0 uint32
	Data1 uint16
	Data2 uint16
	Data3 [8]byte
}

// String renders the GUID in its canonical braced hex form.
func (g GUID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		g.Data0, g.Data1, g.Data2,
		g.Data3[0], g.Data3[1], g.Data3[2], g.Data3[3],
		g.Data3[4], g.Data3[5], g.Data3[6], g.Data3[7])
}

// GUIDHeap gives access to the #GUID stream: a flat array of 16-byte GUID
// records, addressed by a 1-based index.
type GUIDHeap struct {
	guids []GUID
}

// NewGUIDHeap parses a #GUID stream's raw bytes into its fixed-size records.
func NewGUIDHeap(data []byte) (GUIDHeap, error) {
	if len(data)%16 != 0 {
		return GUIDHeap{}, ErrInvalidGUIDHeapSize
	}

	guids := make([]GUID, len(data)/16)
	for i := range guids {
		chunk := data[i*16 : i*16+16]
		guids[i] = GUID{
			Data0: binary.LittleEndian.Uint32(chunk[0:4]),
			Data1: binary.LittleEndian.Uint16(chunk[4:6]),
			Data2: binary.LittleEndian.Uint16(chunk[6:8]),
		}
		copy(guids[i].Data3[:], chunk[8:16])
	}
	return GUIDHeap{guids: guids}, nil
}

// GUID returns the 1-based indexed GUID record, per the coded-index
// convention the Tables Header uses for heap indices.
func (h GUIDHeap) GUID(index uint32) (GUID, error) {
	if index == 0 || int(index) > len(h.guids) {
		return GUID{}, ErrOutsideBoundary
	}
	return h.guids[index-1], nil
}

// Heaps bundles the four decoded heaps reachable from a parsed CLR
// metadata root.
type Heaps struct {
	Strings     StringsHeap
	UserStrings UserStringsHeap
	Blob        BlobHeap
	GUID        GUIDHeap
}

// ParseHeaps builds the four heap decoders from the raw stream bytes
// already captured in CLRData.MetadataStreams.
func (pe *File) ParseHeaps() (Heaps, error) {
	guids, err := NewGUIDHeap(pe.CLR.MetadataStreams["#GUID"])
	if err != nil {
		return Heaps{}, err
	}
	return Heaps{
		Strings:     NewStringsHeap(pe.CLR.MetadataStreams["#Strings"]),
		UserStrings: NewUserStringsHeap(pe.CLR.MetadataStreams["#US"]),
		Blob:        NewBlobHeap(pe.CLR.MetadataStreams["#Blob"]),
		GUID:        guids,
	}, nil
}

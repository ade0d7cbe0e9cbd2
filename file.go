// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/saferwall/clrmeta/internal/log"
)

// A File represents a parsed ECMA-335 CLI image: the PE/COFF container plus
// everything reachable from its CLR runtime header.
type File struct {
	DOSHeader ImageDOSHeader `json:"dos_header,omitempty"`
	NtHeader  ImageNtHeader  `json:"nt_header,omitempty"`
	Sections  []Section      `json:"sections,omitempty"`
	CLR       CLRData        `json:"clr,omitempty"`
	Anomalies []string       `json:"anomalies,omitempty"`
	Header    []byte
	data      mmap.MMap
	FileInfo
	size          uint32
	OverlayOffset int64
	f             *os.File
	opts          *Options
	logger        *log.Helper
}

// Options for Parsing.
type Options struct {

	// Parse only the DOS/NT headers and the section table; skip the CLR
	// directory entirely, by default (false).
	Fast bool

	// A custom logger.
	Logger log.Logger
}

// New instantiates a file instance with options given a file name.
func New(name string, opts *Options) (*File, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	// Memory map the file instead of using read/write so that every parsed
	// view (heap slices, IL bytes) can borrow directly from the mapped pages.
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}
	file.logger = newHelper(file.opts.Logger)

	file.data = data
	file.size = uint32(len(file.data))
	file.f = f
	return &file, nil
}

// NewBytes instantiates a file instance with options given a memory buffer.
func NewBytes(data []byte, opts *Options) (*File, error) {

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}
	file.logger = newHelper(file.opts.Logger)

	file.data = data
	file.size = uint32(len(file.data))
	return &file, nil
}

func newHelper(custom log.Logger) *log.Helper {
	if custom != nil {
		return log.NewHelper(custom)
	}
	return log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stdout),
		log.FilterLevel(log.LevelError)))
}

// Close closes the File.
func (pe *File) Close() error {
	if pe.data != nil {
		_ = pe.data.Unmap()
	}

	if pe.f != nil {
		return pe.f.Close()
	}
	return nil
}

// Parse performs the file parsing for an ECMA-335 CLI image: DOS header, NT
// header, section table and, unless Fast is set, the CLR directory and
// everything reachable from it (metadata root, heaps, tables). The
// entry-point method body is not read here; EntryPointMethodBody reads it on
// demand.
func (pe *File) Parse() error {

	if len(pe.data) < TinyPESize {
		return ErrInvalidPESize
	}

	if err := pe.ParseDOSHeader(); err != nil {
		return err
	}

	if err := pe.ParseNTHeader(); err != nil {
		return err
	}

	if err := pe.ParseSectionHeader(); err != nil {
		return err
	}

	if err := pe.GetAnomalies(); err != nil {
		return err
	}

	if pe.opts.Fast {
		return nil
	}

	return pe.ParseCLR()
}

// ParseCLR locates the CLR directory entry in the optional header's data
// directories and parses the CLI runtime header and everything reachable
// from it. It is the only data directory this decoder understands; every
// other PE directory (imports, exports, resources, relocations, ...) is
// outside this module's scope.
func (pe *File) ParseCLR() error {

	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	switch pe.Is64 {
	case true:
		oh64 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
	case false:
		oh32 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	}

	var va, size uint32
	switch pe.Is64 {
	case true:
		dirEntry := oh64.DataDirectory[ImageDirectoryEntryCLR]
		va, size = dirEntry.VirtualAddress, dirEntry.Size
	case false:
		dirEntry := oh32.DataDirectory[ImageDirectoryEntryCLR]
		va, size = dirEntry.VirtualAddress, dirEntry.Size
	}

	if va == 0 {
		return nil
	}

	return pe.parseCLRHeaderDirectory(va, size)
}

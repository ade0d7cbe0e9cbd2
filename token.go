// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "errors"

// Errors specific to token resolution and method body extraction.
var (
	// ErrUnknownMetadataTable is returned when a token's table id does not
	// name one of the 45 logical tables, §II.22.
	ErrUnknownMetadataTable = errors.New("metadata token names an unknown table")

	// ErrTokenRowOutOfRange is returned when a token's row index falls
	// outside the table's row count.
	ErrTokenRowOutOfRange = errors.New("metadata token row index is out of range")

	// ErrUnsupportedEntryPoint is returned when the CLR header's entry point
	// token does not name a MethodDef row.
	ErrUnsupportedEntryPoint = errors.New("unsupported entry point type")

	// ErrInvalidMethodHeader is returned when a method body's leading byte's
	// low two bits name neither the tiny nor the fat format, §II.25.4.
	ErrInvalidMethodHeader = errors.New("invalid IL method header")
)

// MetadataToken is a 4-byte value that names one row of one logical
// metadata table: the high byte selects the table, the low three bytes are
// the 1-based row number, §II.22.
type MetadataToken uint32

// TableIndex returns the table id this token names.
func (t MetadataToken) TableIndex() int {
	return int(t >> 24)
}

// RowIndex returns the 0-based index of the row this token names within its
// table.
func (t MetadataToken) RowIndex() uint32 {
	return (uint32(t) & 0xFFFFFF) - 1
}

// DecodeToken validates that raw names a known table, in range for the
// number of rows CLRData recorded for that table.
func (pe *File) DecodeToken(raw uint32) (MetadataToken, error) {
	tok := MetadataToken(raw)
	idx := tok.TableIndex()
	if idx < 0 || idx >= maxTableKind {
		return 0, ErrUnknownMetadataTable
	}
	if tok.RowIndex() >= pe.CLR.TableRowCounts[idx] {
		return 0, ErrTokenRowOutOfRange
	}
	return tok, nil
}

// MethodHeaderKind distinguishes the two IL method header encodings,
// §II.25.4.
type MethodHeaderKind int

const (
	// TinyMethodHeader is CorILMethod_TinyFormat: a single header byte whose
	// top six bits are the method body's size.
	TinyMethodHeader MethodHeaderKind = iota
	// FatMethodHeader is CorILMethod_FatFormat: a 12-byte header carrying
	// flags, max stack depth, code size and a local variable signature
	// token.
	FatMethodHeader
)

// corILMethodFatFormat and corILMethodTinyFormat are the low-nibble/low-bits
// discriminators of the method header's first byte, §II.25.4.2/.3.
const (
	corILMethodTinyFormat = 0x2
	corILMethodFatFormat  = 0x3
	corILMethodFormatMask = 0x3

	// corILMethodMoreSects marks that one or more data sections (exception
	// handlers) follow the method body. Recognized but not walked: IL body
	// extraction only, no exception-table decoding.
	corILMethodMoreSects = 0x8
	corILMethodInitLocals = 0x10
)

// MethodBody is the decoded header and raw IL bytes of one method, located
// by RVA from a MethodDef row.
type MethodBody struct {
	Kind MethodHeaderKind

	// Fat-header-only fields; zero for tiny methods.
	Flags          uint16
	MaxStack       uint16
	LocalVarSigTok uint32
	MoreSects      bool

	// Code is the method's raw IL byte stream, exactly as many bytes as the
	// header's code size declares.
	Code []byte
}

// ReadMethodBody reads and decodes a method's header and IL bytes given the
// method's starting RVA (MethodDefTableRow.RVA).
func (pe *File) ReadMethodBody(rva uint32) (MethodBody, error) {
	off := pe.GetOffsetFromRva(rva)
	b, err := pe.ReadUint8(off)
	if err != nil {
		return MethodBody{}, err
	}

	switch b & corILMethodFormatMask {
	case corILMethodTinyFormat:
		size := uint32(b >> 2)
		code, err := pe.ReadBytesAtOffset(off+1, size)
		if err != nil {
			return MethodBody{}, err
		}
		return MethodBody{Kind: TinyMethodHeader, Code: code}, nil

	case corILMethodFatFormat:
		return pe.readFatMethodBody(off)

	default:
		return MethodBody{}, ErrInvalidMethodHeader
	}
}

// readFatMethodBody decodes the 12-byte CorILMethod_FatFormat header
// (Flags:u16, MaxStack:u16, CodeSize:u32, LocalVarSigTok:u32) and reads the
// code bytes that follow it.
func (pe *File) readFatMethodBody(off uint32) (MethodBody, error) {
	flags, err := pe.ReadUint16(off)
	if err != nil {
		return MethodBody{}, err
	}
	// The low nibble of the first flags byte repeats the format discriminator
	// and the header-size-in-dwords; only the format bits are checked here.
	if flags&corILMethodFormatMask != corILMethodFatFormat {
		return MethodBody{}, ErrInvalidMethodHeader
	}

	maxStack, err := pe.ReadUint16(off + 2)
	if err != nil {
		return MethodBody{}, err
	}
	codeSize, err := pe.ReadUint32(off + 4)
	if err != nil {
		return MethodBody{}, err
	}
	localVarSigTok, err := pe.ReadUint32(off + 8)
	if err != nil {
		return MethodBody{}, err
	}

	code, err := pe.ReadBytesAtOffset(off+12, codeSize)
	if err != nil {
		return MethodBody{}, err
	}

	return MethodBody{
		Kind:           FatMethodHeader,
		Flags:          flags,
		MaxStack:       maxStack,
		LocalVarSigTok: localVarSigTok,
		MoreSects:      flags&corILMethodMoreSects != 0,
		Code:           code,
	}, nil
}

// EntryPointMethodBody resolves the CLR header's entry point token to its
// MethodDef row and reads that method's IL body. A token naming any other
// table is rejected with ErrUnsupportedEntryPoint. Native entry points
// (COMImageFlagsNativeEntrypoint) are not checked here: parsing the CLR
// header already rejects them with ErrCLRInvalidFlags.
func (pe *File) EntryPointMethodBody() (MethodBody, error) {
	tok, err := pe.DecodeToken(pe.CLR.CLRHeader.EntryPointRVAorToken)
	if err != nil {
		return MethodBody{}, err
	}
	if tok.TableIndex() != MethodDef {
		return MethodBody{}, ErrUnsupportedEntryPoint
	}

	rows, ok := pe.CLR.Tables[MethodDef].([]MethodDefTableRow)
	if !ok || int(tok.RowIndex()) >= len(rows) {
		return MethodBody{}, ErrTokenRowOutOfRange
	}

	return pe.ReadMethodBody(rows[tok.RowIndex()].RVA)
}

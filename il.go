// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

// III.1.2: every one-byte IL opcode and the operand it carries.

// OperandKind identifies the shape of the operand bytes that immediately
// follow an IL opcode.
type OperandKind int

// Operand kinds, per the format each opcode's trailing bytes take.
const (
	OperandNone OperandKind = iota
	OperandU8
	OperandU16
	OperandI32
	OperandI64
	OperandF32
	OperandF64
	// ShortBranchTarget is a signed 1-byte offset from the next instruction.
	OperandShortBranchTarget
	// BranchTarget is a signed 4-byte offset from the next instruction.
	OperandBranchTarget
	// Token is a 4-byte metadata token.
	OperandToken
)

// Width returns the number of bytes the operand occupies, not including the
// opcode byte itself.
func (k OperandKind) Width() int {
	switch k {
	case OperandNone:
		return 0
	case OperandU8, OperandShortBranchTarget:
		return 1
	case OperandU16:
		return 2
	case OperandI32, OperandF32, OperandBranchTarget, OperandToken:
		return 4
	case OperandI64, OperandF64:
		return 8
	}
	return 0
}

// OpcodeInfo describes a single one-byte IL opcode.
type OpcodeInfo struct {
	Mnemonic string
	Operand  OperandKind
}

// TwoByteOpcodePrefix marks the start of the two-byte instruction set; this
// decoder recognizes it but does not decode what follows it (spec scope is
// the entry-point method body's one-byte opcodes only).
const TwoByteOpcodePrefix = 0xFE

// Opcodes is indexed by the raw opcode byte. Entries this table doesn't
// populate (the gaps in the ECMA-335 encoding space) carry a zero value;
// ErrInvalidMethodHeader-adjacent callers should treat an empty Mnemonic as
// an unrecognized opcode.
var Opcodes = [256]OpcodeInfo{
	0x00: {Mnemonic: "nop", Operand: OperandNone},
	0x01: {Mnemonic: "break", Operand: OperandNone},
	0x02: {Mnemonic: "ldarg.0", Operand: OperandNone},
	0x03: {Mnemonic: "ldarg.1", Operand: OperandNone},
	0x04: {Mnemonic: "ldarg.2", Operand: OperandNone},
	0x05: {Mnemonic: "ldarg.3", Operand: OperandNone},
	0x06: {Mnemonic: "ldloc.0", Operand: OperandNone},
	0x07: {Mnemonic: "ldloc.1", Operand: OperandNone},
	0x08: {Mnemonic: "ldloc.2", Operand: OperandNone},
	0x09: {Mnemonic: "ldloc.3", Operand: OperandNone},
	0x0A: {Mnemonic: "stloc.0", Operand: OperandNone},
	0x0B: {Mnemonic: "stloc.1", Operand: OperandNone},
	0x0C: {Mnemonic: "stloc.2", Operand: OperandNone},
	0x0D: {Mnemonic: "stloc.3", Operand: OperandNone},
	0x0E: {Mnemonic: "ldarg.s", Operand: OperandU8},
	0x0F: {Mnemonic: "ldarga.s", Operand: OperandU8},
	0x10: {Mnemonic: "starg.s", Operand: OperandU8},
	0x11: {Mnemonic: "ldloc.s", Operand: OperandU8},
	0x12: {Mnemonic: "ldloca.s", Operand: OperandU8},
	0x13: {Mnemonic: "stloc.s", Operand: OperandU8},
	0x14: {Mnemonic: "ldnull", Operand: OperandNone},
	0x15: {Mnemonic: "ldc.i4.m1", Operand: OperandNone},
	0x16: {Mnemonic: "ldc.i4.0", Operand: OperandNone},
	0x17: {Mnemonic: "ldc.i4.1", Operand: OperandNone},
	0x18: {Mnemonic: "ldc.i4.2", Operand: OperandNone},
	0x19: {Mnemonic: "ldc.i4.3", Operand: OperandNone},
	0x1A: {Mnemonic: "ldc.i4.4", Operand: OperandNone},
	0x1B: {Mnemonic: "ldc.i4.5", Operand: OperandNone},
	0x1C: {Mnemonic: "ldc.i4.6", Operand: OperandNone},
	0x1D: {Mnemonic: "ldc.i4.7", Operand: OperandNone},
	0x1E: {Mnemonic: "ldc.i4.8", Operand: OperandNone},
	0x1F: {Mnemonic: "ldc.i4.s", Operand: OperandI32},
	0x20: {Mnemonic: "ldc.i4", Operand: OperandI32},
	0x21: {Mnemonic: "ldc.i8", Operand: OperandI64},
	0x22: {Mnemonic: "ldc.r4", Operand: OperandF32},
	0x23: {Mnemonic: "ldc.r8", Operand: OperandF64},
	0x25: {Mnemonic: "dup", Operand: OperandNone},
	0x26: {Mnemonic: "pop", Operand: OperandNone},
	0x27: {Mnemonic: "jmp", Operand: OperandToken},
	0x28: {Mnemonic: "call", Operand: OperandToken},
	0x29: {Mnemonic: "calli", Operand: OperandToken},
	0x2A: {Mnemonic: "ret", Operand: OperandNone},
	0x2B: {Mnemonic: "br.s", Operand: OperandShortBranchTarget},
	0x2C: {Mnemonic: "brfalse.s", Operand: OperandShortBranchTarget},
	0x2D: {Mnemonic: "brtrue.s", Operand: OperandShortBranchTarget},
	0x2E: {Mnemonic: "beq.s", Operand: OperandShortBranchTarget},
	0x2F: {Mnemonic: "bge.s", Operand: OperandShortBranchTarget},
	0x30: {Mnemonic: "bgt.s", Operand: OperandShortBranchTarget},
	0x31: {Mnemonic: "ble.s", Operand: OperandShortBranchTarget},
	0x32: {Mnemonic: "blt.s", Operand: OperandShortBranchTarget},
	0x33: {Mnemonic: "bne.un.s", Operand: OperandShortBranchTarget},
	0x34: {Mnemonic: "bge.un.s", Operand: OperandShortBranchTarget},
	0x35: {Mnemonic: "bgt.un.s", Operand: OperandShortBranchTarget},
	0x36: {Mnemonic: "ble.un.s", Operand: OperandShortBranchTarget},
	0x37: {Mnemonic: "blt.un.s", Operand: OperandShortBranchTarget},
	0x38: {Mnemonic: "br", Operand: OperandBranchTarget},
	0x39: {Mnemonic: "brfalse", Operand: OperandBranchTarget},
	0x3A: {Mnemonic: "brtrue", Operand: OperandBranchTarget},
	0x3B: {Mnemonic: "beq", Operand: OperandBranchTarget},
	0x3C: {Mnemonic: "bge", Operand: OperandBranchTarget},
	0x3D: {Mnemonic: "bgt", Operand: OperandBranchTarget},
	0x3E: {Mnemonic: "ble", Operand: OperandBranchTarget},
	0x3F: {Mnemonic: "blt", Operand: OperandBranchTarget},
	0x40: {Mnemonic: "bne.un", Operand: OperandBranchTarget},
	0x41: {Mnemonic: "bge.un", Operand: OperandBranchTarget},
	0x42: {Mnemonic: "bgt.un", Operand: OperandBranchTarget},
	0x43: {Mnemonic: "ble.un", Operand: OperandBranchTarget},
	0x44: {Mnemonic: "blt.un", Operand: OperandBranchTarget},
	0x45: {Mnemonic: "switch", Operand: OperandNone},
	0x46: {Mnemonic: "ldind.i1", Operand: OperandNone},
	0x47: {Mnemonic: "ldind.u1", Operand: OperandNone},
	0x48: {Mnemonic: "ldind.i2", Operand: OperandNone},
	0x49: {Mnemonic: "ldind.u2", Operand: OperandNone},
	0x4A: {Mnemonic: "ldind.i4", Operand: OperandNone},
	0x4B: {Mnemonic: "ldind.u4", Operand: OperandNone},
	0x4C: {Mnemonic: "ldind.i8", Operand: OperandNone},
	0x4D: {Mnemonic: "ldind.i", Operand: OperandNone},
	0x4E: {Mnemonic: "ldind.r4", Operand: OperandNone},
	0x4F: {Mnemonic: "ldind.r8", Operand: OperandNone},
	0x50: {Mnemonic: "ldind.ref", Operand: OperandNone},
	0x51: {Mnemonic: "stind.ref", Operand: OperandNone},
	0x52: {Mnemonic: "stind.i1", Operand: OperandNone},
	0x53: {Mnemonic: "stind.i2", Operand: OperandNone},
	0x54: {Mnemonic: "stind.i4", Operand: OperandNone},
	0x55: {Mnemonic: "stind.i8", Operand: OperandNone},
	0x56: {Mnemonic: "stind.r4", Operand: OperandNone},
	0x57: {Mnemonic: "stind.r8", Operand: OperandNone},
	0x58: {Mnemonic: "add", Operand: OperandNone},
	0x59: {Mnemonic: "sub", Operand: OperandNone},
	0x5A: {Mnemonic: "mul", Operand: OperandNone},
	0x5B: {Mnemonic: "div", Operand: OperandNone},
	0x5C: {Mnemonic: "div.un", Operand: OperandNone},
	0x5D: {Mnemonic: "rem", Operand: OperandNone},
	0x5E: {Mnemonic: "rem.un", Operand: OperandNone},
	0x5F: {Mnemonic: "and", Operand: OperandNone},
	0x60: {Mnemonic: "or", Operand: OperandNone},
	0x61: {Mnemonic: "xor", Operand: OperandNone},
	0x62: {Mnemonic: "shl", Operand: OperandNone},
	0x63: {Mnemonic: "shr", Operand: OperandNone},
	0x64: {Mnemonic: "shr.un", Operand: OperandNone},
	0x65: {Mnemonic: "neg", Operand: OperandNone},
	0x66: {Mnemonic: "not", Operand: OperandNone},
	0x67: {Mnemonic: "conv.i1", Operand: OperandNone},
	0x68: {Mnemonic: "conv.i2", Operand: OperandNone},
	0x69: {Mnemonic: "conv.i4", Operand: OperandNone},
	0x6A: {Mnemonic: "conv.i8", Operand: OperandNone},
	0x6B: {Mnemonic: "conv.r4", Operand: OperandNone},
	0x6C: {Mnemonic: "conv.r8", Operand: OperandNone},
	0x6D: {Mnemonic: "conv.u4", Operand: OperandNone},
	0x6E: {Mnemonic: "conv.u8", Operand: OperandNone},
	0x6F: {Mnemonic: "callvirt", Operand: OperandToken},
	0x70: {Mnemonic: "cpobj", Operand: OperandToken},
	0x71: {Mnemonic: "ldobj", Operand: OperandToken},
	0x72: {Mnemonic: "ldstr", Operand: OperandToken},
	0x73: {Mnemonic: "newobj", Operand: OperandToken},
	0x74: {Mnemonic: "castclass", Operand: OperandToken},
	0x75: {Mnemonic: "isinst", Operand: OperandToken},
	0x76: {Mnemonic: "conv.r.un", Operand: OperandNone},
	0x79: {Mnemonic: "unbox", Operand: OperandToken},
	0x7A: {Mnemonic: "throw", Operand: OperandNone},
	0x7B: {Mnemonic: "ldfld", Operand: OperandToken},
	0x7C: {Mnemonic: "ldflda", Operand: OperandToken},
	0x7D: {Mnemonic: "stfld", Operand: OperandToken},
	0x7E: {Mnemonic: "ldsfld", Operand: OperandToken},
	0x7F: {Mnemonic: "ldsflda", Operand: OperandToken},
	0x80: {Mnemonic: "stsfld", Operand: OperandToken},
	0x81: {Mnemonic: "stobj", Operand: OperandToken},
	0x82: {Mnemonic: "conv.ovf.i1.un", Operand: OperandNone},
	0x83: {Mnemonic: "conv.ovf.i2.un", Operand: OperandNone},
	0x84: {Mnemonic: "conv.ovf.i4.un", Operand: OperandNone},
	0x85: {Mnemonic: "conv.ovf.i8.un", Operand: OperandNone},
	0x86: {Mnemonic: "conv.ovf.u1.un", Operand: OperandNone},
	0x87: {Mnemonic: "conv.ovf.u2.un", Operand: OperandNone},
	0x88: {Mnemonic: "conv.ovf.u4.un", Operand: OperandNone},
	0x89: {Mnemonic: "conv.ovf.u8.un", Operand: OperandNone},
	0x8A: {Mnemonic: "conv.ovf.i.un", Operand: OperandNone},
	0x8B: {Mnemonic: "conv.ovf.u.un", Operand: OperandNone},
	0x8C: {Mnemonic: "box", Operand: OperandToken},
	0x8D: {Mnemonic: "newarr", Operand: OperandToken},
	0x8E: {Mnemonic: "ldlen", Operand: OperandNone},
	0x8F: {Mnemonic: "ldelema", Operand: OperandToken},
	0x90: {Mnemonic: "ldelem.i1", Operand: OperandNone},
	0x91: {Mnemonic: "ldelem.u1", Operand: OperandNone},
	0x92: {Mnemonic: "ldelem.i2", Operand: OperandNone},
	0x93: {Mnemonic: "ldelem.u2", Operand: OperandNone},
	0x94: {Mnemonic: "ldelem.i4", Operand: OperandNone},
	0x95: {Mnemonic: "ldelem.u4", Operand: OperandNone},
	0x96: {Mnemonic: "ldelem.i8", Operand: OperandNone},
	0x97: {Mnemonic: "ldelem.i", Operand: OperandNone},
	0x98: {Mnemonic: "ldelem.r4", Operand: OperandNone},
	0x99: {Mnemonic: "ldelem.r8", Operand: OperandNone},
	0x9A: {Mnemonic: "ldelem.ref", Operand: OperandNone},
	0x9B: {Mnemonic: "stelem.i", Operand: OperandNone},
	0x9C: {Mnemonic: "stelem.i1", Operand: OperandNone},
	0x9D: {Mnemonic: "stelem.i2", Operand: OperandNone},
	0x9E: {Mnemonic: "stelem.i4", Operand: OperandNone},
	0x9F: {Mnemonic: "stelem.i8", Operand: OperandNone},
	0xA0: {Mnemonic: "stelem.r4", Operand: OperandNone},
	0xA1: {Mnemonic: "stelem.r8", Operand: OperandNone},
	0xA2: {Mnemonic: "stelem.ref", Operand: OperandNone},
	0xA3: {Mnemonic: "ldelem", Operand: OperandToken},
	0xA4: {Mnemonic: "stelem", Operand: OperandToken},
	0xA5: {Mnemonic: "unbox.any", Operand: OperandToken},
	0xB3: {Mnemonic: "conv.ovf.i1", Operand: OperandNone},
	0xB4: {Mnemonic: "conv.ovf.u1", Operand: OperandNone},
	0xB5: {Mnemonic: "conv.ovf.i2", Operand: OperandNone},
	0xB6: {Mnemonic: "conv.ovf.u2", Operand: OperandNone},
	0xB7: {Mnemonic: "conv.ovf.i4", Operand: OperandNone},
	0xB8: {Mnemonic: "conv.ovf.u4", Operand: OperandNone},
	0xB9: {Mnemonic: "conv.ovf.i8", Operand: OperandNone},
	0xBA: {Mnemonic: "conv.ovf.u8", Operand: OperandNone},
	0xC2: {Mnemonic: "refanyval", Operand: OperandToken},
	0xC3: {Mnemonic: "ckfinite", Operand: OperandNone},
	0xC6: {Mnemonic: "mkrefany", Operand: OperandToken},
	0xD0: {Mnemonic: "ldtoken", Operand: OperandToken},
	0xD1: {Mnemonic: "conv.u2", Operand: OperandNone},
	0xD2: {Mnemonic: "conv.u1", Operand: OperandNone},
	0xD3: {Mnemonic: "conv.i", Operand: OperandNone},
	0xD4: {Mnemonic: "conv.ovf.i", Operand: OperandNone},
	0xD5: {Mnemonic: "conv.ovf.u", Operand: OperandNone},
	0xD6: {Mnemonic: "add.ovf", Operand: OperandNone},
	0xD7: {Mnemonic: "add.ovf.un", Operand: OperandNone},
	0xD8: {Mnemonic: "mul.ovf", Operand: OperandNone},
	0xD9: {Mnemonic: "mul.ovf.un", Operand: OperandNone},
	0xDA: {Mnemonic: "sub.ovf", Operand: OperandNone},
	0xDB: {Mnemonic: "sub.ovf.un", Operand: OperandNone},
	0xDC: {Mnemonic: "endfinally", Operand: OperandNone},
	0xDD: {Mnemonic: "leave", Operand: OperandI32},
	0xDE: {Mnemonic: "leave.s", Operand: OperandU8},
	0xDF: {Mnemonic: "stind.i", Operand: OperandNone},
	0xE0: {Mnemonic: "conv.u", Operand: OperandNone},}

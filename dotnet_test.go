// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"reflect"
	"sort"
	"strconv"
	"testing"
)

func TestClrDirectoryHeaders(t *testing.T) {

	type TestClrHeaders struct {
		clrHeader            ImageCOR20Header
		mdHeader             MetadataHeader
		mdStreamHeaders      []MetadataStreamHeader
		mdTablesStreamHeader MetadataTableStreamHeader
	}

	tests := []struct {
		in  string
		out TestClrHeaders
	}{
		{
			getAbsoluteFilePath("test/mscorlib.dll"),
			TestClrHeaders{
				clrHeader: ImageCOR20Header{
					Cb:                  0x48,
					MajorRuntimeVersion: 0x2,
					MinorRuntimeVersion: 0x5,
					MetaData: ImageDataDirectory{
						VirtualAddress: 0x2050,
						Size:           0xae34,
					},
					Flags:                0x9,
					EntryPointRVAorToken: 0x0,
					StrongNameSignature: ImageDataDirectory{
						VirtualAddress: 0xce84,
						Size:           0x80,
					},
				},
				mdHeader: MetadataHeader{
					Signature:     0x424a5342,
					MajorVersion:  0x1,
					MinorVersion:  0x1,
					ExtraData:     0x0,
					VersionString: 0xc,
					Version:       "v4.0.30319",
					Flags:         0x0,
					Streams:       0x5,
				},
				mdStreamHeaders: []MetadataStreamHeader{
					{
						Offset: 0x6c,
						Size:   0x4c38,
						Name:   "#~",
					},
					{
						Offset: 0x4ca4,
						Size:   0x5ed4,
						Name:   "#Strings",
					},
					{
						Offset: 0xab78,
						Size:   0x4,
						Name:   "#US",
					},
					{
						Offset: 0xab7c,
						Size:   0x10,
						Name:   "#GUID",
					},
					{
						Offset: 0xab8c,
						Size:   0x2a8,
						Name:   "#Blob",
					},
				},
				mdTablesStreamHeader: MetadataTableStreamHeader{
					Reserved:     0x0,
					MajorVersion: 0x2,
					MinorVersion: 0x0,
					Heaps:        0x0,
					RID:          0x1,
					MaskValid:    0x8900005407,
					Sorted:       0x16003301fa00,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ops := Options{Fast: true}
			file, err := New(tt.in, &ops)
			if err != nil {
				t.Fatalf("New(%s) failed, reason: %v", tt.in, err)
			}

			err = file.Parse()
			if err != nil {
				t.Fatalf("Parse(%s) failed, reason: %v", tt.in, err)
			}

			var va, size uint32
			switch file.Is64 {
			case true:
				oh64 := file.NtHeader.OptionalHeader.(ImageOptionalHeader64)
				dirEntry := oh64.DataDirectory[ImageDirectoryEntryCLR]
				va = dirEntry.VirtualAddress
				size = dirEntry.Size
			case false:
				oh32 := file.NtHeader.OptionalHeader.(ImageOptionalHeader32)
				dirEntry := oh32.DataDirectory[ImageDirectoryEntryCLR]
				va = dirEntry.VirtualAddress
				size = dirEntry.Size
			}

			err = file.parseCLRHeaderDirectory(va, size)
			if err != nil {
				t.Fatalf("parseCLRHeaderDirectory(%s) failed, reason: %v", tt.in, err)
			}
			clr := file.CLR
			if clr.CLRHeader != tt.out.clrHeader {
				t.Errorf("CLR header assertion failed, got %v, want %v",
					clr.CLRHeader, tt.out.clrHeader)
			}

			if clr.MetadataHeader != tt.out.mdHeader {
				t.Errorf("CLR metadata header assertion failed, got %v, want %v",
					clr.MetadataHeader, tt.out.mdHeader)
			}

			if !reflect.DeepEqual(clr.MetadataStreamHeaders, tt.out.mdStreamHeaders) {
				t.Errorf("CLR metadata stream headers assertion failed, got %v, want %v",
					clr.MetadataStreamHeaders, tt.out.mdStreamHeaders)
			}
		})
	}
}

func TestClrDirectoryMetadataTables(t *testing.T) {

	type TestClrMetadataTable struct {
		tableKind int
		countCols uint32
		content   interface{}
	}

	tests := []struct {
		in  string
		out []TestClrMetadataTable
	}{
		{
			getAbsoluteFilePath("test/mscorlib.dll"),
			[]TestClrMetadataTable{
				{
					tableKind: Module,
					countCols: 0x1,
					content:   []ModuleTableRow{
							{
								Generation: 0x0,
								Name:       0x2cd7,
								Mvid:       0x1,
								EncID:      0x0,
								EncBaseID:  0x0,
							},
					},
				},

				{
					tableKind: TypeRef,
					countCols: 19,
					content:   []TypeRefTableRow{
							{
								ResolutionScope: 0x6,
								TypeName:        0x22bd,
								TypeNamespace:   0x4d80,
							},
					},
				},

				{
					tableKind: MemberRef,
					countCols: 17,
					content:   []MemberRefTableRow{
							{
								Class:     0x9,
								Name:      0x4c76,
								Signature: 0x1,
							},
					},
				},

				{
					tableKind: CustomAttribute,
					countCols: 19,
					content:   []CustomAttributeTableRow{
							{
								Parent: 0x27,
								Type:   0x83,
								Value:  0x2a1,
							},
					},
				},

				{
					tableKind: DeclSecurity,
					countCols: 1,
					content:   []DeclSecurityTableRow{
							{
								Action:        0x8,
								Parent:        0x6,
								PermissionSet: 0x52,
							},
					},
				},

				{
					tableKind: Assembly,
					countCols: 1,
					content:   []AssemblyTableRow{
							{
								HashAlgId:      0x8004,
								MajorVersion:   0x4,
								MinorVersion:   0x0,
								BuildNumber:    0x0,
								RevisionNumber: 0x0,
								Flags:          0x1,
								PublicKey:      0x41,
								Name:           0x704,
								Culture:        0x0,
							},
					},
				},

				{
					tableKind: AssemblyRef,
					countCols: 30,
					content:   []AssemblyRefTableRow{
							{
								MajorVersion:     0x0,
								MinorVersion:     0x0,
								BuildNumber:      0x0,
								RevisionNumber:   0x0,
								Flags:            0x0,
								PublicKeyOrToken: 0x26,
								Name:             0x6ed,
								Culture:          0x0,
								HashValue:        0x0,
							},
					},
				},

				{
					tableKind: ExportedType,
					countCols: 1319,
					content:   []ExportedTypeTableRow{
							{
								Flags:          0x200000,
								TypeDefId:      0x0,
								TypeName:       0x5d85,
								TypeNamespace:  0x316,
								Implementation: 0x9,
							},
						},
					},
				},
			},
		},

		{
			getAbsoluteFilePath("test/pspluginwkr.dll"),
			[]TestClrMetadataTable{
				{
					tableKind: Module,
					countCols: 0x1,
					content:   []ModuleTableRow{
							{
								Generation: 0x0,
								Name:       0x8bdf,
								Mvid:       0x1,
								EncID:      0x0,
								EncBaseID:  0x0,
							},
					},
				},

				{
					tableKind: TypeRef,
					countCols: 140,
					content:   []TypeRefTableRow{
							{
								ResolutionScope: 0x6,
								TypeName:        0x1103,
								TypeNamespace:   0x1113,
							},
					},
				},

				{
					tableKind: TypeDef,
					countCols: 169,
					content:   []TypeDefTableRow{
							{
								Flags:         0x0,
								TypeName:      0x1,
								TypeNamespace: 0x0,
								Extends:       0x0,
								FieldList:     0x1,
								MethodList:    0x1,
							},
					},
				},

				{
					tableKind: Field,
					countCols: 325,
					content:   []FieldTableRow{
							{
								Flags:     0x113,
								Name:      0x4af1,
								Signature: 0xea9,
							},
					},
				},

				{
					tableKind: MethodDef,
					countCols: 434,
					content:   []MethodDefTableRow{
							{
								RVA:       0x1d414,
								ImplFlags: 0x0,
								Flags:     0x13,
								Name:      0x1b7f,
								Signature: 0x125,
								ParamList: 0x1,
							},
					},
				},

				{
					tableKind: Param,
					countCols: 679,
					content:   []ParamTableRow{
							{
								Flags:    0x2000,
								Sequence: 0x0,
								Name:     0x0,
							},
					},
				},

				{
					tableKind: InterfaceImpl,
					countCols: 3,
					content:   []InterfaceImplTableRow{
							{
								Class:     0x6c,
								Interface: 0xa9,
							},
					},
				},

				{
					tableKind: MemberRef,
					countCols: 256,
					content:   []MemberRefTableRow{
							{
								Class:     0x29,
								Name:      0x79f8,
								Signature: 0x11e2,
							},
					},
				},

				{
					tableKind: Constant,
					countCols: 2,
					content:   []ConstantTableRow{
							{
								Type:   0xe,
								Parent: 0x464,
								Value:  0x1aa8,
							},
					},
				},

				{
					tableKind: CustomAttribute,
					countCols: 622,
					content:   []CustomAttributeTableRow{
							{
								Parent: 0x2e,
								Type:   0x7db,
								Value:  0x2c02,
							},
					},
				},

				{
					tableKind: FieldMarshal,
					countCols: 33,
					content:   []FieldMarshalTableRow{
							{
								Parent:     0x3,
								NativeType: 0x1ca6,
							},
					},
				},

				{
					tableKind: DeclSecurity,
					countCols: 4,
					content:   []DeclSecurityTableRow{
							{
								Action:        0x8,
								Parent:        0x6,
								PermissionSet: 0x2d81,
							},
					},
				},

				{
					tableKind: ClassLayout,
					countCols: 144,
					content:   []ClassLayoutTableRow{
							{
								PackingSize: 0x0,
								ClassSize:   0x10,
								Parent:      0x2,
							},
					},
				},

				{
					tableKind: StandAloneSig,
					countCols: 358,
					content:   []StandAloneSigTableRow{
							{
								Signature: 0x1caa,
							},
					},
				},

				{
					tableKind: EventMap,
					countCols: 2,
					content:   []EventMapTableRow{
							{
								Parent:    0x7f,
								EventList: 0x1,
							},
					},
				},

				{
					tableKind: Event,
					countCols: 2,
					content:   []EventTableRow{
							{
								EventFlags: 0x200,
								Name:       0x7eeb,
								EventType:  0x16,
							},
					},
				},

				{
					tableKind: PropertyMap,
					countCols: 2,
					content:   []PropertyMapTableRow{
							{
								Parent:       0x49,
								PropertyList: 0x1,
							},
					},
				},

				{
					tableKind: Property,
					countCols: 2,
					content:   []PropertyTableRow{
							{
								Flags: 0x0,
								Name:  0x7a8a,
								Type:  0x11d7,
							},
					},
				},

				{
					tableKind: MethodSemantics,
					countCols: 9,
					content:   []MethodSemanticsTableRow{
							{
								Semantics:   0x10,
								Method:      0x153,
								Association: 0x2,
							},
					},
				},

				{
					tableKind: ModuleRef,
					countCols: 1,
					content:   []ModuleRefTableRow{
							{
								Name: 0x0,
							},
					},
				},

				{
					tableKind: TypeSpec,
					countCols: 17,
					content:   []TypeSpecTableRow{
							{
								Signature: 0x85,
							},
					},
				},

				{
					tableKind: ImplMap,
					countCols: 51,
					content:   []ImplMapTableRow{
							{
								MappingFlags:    0x240,
								MemberForwarded: 0x1cb,
								ImportName:      0x0,
								ImportScope:     0x1,
							},
					},
				},

				{
					tableKind: FieldRVA,
					countCols: 265,
					content:   []FieldRVATableRow{
							{
								RVA:   0x11e4,
								Field: 0x1,
							},
					},
				},

				{
					tableKind: Assembly,
					countCols: 1,
					content:   []AssemblyTableRow{
							{
								HashAlgId:      0x8004,
								MajorVersion:   0x1,
								MinorVersion:   0x0,
								BuildNumber:    0x0,
								RevisionNumber: 0x0,
								Flags:          0x1,
								PublicKey:      0x2b03,
								Name:           0x8bd3,
								Culture:        0x0,
							},
					},
				},

				{
					tableKind: AssemblyRef,
					countCols: 5,
					content:   []AssemblyRefTableRow{
							{
								MajorVersion:     0x2,
								MinorVersion:     0x0,
								BuildNumber:      0x0,
								RevisionNumber:   0x0,
								Flags:            0x0,
								PublicKeyOrToken: 0x1,
								Name:             0x10b9,
								Culture:          0x0,
								HashValue:        0xa,
							},
					},
				},

				{
					tableKind: NestedClass,
					countCols: 7,
					content:   []NestedClassTableRow{
							{
								NestedClass:    0x7,
								EnclosingClass: 0x6,
							},
						},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ops := Options{Fast: true}
			file, err := New(tt.in, &ops)
			if err != nil {
				t.Fatalf("New(%s) failed, reason: %v", tt.in, err)
			}

			err = file.Parse()
			if err != nil {
				t.Fatalf("Parse(%s) failed, reason: %v", tt.in, err)
			}

			var va, size uint32
			switch file.Is64 {
			case true:
				oh64 := file.NtHeader.OptionalHeader.(ImageOptionalHeader64)
				dirEntry := oh64.DataDirectory[ImageDirectoryEntryCLR]
				va = dirEntry.VirtualAddress
				size = dirEntry.Size
			case false:
				oh32 := file.NtHeader.OptionalHeader.(ImageOptionalHeader32)
				dirEntry := oh32.DataDirectory[ImageDirectoryEntryCLR]
				va = dirEntry.VirtualAddress
				size = dirEntry.Size
			}

			err = file.parseCLRHeaderDirectory(va, size)
			if err != nil {
				t.Fatalf("parseCLRHeaderDirectory(%s) failed, reason: %v", tt.in, err)
			}

			clr := file.CLR
			for _, tbl := range tt.out {
				name := MetadataTableIndexToString(tbl.tableKind)
				gotCols := clr.TableRowCounts[tbl.tableKind]
				if gotCols != tbl.countCols {
					t.Errorf("CLR metadata tables assertion failed on %s table, got %v, want %v",
						name, gotCols, tbl.countCols)
				}

				gotRows := reflect.ValueOf(clr.Tables[tbl.tableKind])
				wantRows := reflect.ValueOf(tbl.content)
				if gotRows.Kind() != reflect.Slice || gotRows.Len() == 0 {
					t.Errorf("CLR metadata tables assertion failed on %s table, got no rows", name)
					continue
				}
				gotFirst := gotRows.Index(0).Interface()
				wantFirst := wantRows.Index(0).Interface()
				if !reflect.DeepEqual(gotFirst, wantFirst) {
					t.Errorf("CLR metadata tables assertion failed on %s table, got %v, want %v",
						name, gotFirst, wantFirst)
				}
			}
		})
	}
}

func TestClrDirectorCOMImageFlagsType(t *testing.T) {

	tests := []struct {
		in  int
		out []string
	}{
		{
			0x9,
			[]string{"IL Only", "Strong Name Signed"},
		},
	}

	for _, tt := range tests {
		t.Run("CaseFlagsEqualTo_"+strconv.Itoa(tt.in), func(t *testing.T) {
			got := COMImageFlagsType(tt.in).String()
			sort.Strings(got)
			sort.Strings(tt.out)
			if !reflect.DeepEqual(got, tt.out) {
				t.Errorf("CLR header flags assertion failed, got %v, want %v",
					got, tt.out)
			}
		})
	}
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	peparser "github.com/saferwall/clrmeta"
	"github.com/saferwall/clrmeta/internal/log"
)

type config struct {
	wantCLR bool
}

var cfg config

var rootCmd = &cobra.Command{
	Use:   "clrmeta",
	Short: "clrmeta dumps ECMA-335 CLI metadata from .NET images",
}

var dumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Parse a .NET image (or a directory of images) and print its CLI metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.wantCLR = true
		return parse(args[0], cfg)
	},
}

func main() {
	rootCmd.AddCommand(dumpCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	wg   sync.WaitGroup
	jobs chan string = make(chan string)
)

func loopFilesWorker(cfg config) error {
	for path := range jobs {
		files, err := os.ReadDir(path)
		if err != nil {
			wg.Done()
			return err
		}

		for _, file := range files {
			if !file.IsDir() {
				fullpath := filepath.Join(path, file.Name())
				parsePE(fullpath, cfg)
			}
		}
		wg.Done()
	}
	return nil
}

// LoopDirsFiles walks path recursively, queuing every directory it finds for
// loopFilesWorker to drain concurrently. Scanning N files concurrently does
// not parallelize any single file's parse: the decoder itself stays strictly
// synchronous.
func LoopDirsFiles(path string) error {
	files, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	go func() {
		wg.Add(1)
		jobs <- path
	}()
	for _, file := range files {
		if file.IsDir() {
			LoopDirsFiles(filepath.Join(path, file.Name()))
		}
	}
	return nil
}

func hexDumpSize(b []byte, size int) {
	var a [16]byte

	if len(b) < size {
		temp := make([]byte, size)
		copy(temp, b)
		b = temp
	}

	n := (size + 15) &^ 15
	for i := 0; i < n; i++ {
		if i%16 == 0 {
			fmt.Printf("%4d", i)
		}
		if i%8 == 0 {
			fmt.Print(" ")
		}
		if i < len(b) {
			fmt.Printf(" %02X", b[i])
		} else {
			fmt.Print("   ")
		}
		if i >= len(b) {
			a[i%16] = ' '
		} else if b[i] < 32 || b[i] > 126 {
			a[i%16] = '.'
		} else {
			a[i%16] = b[i]
		}
		if i%16 == 15 {
			fmt.Printf("  %s\n", string(a[:]))
		}
	}
}

func isDirectory(path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fileInfo.IsDir()
}

func parse(filePath string, cfg config) error {
	if !isDirectory(filePath) {
		parsePE(filePath, cfg)
		return nil
	}

	fileList := []string{}
	err := filepath.Walk(filePath, func(path string, f os.FileInfo, err error) error {
		if !isDirectory(path) {
			fileList = append(fileList, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, file := range fileList {
		parsePE(file, cfg)
	}
	return nil
}

func parsePE(filename string, cfg config) {

	logger := log.NewStdLogger(os.Stdout)
	logger = log.NewFilter(logger, log.FilterLevel(log.LevelInfo))
	helper := log.NewHelper(logger)

	helper.Infof("parsing filename %s", filename)

	data, err := os.ReadFile(filename)
	if err != nil {
		helper.Infof("Error while reading file: %s, reason: %s", filename, err)
		return
	}

	pe, err := peparser.NewBytes(data, &peparser.Options{Logger: logger})
	if err != nil {
		helper.Infof("Error while opening file: %s, reason: %s", filename, err)
		return
	}
	defer pe.Close()

	if err := pe.Parse(); err != nil {
		helper.Infof("Error while parsing file: %s, reason: %s", filename, err)
		return
	}

	if !cfg.wantCLR {
		return
	}
	if !pe.FileInfo.HasCLR {
		fmt.Printf("%s: not a CLI image\n", filename)
		return
	}

	dumpImageKind(pe)
	dumpCLRHeader(pe)
	dumpStreamDirectory(pe)
	dumpTableRowCounts(pe)
	dumpEntryPointBody(pe)
}

func dumpImageKind(pe *peparser.File) {
	kind := "unknown"
	switch {
	case pe.IsDLL():
		kind = "DLL"
	case pe.IsEXE():
		kind = "EXE"
	}
	fmt.Printf("\nImage kind: %s\n", kind)
}

func dumpCLRHeader(pe *peparser.File) {
	h := pe.CLR.CLRHeader
	w := tabwriter.NewWriter(os.Stdout, 1, 1, 3, ' ', tabwriter.AlignRight)
	fmt.Print("\n\t------[ CLI Header ]------\n\n")
	fmt.Fprintf(w, "Runtime version:\t %d.%d\n", h.MajorRuntimeVersion, h.MinorRuntimeVersion)
	fmt.Fprintf(w, "Flags:\t 0x%x\n", uint32(h.Flags))
	fmt.Fprintf(w, "Entry point token/RVA:\t 0x%x\n", h.EntryPointRVAorToken)
	fmt.Fprintf(w, "Metadata RVA:\t 0x%x\n", h.MetaData.VirtualAddress)
	fmt.Fprintf(w, "Metadata size:\t 0x%x\n", h.MetaData.Size)
	w.Flush()
}

func dumpStreamDirectory(pe *peparser.File) {
	w := tabwriter.NewWriter(os.Stdout, 1, 1, 3, ' ', tabwriter.AlignRight)
	fmt.Print("\n\t------[ Metadata Streams ]------\n\n")
	for _, sh := range pe.CLR.MetadataStreamHeaders {
		fmt.Fprintf(w, "%s:\t offset=0x%x size=0x%x\n", sh.Name, sh.Offset, sh.Size)
	}
	w.Flush()
}

func dumpTableRowCounts(pe *peparser.File) {
	fmt.Print("\n\t------[ Logical Tables ]------\n\n")
	for i := range pe.CLR.TableRowCounts {
		tbl := pe.CLR.Table(i)
		if tbl.CountCols == 0 {
			continue
		}
		fmt.Printf("%-24s %d\n", tbl.Name, tbl.CountCols)
	}
}

func dumpEntryPointBody(pe *peparser.File) {
	body, err := pe.EntryPointMethodBody()
	if err != nil {
		fmt.Printf("\nentry point method body unavailable: %s\n", err)
		return
	}

	fmt.Print("\n\t------[ Entry Point Method Body ]------\n\n")
	switch body.Kind {
	case peparser.TinyMethodHeader:
		fmt.Println("Header: tiny")
	case peparser.FatMethodHeader:
		fmt.Println("Header: fat")
		fmt.Printf("MaxStack: %d\n", body.MaxStack)
		fmt.Printf("LocalVarSigTok: 0x%x\n", body.LocalVarSigTok)
		fmt.Printf("MoreSects: %v\n", body.MoreSects)
	}
	fmt.Printf("CodeSize: %d\n\n", len(body.Code))
	hexDumpSize(body.Code, len(body.Code))
}

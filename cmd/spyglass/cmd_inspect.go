package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/spyglass/internal/domain-adapters/gateways"
	"github.com/ochairo/spyglass/internal/domain/services"
)

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var (
		filePath = fs.String("file", "", "Path to the binary image to inspect")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: spyglass inspect --file <path>

Print version, identity, and debug-info references for a binary image
(PE, ELF, or Mach-O).

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  spyglass inspect --file /usr/share/dotnet/shared/Microsoft.NETCore.App/8.0.0/libcoreclr.so
  spyglass inspect --file coreclr.dll
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *filePath == "" {
		if fs.NArg() == 1 {
			*filePath = fs.Arg(0)
		} else {
			fmt.Fprintf(os.Stderr, "Error: --file is required\n\n")
			fs.Usage()
			os.Exit(1)
		}
	}

	if err := executeInspect(*filePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func executeInspect(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: file path is user-provided
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	img := gateways.NewImageView(bytes.NewReader(data), int64(len(data)), 0)
	if !img.Parsed() {
		return fmt.Errorf("unrecognized binary format: %s", path)
	}

	fmt.Printf("File:         %s\n", path)
	fmt.Printf("Platform:     %s\n", img.Platform())
	fmt.Printf("Architecture: %s\n", img.Architecture())
	fmt.Printf("Version:      %s\n", img.Version())
	fmt.Printf("Managed:      %v\n", img.IsManaged())
	fmt.Printf("Executable:   %v\n", img.IsExecutable())

	if ts, size, ok := img.PEIdentity(); ok {
		fmt.Printf("PE identity:  timestamp=%08X size=%x\n", ts, size)
	}
	if bid := img.BuildID(); len(bid) > 0 {
		fmt.Printf("Build id:     %s\n", hex.EncodeToString(bid))
	}
	if ref, ok := img.SymbolFile(); ok {
		fmt.Printf("Symbol file:  %s (guid %s, age %d)\n",
			ref.FileName, hex.EncodeToString(ref.GUID[:]), ref.Age)
	}
	if flavor, ok := services.DetectFlavor(filepath.Base(path)); ok {
		fmt.Printf("Runtime:      %s\n", flavor)
	}
	return nil
}

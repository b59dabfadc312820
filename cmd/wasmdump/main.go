package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/go-wasm/codec/wasmcodec"
	"github.com/go-wasm/codec/wasmvalidate"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to a WebAssembly binary module")
		validate    = flag.Bool("validate", false, "Run semantic validation after decoding")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		noTTY       = flag.Bool("no-tty", false, "Force the flat text dump even on a terminal")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmdump -wasm <file.wasm> [-validate]")
		fmt.Fprintln(os.Stderr, "       wasmdump -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	// The TUI needs a real terminal to draw into; fall back to the flat
	// dump when stdout is redirected to a file or pipe, the same
	// fallback shape the teacher's cmd/run entry point applies before
	// launching its own interactive view.
	wantInteractive := *interactive && !*noTTY && term.IsTerminal(int(os.Stdout.Fd()))
	if *interactive && !wantInteractive {
		fmt.Fprintln(os.Stderr, "-no-tty given or stdout is not a terminal; falling back to flat dump")
	}

	if wantInteractive {
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := dump(*wasmFile, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dump(wasmFile string, runValidate bool) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("Types:     %d\n", len(m.Types))
	fmt.Printf("Imports:   %d\n", len(m.Imports))
	fmt.Printf("Functions: %d (+ %d imported)\n", len(m.Funcs), m.NumImportedFuncs())
	fmt.Printf("Tables:    %d (+ %d imported)\n", len(m.Tables), m.NumImportedTables())
	fmt.Printf("Memories:  %d (+ %d imported)\n", len(m.Memories), m.NumImportedMemories())
	fmt.Printf("Globals:   %d (+ %d imported)\n", len(m.Globals), m.NumImportedGlobals())
	fmt.Printf("Tags:      %d (+ %d imported)\n", len(m.Tags), m.NumImportedTags())
	fmt.Printf("Elements:  %d\n", len(m.Elements))
	fmt.Printf("Data:      %d\n", len(m.Data))
	fmt.Printf("Customs:   %d\n", len(m.Customs))

	if len(m.Exports) > 0 {
		fmt.Printf("\nExports:\n")
		for _, e := range m.Exports {
			fmt.Printf("  %-20s %s #%d\n", e.Name, exportKindName(e.Kind), e.Idx)
		}
	}

	if runValidate {
		if err := wasmvalidate.Validate(m); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		fmt.Println("\nvalidation: ok")
	}

	return nil
}

func exportKindName(kind byte) string {
	switch kind {
	case wasmcodec.KindFunc:
		return "func"
	case wasmcodec.KindTable:
		return "table"
	case wasmcodec.KindMemory:
		return "memory"
	case wasmcodec.KindGlobal:
		return "global"
	case wasmcodec.KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

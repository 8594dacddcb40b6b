// Package main provides a command-line utility that decodes a binary
// source through a Bithenge script and prints the resulting tree (spec
// §6.5: "the CLI is an external collaborator that composes parse_script,
// node_from_source, transform_apply, and print_node").
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bithenge/bithenge"
	"github.com/bithenge/bithenge/internal/diag"
	"github.com/bithenge/bithenge/internal/script"
)

func main() {
	python := flag.Bool("python", false, "print using Python literal syntax instead of JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Println("Usage: bithenge [flags] <script.bht> <source>")
		fmt.Println("  <source> is a file path or one of file:/hex:/block: URIs")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	scriptPath, source := args[0], args[1]

	main_, err := script.ParseFile(scriptPath)
	if err != nil {
		log.Fatalf("parsing %s: %v", scriptPath, err)
	}

	in, err := bithenge.NodeFromSource(source)
	if err != nil {
		log.Fatalf("loading %s: %v", source, err)
	}

	out, err := main_.Apply(bithenge.NewScope(nil), in)
	if err != nil {
		log.Fatalf("decoding %s: %v (%s)", source, err, diag.CodeOf(err))
	}

	kind := bithenge.PrintJSON
	if *python {
		kind = bithenge.PrintPython
	}
	if err := bithenge.FormatNode(os.Stdout, kind, out); err != nil {
		log.Fatalf("printing result: %v", err)
	}
	fmt.Println()
}

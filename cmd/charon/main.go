// Charon classifies sequencing reads against a bin-packed Interleaved
// Membership Filter database: build a database with `index`, then
// assign reads to categories with `classify`, or strip a host
// category out of a mixed sample with `dehost`.
//
// charon index -p <prefix> [-w 41] [-k 19] [-t 1] [--optimize] <input.tsv>
// charon classify --db <prefix> [-d gamma] <reads.fastq> [reads2.fastq]
// charon dehost --db <prefix> --host <category> <reads.fastq> [reads2.fastq]
//
// Flags come before the positional arguments: flag parsing stops at
// the first positional argument. See each subcommand's own flag set
// (`charon <subcommand> -h`) for the full option list.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(os.Args[2:])
	case "classify":
		err = runClassify(os.Args[2:])
	case "dehost":
		err = runDehost(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "charon: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "charon: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: charon <index|classify|dehost> [flags]")
}

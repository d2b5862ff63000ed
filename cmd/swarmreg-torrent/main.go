// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
	"github.com/bureau-foundation/swarmreg/lib/torrent"
	"github.com/bureau-foundation/swarmreg/lib/version"
)

const usage = `usage: swarmreg-torrent <command> [flags]

commands:
  build <file>              build a descriptor for a local file
  inspect <file.torrent>    decode a descriptor and print its contents
  version                   print version information
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("no command given")
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:], stdout)
	case "inspect":
		return runInspect(args[1:], stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "swarmreg-torrent %s\n", version.Full())
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runBuild(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	var (
		name        string
		pieceLength uint32
		algorithm   string
		announce    []string
		output      string
	)
	flags.StringVar(&name, "name", "", "artifact path recorded in the descriptor (default: the file's base name)")
	flags.Uint32Var(&pieceLength, "piece-length", torrent.DefaultPieceLength, "piece length in bytes")
	flags.StringVar(&algorithm, "algorithm", string(contentaddr.SHA256), "digest algorithm (sha256 or blake3)")
	flags.StringSliceVar(&announce, "announce", nil, "tracker URL (repeatable)")
	flags.StringVarP(&output, "output", "o", "", "descriptor output path (default: <file>.torrent)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("build takes exactly one file argument")
	}
	path := flags.Arg(0)

	parsedAlgorithm, err := contentaddr.ParseAlgorithm(algorithm)
	if err != nil {
		return err
	}
	addressor, err := contentaddr.New(parsedAlgorithm)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if output == "" {
		output = path + ".torrent"
	}

	builder := torrent.NewBuilder(torrent.BuilderConfig{
		Addressor:         addressor,
		Announce:          announce,
		ParallelThreshold: 4 * int64(pieceLength),
		Workers:           runtime.NumCPU(),
	})
	descriptor, err := builder.Build(context.Background(), name, content, pieceLength)
	if err != nil {
		return fmt.Errorf("building descriptor for %s: %w", path, err)
	}

	if err := os.WriteFile(output, descriptor.Encoded, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s  %s\n", descriptor.InfoHash, output)
	return nil
}

func runInspect(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	var showPieces bool
	flags.BoolVar(&showPieces, "pieces", false, "print every piece hash")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("inspect takes exactly one descriptor argument")
	}

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	descriptor, err := torrent.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", flags.Arg(0), err)
	}

	fmt.Fprintf(stdout, "info hash:    %s\n", descriptor.InfoHash)
	fmt.Fprintf(stdout, "algorithm:    %s\n", descriptor.Algorithm)
	fmt.Fprintf(stdout, "name:         %s\n", descriptor.Info.Name)
	fmt.Fprintf(stdout, "length:       %d\n", descriptor.Info.Length)
	fmt.Fprintf(stdout, "piece length: %d\n", descriptor.Info.PieceLength)
	fmt.Fprintf(stdout, "pieces:       %d\n", descriptor.PieceCount())
	if len(descriptor.Announce) > 0 {
		fmt.Fprintf(stdout, "announce:     %s\n", strings.Join(descriptor.Announce, ", "))
	}
	if showPieces {
		for index, hash := range descriptor.Info.PieceHashes {
			fmt.Fprintf(stdout, "  %6d  %s\n", index, hex.EncodeToString(hash))
		}
	}
	return nil
}

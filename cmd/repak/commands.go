// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/pak"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// archiveInfo is the structured form of "repak info".
type archiveInfo struct {
	MountPoint     string `json:"mount_point" yaml:"mount_point"`
	Version        string `json:"version" yaml:"version"`
	IndexHash      string `json:"index_hash,omitempty" yaml:"index_hash,omitempty"`
	IndexOffset    uint64 `json:"index_offset" yaml:"index_offset"`
	IndexSize      uint64 `json:"index_size" yaml:"index_size"`
	Entries        int    `json:"entries" yaml:"entries"`
	IndexEncrypted bool   `json:"index_encrypted" yaml:"index_encrypted"`
}

// listItem is one row of "repak list --full".
type listItem struct {
	Path        string `json:"path" yaml:"path"`
	Compression string `json:"compression" yaml:"compression"`
	Hash        string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Offset      uint64 `json:"offset" yaml:"offset"`
	StoredSize  uint64 `json:"stored_size" yaml:"stored_size"`
	Size        uint64 `json:"size" yaml:"size"`
	Encrypted   bool   `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// newFlagSet returns a subcommand flag set writing usage to stderr.
func newFlagSet(e *env, name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage:\n  repak %s %s\n\nFlags:\n", name, usage)
		fs.PrintDefaults()
	}

	return fs
}

// parseArgs parses flags and checks the positional argument count.
func parseArgs(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) != want {
		fs.Usage()
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), want, len(rest))
	}

	return rest, nil
}

func runInfo(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "info", "<pak>")
	format := fs.StringP("format", "f", formatText, "output format: text, json or yaml")

	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	r, err := e.open(rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	info := archiveInfo{
		MountPoint:     r.MountPoint(),
		Version:        h.Version.String(),
		IndexOffset:    h.IndexOffset,
		IndexSize:      h.IndexSize,
		Entries:        r.Len(),
		IndexEncrypted: h.IndexEncrypted,
	}
	if h.Version >= pak.VersionIndexHash {
		info.IndexHash = hex.EncodeToString(h.IndexHash[:])
	}

	if *format != formatText {
		return encodeStructured(e.stdout, *format, info)
	}

	fmt.Fprintf(e.stdout, "mount point: %s\n", info.MountPoint)
	fmt.Fprintf(e.stdout, "version: %s\n", info.Version)
	fmt.Fprintf(e.stdout, "entries: %d\n", info.Entries)
	fmt.Fprintf(e.stdout, "index: offset=%d size=%d encrypted=%t\n", info.IndexOffset, info.IndexSize, info.IndexEncrypted)
	if info.IndexHash != "" {
		fmt.Fprintf(e.stdout, "index hash: %s\n", info.IndexHash)
	}

	return nil
}

func runList(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "list", "<pak>")
	prefix := fs.String("prefix", "", "list only entries under this path prefix")
	codecs := fs.StringSlice("compression", nil, "list only entries stored with these codecs")
	full := fs.Bool("full", false, "prefix paths with the mount point")
	format := fs.StringP("format", "f", formatText, "output format: text, json or yaml")

	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	var filter []pak.Compression
	for _, name := range *codecs {
		c, err := pak.ParseCompression(name)
		if err != nil {
			return err
		}

		filter = append(filter, c)
	}

	r, err := e.open(rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	entries := pak.FilterEntries(r.Entries(), *prefix, filter...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	mount := ""
	if *full {
		mount = r.MountPoint()
	}

	if *format != formatText {
		items := make([]listItem, 0, len(entries))
		for _, entry := range entries {
			item := listItem{
				Path:        pak.JoinMountPath(mount, entry.Path),
				Compression: entry.Compression.String(),
				Offset:      entry.Offset,
				StoredSize:  entry.StoredSize,
				Size:        entry.Size,
				Encrypted:   entry.Encrypted,
			}
			if entry.Hash != nil {
				item.Hash = hex.EncodeToString(entry.Hash[:])
			}

			items = append(items, item)
		}

		return encodeStructured(e.stdout, *format, items)
	}

	for _, entry := range entries {
		fmt.Fprintln(e.stdout, pak.SanitizeDisplayPath(pak.JoinMountPath(mount, entry.Path)))
	}

	return nil
}

func runGet(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "get", "<pak> <path>")

	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	r, err := e.open(rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	rc, err := r.OpenEntry(rest[1])
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(e.stdout, rc); err != nil {
		return fmt.Errorf("write %s: %w", rest[1], err)
	}

	return nil
}

func runUnpack(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "unpack", "<pak>")
	output := fs.StringP("output", "o", "", "output directory (default: pak path without extension)")
	strip := fs.String("strip-prefix", "", "prefix removed from mount point + path (default: mount point)")
	force := fs.Bool("force", false, "extract into a non-empty directory")
	workers := fs.IntP("workers", "j", 0, "extraction workers (default: GOMAXPROCS)")
	sanitize := fs.Bool("sanitize", false, "rewrite entry names to filesystem-safe paths")
	prefix := fs.String("prefix", "", "extract only entries under this path prefix")

	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	r, err := e.open(rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	dst := *output
	if dst == "" {
		dst = strings.TrimSuffix(rest[0], filepath.Ext(rest[0]))
	}

	opts := pak.ExtractOptions{
		Logger:        e.logger,
		MaxWorkers:    *workers,
		Force:         *force,
		SanitizeNames: *sanitize,
	}
	if fs.Changed("strip-prefix") {
		opts.StripPrefix = strip
	}

	if *prefix != "" {
		opts.Entries = pak.FilterEntries(r.Entries(), *prefix)
	}

	res, err := r.Extract(ctx, dst, opts)
	if res != nil {
		e.logger.Info("unpacked", "output", dst, "written", res.Written, "skipped", res.Skipped, "bytes", res.Bytes)
	}

	return err
}

func runPack(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "pack", "<dir>")
	output := fs.StringP("output", "o", "", "output pak path (default: <dir>.pak)")
	mount := fs.String("mount-point", pak.DefaultMountPoint, "mount point stored in the index")
	version := fs.String("version", pak.VersionLatest.String(), "layout version to write (V1, V2, V3)")
	compression := fs.StringP("compression", "c", "", "codec for compression candidates (zlib, gzip, zstd, lz4, lzss, oodle)")
	configPath := fs.String("config", "", "YAML pack config")
	encryptIndex := fs.Bool("encrypt-index", false, "encrypt the index with --aes-key")
	encryptEntries := fs.Bool("encrypt-entries", false, "encrypt entry payloads with --aes-key")
	minSize := fs.Int64("min-size", 0, "skip compression below this size")
	maxSize := fs.Int64("max-size", 0, "skip compression above this size")
	utf16 := fs.Bool("utf16", false, "store paths as UTF-16")

	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	v, err := pak.ParseVersion(*version)
	if err != nil {
		return err
	}

	opts := pak.PackOptions{
		Writer: pak.WriterOptions{
			Key:          e.key,
			Codecs:       e.codecs,
			MountPoint:   *mount,
			Version:      v,
			EncryptIndex: *encryptIndex,
			UTF16Paths:   *utf16,
		},
		MinCompressSize: *minSize,
		MaxCompressSize: *maxSize,
		EncryptEntries:  *encryptEntries,
		OnEntryDone: func(p pak.PackEntryProgress) {
			e.logger.Debug("packed entry", "path", p.Path, "size", p.Size, "stored", p.StoredSize, "compression", p.Compression)
		},
	}

	if *configPath != "" {
		cfg, err := loadPackConfig(*configPath)
		if err != nil {
			return err
		}

		if err := cfg.apply(&opts); err != nil {
			return err
		}
	}

	// Explicit flags win over config values.
	if *compression != "" {
		c, err := pak.ParseCompression(*compression)
		if err != nil {
			return err
		}

		opts.Compression = c
	}

	if fs.Changed("mount-point") {
		opts.Writer.MountPoint = *mount
	}

	if fs.Changed("version") {
		opts.Writer.Version = v
	}

	inputs, err := pak.CollectDirInputs(rest[0])
	if err != nil {
		return err
	}

	dst := *output
	if dst == "" {
		dst = filepath.Clean(rest[0]) + ".pak"
	}

	res, err := pak.PackFile(ctx, dst, inputs, opts)
	if err != nil {
		return err
	}

	e.logger.Info("packed",
		"output", dst,
		"entries", res.WrittenEntries,
		"compressed", res.CompressedEntries,
		"skipped_compression", res.SkippedCompressionEntries,
		"data_bytes", res.DataSize,
		"duration", res.Duration,
	)

	return nil
}

func runHash(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "hash", "<pak>")
	perEntry := fs.Bool("entries", false, "print one digest per entry instead of the archive digest")

	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	r, err := e.open(rest[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	entries := r.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	total := blake3.New()
	for _, entry := range entries {
		data, err := r.Read(entry)
		if err != nil {
			return err
		}

		if *perEntry {
			sum := blake3.Sum256(data)
			fmt.Fprintf(e.stdout, "%s  %s\n", hex.EncodeToString(sum[:]), pak.SanitizeDisplayPath(entry.Path))
			continue
		}

		_, _ = io.WriteString(total, entry.Path)
		_, _ = total.Write([]byte{0})
		_, _ = total.Write(data)
	}

	if !*perEntry {
		fmt.Fprintln(e.stdout, hex.EncodeToString(total.Sum(nil)))
	}

	return nil
}

// encodeStructured writes v as JSON or YAML.
func encodeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", format, formatText, formatJSON, formatYAML)
	}
}

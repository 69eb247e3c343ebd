// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

/*
Package pak provides read, extract and pack operations for pak archives:
versioned containers that bundle many named entries under one mount point.
Entries may be compressed (zlib, gzip, zstd, lz4, lzss or an injected Oodle
codec) and AES-256 encrypted; the index itself may be encrypted as well.

Archive layout (little-endian):
  - fixed header at offset 0: magic, version, flags, index offset and size,
    and since V3 a BLAKE3 hash of the index payload;
  - entry payloads, each padded to 16 bytes when encrypted;
  - index payload: mount point, entry count and one record per entry.

# Reading

Open an archive and read entries:

	r, err := pak.OpenWithOptions("game.pak", pak.ReaderOptions{Key: key})
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    data, err := r.Read(e)
	    if err != nil {
	        return err
	    }
	    _ = data
	}

Lookup accepts both stored paths and mount-prefixed paths:

	data, err := r.ReadEntry("../../../Game/Content/a.txt")

A mismatch of magic or version is reported before the index is read. An
index or entry flagged as encrypted without a key fails Open with
ErrEncrypted.

# Extracting

Extract resolves every output path before writing. Entries whose path
would escape the destination are skipped and reported in *ExtractError
while the remaining entries are written:

	res, err := r.Extract(ctx, "out/", pak.ExtractOptions{MaxWorkers: 4})
	var extractErr *pak.ExtractError
	if errors.As(err, &extractErr) {
	    // res.Written entries were extracted
	}

# Packing

Build an archive entry by entry:

	w, err := pak.NewWriter(f, pak.WriterOptions{MountPoint: "../../../"})
	if err != nil {
	    return err
	}
	if err := w.Add("Game/a.txt", data, pak.EntryOptions{Compression: pak.CompressionZlib}); err != nil {
	    return err
	}
	res, err := w.Finalize()

Or pack stream inputs with path rules selecting compression candidates
(github.com/woozymasta/pathrules):

	res, err := pak.PackFile(ctx, "game.pak", inputs, pak.PackOptions{
	    Compression: pak.CompressionZstd,
	    Compress: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.uasset"},
	    },
	})

# Oodle

Oodle is not built in. Wire a capability through a CodecSet, for example
the loader from the oodle subpackage:

	codecs := pak.NewCodecSet(pak.WithOodleLoader(oodle.Loader(oodle.Options{})))
	r, err := pak.OpenWithOptions("game.pak", pak.ReaderOptions{Codecs: codecs})
*/
package pak

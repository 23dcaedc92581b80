// Package upload implements the File Upload Manager (spec.md §4.E): a
// chunked upload protocol of start/chunk/complete messages layered
// over a pluggable Store, with per-user quota tracking, filename and
// MIME validation at start, and magic-byte content verification at
// complete.
//
// # Protocol
//
// A client declares an upload with Manager.Start (filename, claimed
// MIME type, declared size, total chunk count), streams chunks with
// Manager.Chunk (idempotent per index), and finalizes with
// Manager.Complete, which requires every chunk to have arrived,
// validates chunk zero's magic bytes against the claimed MIME type,
// and persists the assembled bytes through the Store.
//
// # Limits
//
// Declared size is capped at 50 MB per upload and a rolling 500 MB per
// user per 24h window. Filenames are basename-sanitized and rejected
// for blocked or double extensions; see ValidateFilename and
// ValidateMagicBytes for the concrete rules.
//
// # Storage backends
//
// Store is implemented by DiskStore (the default, writing finalized
// uploads under a directory as "<uuid><ext>") and, behind the
// s3example build tag, S3Store.
package upload

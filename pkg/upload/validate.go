package upload

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// ErrFilenameTooLong rejects filenames over the declared limit.
var ErrFilenameTooLong = errors.New("upload: filename too long")

// ErrExtensionBlocked rejects filenames whose extension (or any
// intermediate extension in a double-extension name) is on the
// blocked list.
var ErrExtensionBlocked = errors.New("upload: file extension not permitted")

// ErrMagicMismatch rejects a completed upload whose first chunk's
// magic bytes don't match its claimed MIME type.
var ErrMagicMismatch = errors.New("upload: file contents do not match claimed type")

const maxFilenameLength = 255

// blockedExtensions lists executable, script, and library extensions
// rejected regardless of declared MIME type (spec.md §4.E "Limits &
// validation").
var blockedExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".bat": {}, ".cmd": {}, ".sh": {}, ".ps1": {},
	".com": {}, ".scr": {}, ".msi": {}, ".app": {},
	".jar": {}, ".vbs": {}, ".js": {}, ".wasm": {},
}

// allowedMIMETypes is the upload allowlist (images, PDF, text, JSON,
// zip, gzip).
var allowedMIMETypes = map[string]struct{}{
	"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {},
	"application/pdf": {},
	"text/plain":      {}, "text/csv": {}, "text/html": {},
	"application/json": {},
	"application/zip":  {}, "application/gzip": {}, "application/x-gzip": {},
}

// MIMEAllowed reports whether contentType is in the upload allowlist.
func MIMEAllowed(contentType string) bool {
	_, ok := allowedMIMETypes[normalizeMIMEType(contentType)]
	return ok
}

// ValidateFilename enforces basename-only, length, and
// blocked/double-extension rules on a claimed upload filename.
func ValidateFilename(name string) error {
	base := filepath.Base(name)
	if base != name || base == "." || base == string(filepath.Separator) {
		return ErrExtensionBlocked
	}
	if len(base) > maxFilenameLength {
		return ErrFilenameTooLong
	}
	parts := strings.Split(base, ".")
	for i := 1; i < len(parts); i++ {
		ext := normalizeExtension(parts[i])
		if _, blocked := blockedExtensions[ext]; blocked {
			return ErrExtensionBlocked
		}
	}
	return nil
}

// magic signatures checked against the first bytes of chunk 0.
var magicSignatures = map[string][][]byte{
	"image/jpeg": {{0xFF, 0xD8, 0xFF}},
	"image/png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	"image/gif":  {[]byte("GIF87a"), []byte("GIF89a")},
	"image/webp": {[]byte("RIFF")}, // followed by size(4) + "WEBP", checked separately
	"application/pdf":     {[]byte("%PDF")},
	"application/zip":     {{0x50, 0x4B, 0x03, 0x04}, {0x50, 0x4B, 0x05, 0x06}, {0x50, 0x4B, 0x07, 0x08}},
	"application/gzip":    {{0x1F, 0x8B}},
	"application/x-gzip":  {{0x1F, 0x8B}},
}

// textLikeTypes skip magic byte validation (spec.md §4.E "text-like
// types skipped").
var textLikeTypes = map[string]struct{}{
	"text/plain": {}, "text/csv": {}, "text/html": {}, "application/json": {},
}

// ValidateMagicBytes checks the first chunk of an upload against its
// claimed MIME type. Types with no known signature (text-like) are
// skipped.
func ValidateMagicBytes(contentType string, firstChunk []byte) error {
	ct := normalizeMIMEType(contentType)
	if _, skip := textLikeTypes[ct]; skip {
		return nil
	}
	sigs, known := magicSignatures[ct]
	if !known {
		return nil
	}
	if ct == "image/webp" {
		if len(firstChunk) >= 12 && bytes.Equal(firstChunk[0:4], []byte("RIFF")) && bytes.Equal(firstChunk[8:12], []byte("WEBP")) {
			return nil
		}
		return ErrMagicMismatch
	}
	for _, sig := range sigs {
		if len(firstChunk) >= len(sig) && bytes.Equal(firstChunk[:len(sig)], sig) {
			return nil
		}
	}
	return ErrMagicMismatch
}

package content

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
	"github.com/LukasIV/github-commit-collector/internal/models"
)

// binarySniffLen bounds how many leading bytes are inspected for NUL bytes
const binarySniffLen = 1024

// Resolver decides, per file change, whether before/after content and patch
// text are inlined on the metadata row or externalized into content-addressed
// object storage, and computes the object keys.
type Resolver struct {
	// InlineMaxBytes is the largest payload embedded directly in the
	// metadata record. Larger or binary payloads are always externalized.
	InlineMaxBytes int
}

// NewResolver creates a content resolver with the given inline threshold
func NewResolver(inlineMaxBytes int) *Resolver {
	return &Resolver{InlineMaxBytes: inlineMaxBytes}
}

// PendingObject is an object-store write the backend still has to perform
type PendingObject struct {
	Key         string
	Data        []byte
	ContentType string
}

// Resolved is a file change with content keys populated, plus the object
// writes backing them
type Resolved struct {
	Change  *models.FileChange
	Objects []PendingObject
}

// Resolve fills in blob hashes, inline payloads or object keys, and the patch
// key for one file change. The before/after byte slices may be nil when the
// respective side does not exist or content fetching is disabled.
func (r *Resolver) Resolve(fc *models.FileChange, before, after []byte, patch string) (*Resolved, error) {
	if fc.ChangeType == models.ChangeAdded && before != nil {
		return nil, apperrors.NewIntegrity(
			fmt.Sprintf("file change %s: ADDED change carries before-content", fc.FileChangeID))
	}
	if fc.ChangeType == models.ChangeDeleted && after != nil {
		return nil, apperrors.NewIntegrity(
			fmt.Sprintf("file change %s: DELETED change carries after-content", fc.FileChangeID))
	}

	resolved := &Resolved{Change: fc}

	// Fetched bytes are authoritative for binary detection; without content
	// the mapper's diff-shape hint stands.
	if before != nil || after != nil {
		fc.IsBinary = IsBinary(before) || IsBinary(after)
	}
	if fc.IsBinary {
		// Line counts are not meaningful for binary payloads and must never
		// be estimated.
		fc.LinesAdded = 0
		fc.LinesDeleted = 0
	}

	if before != nil {
		hash := BlobHash(before)
		fc.BlobHashBefore = &hash
		resolved.Objects = r.placeBlob(fc, before, hash, &fc.ContentBeforeKey, &fc.ContentBeforeInline, resolved.Objects)
	}
	if after != nil {
		hash := BlobHash(after)
		fc.BlobHashAfter = &hash
		resolved.Objects = r.placeBlob(fc, after, hash, &fc.ContentAfterKey, &fc.ContentAfterInline, resolved.Objects)
	}

	if patch != "" {
		key := PatchKey(fc.CommitHash, fc.FilePath)
		fc.PatchKey = &key
		resolved.Objects = append(resolved.Objects, PendingObject{
			Key:         key,
			Data:        []byte(patch),
			ContentType: "text/plain",
		})
	}

	return resolved, nil
}

// placeBlob inlines a payload at or below the threshold, otherwise records a
// content-addressed object write
func (r *Resolver) placeBlob(fc *models.FileChange, data []byte, hash string, key **string, inline *[]byte, objects []PendingObject) []PendingObject {
	if !fc.IsBinary && len(data) <= r.InlineMaxBytes {
		*inline = data
		return objects
	}

	k := BlobKey(hash)
	*key = &k
	return append(objects, PendingObject{
		Key:         k,
		Data:        data,
		ContentType: "application/octet-stream",
	})
}

// BlobHash computes the content-address of a payload
func BlobHash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// BlobKey derives the object key for a content blob. The key depends only on
// the hash, so identical content across commits and repositories is stored
// once.
func BlobKey(blobHash string) string {
	return "file_blobs/" + blobHash
}

// PatchKey derives the object key for a patch. Patches are specific to a
// commit/file pairing and are not content-addressed.
func PatchKey(commitHash, filePath string) string {
	return fmt.Sprintf("file_patches/%s/%s.patch", commitHash, EscapePath(filePath))
}

// EscapePath flattens a file path into a single object-key segment
func EscapePath(filePath string) string {
	escaped := strings.ReplaceAll(filePath, "/", "_")
	return strings.ReplaceAll(escaped, "\\", "_")
}

// IsBinary reports whether a payload looks binary (NUL byte in the leading
// bytes, same heuristic git uses)
func IsBinary(data []byte) bool {
	if data == nil {
		return false
	}
	n := len(data)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

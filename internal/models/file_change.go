package models

// ChangeType describes how a file was modified within a commit
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeModified ChangeType = "MODIFIED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeRenamed  ChangeType = "RENAMED"
	ChangeCopied   ChangeType = "COPIED"
)

// FileChange is the normalized record for one file within one commit,
// unique per (commit_hash, file_path).
//
// Invariants: OldFilePath is set only for RENAMED/COPIED; BlobHashBefore is
// nil iff ChangeType is ADDED; BlobHashAfter is nil iff ChangeType is
// DELETED; binary files carry zero line counts.
type FileChange struct {
	FileChangeID string     `json:"file_change_id"`
	CommitHash   string     `json:"commit_hash"`
	FilePath     string     `json:"file_path"`
	ChangeType   ChangeType `json:"change_type"`
	OldFilePath  *string    `json:"old_file_path,omitempty"`
	LinesAdded   int        `json:"lines_added"`
	LinesDeleted int        `json:"lines_deleted"`

	FileModeBefore *string `json:"file_mode_before,omitempty"`
	FileModeAfter  *string `json:"file_mode_after,omitempty"`
	BlobHashBefore *string `json:"blob_hash_before,omitempty"`
	BlobHashAfter  *string `json:"blob_hash_after,omitempty"`

	// Content at or below the inline threshold is embedded directly on the
	// row; larger or binary payloads are externalized under the keys.
	ContentBeforeKey    *string `json:"content_before_key,omitempty"`
	ContentAfterKey     *string `json:"content_after_key,omitempty"`
	PatchKey            *string `json:"patch_key,omitempty"`
	ContentBeforeInline []byte  `json:"content_before_inline,omitempty"`
	ContentAfterInline  []byte  `json:"content_after_inline,omitempty"`

	FileType string `json:"file_type"`
	IsBinary bool   `json:"is_binary"`
}

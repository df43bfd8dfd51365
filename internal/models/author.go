package models

// Author is a shared, append-only dimension referenced by commits through both
// the author and committer roles. AuthorID is the normalized email, or a
// synthesized key when no email is available (flagged low-confidence in
// Metadata).
type Author struct {
	AuthorID string            `json:"author_id"`
	Name     string            `json:"name"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LowConfidence reports whether the author identity was synthesized from
// name and username instead of an email address.
func (a *Author) LowConfidence() bool {
	return a.Metadata["low_confidence"] == "true"
}

package mapper

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/LukasIV/github-commit-collector/internal/github"
	"github.com/LukasIV/github-commit-collector/internal/models"
)

// Mapper converts raw API records into the fixed entity schema
type Mapper struct {
	logger *logrus.Logger
}

// New creates a schema mapper
func New(logger *logrus.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// RepositoryID derives the stable repository identifier from host, owner and
// name. It is never regenerated once a repository record exists.
func RepositoryID(owner, name string) string {
	return strings.ToLower(fmt.Sprintf("github.com/%s/%s", owner, name))
}

// MapRepository converts a raw repository record into the normalized entity
func (m *Mapper) MapRepository(raw *github.RawRepository) *models.Repository {
	return &models.Repository{
		RepositoryID:    RepositoryID(raw.Owner.Login, raw.Name),
		Name:            raw.Name,
		Owner:           raw.Owner.Login,
		Description:     raw.Description,
		PrimaryLanguage: raw.Language,
		CloneURL:        raw.CloneURL,
		CreatedAt:       raw.CreatedAt,
		LastUpdatedAt:   raw.UpdatedAt,
		Metadata: map[string]string{
			"stars":          strconv.Itoa(raw.StargazersCount),
			"forks":          strconv.Itoa(raw.ForksCount),
			"size":           strconv.Itoa(raw.Size),
			"default_branch": raw.DefaultBranch,
			"topics":         strings.Join(raw.Topics, ","),
		},
	}
}

// MapCommit converts a raw commit detail (with its file diffs) into the
// normalized Commit, its author and committer, and an ordered sequence of
// FileChange records. Warnings carry non-fatal mapping anomalies such as
// unrecognized file statuses.
func (m *Mapper) MapCommit(repositoryID string, raw *github.RawCommitDetail) (*models.Commit, *models.Author, *models.Author, []*models.FileChange, []string) {
	author := m.mapAuthor(raw.Commit.Author, login(raw.Author))
	committer := m.mapAuthor(raw.Commit.Committer, login(raw.Committer))

	var warnings []string
	changes := make([]*models.FileChange, 0, len(raw.Files))
	linesAdded, linesDeleted := 0, 0

	for _, file := range raw.Files {
		change, warning := m.mapFileChange(raw.SHA, file)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		changes = append(changes, change)
		linesAdded += change.LinesAdded
		linesDeleted += change.LinesDeleted
	}

	parents := make([]string, 0, len(raw.Parents))
	for _, p := range raw.Parents {
		parents = append(parents, p.SHA)
	}

	// Stats are recomputed from the mapped file changes so the sum invariant
	// holds by construction; the upstream stats block is not trusted.
	commit := &models.Commit{
		CommitHash:        raw.SHA,
		RepositoryID:      repositoryID,
		AuthorID:          author.AuthorID,
		CommitterID:       committer.AuthorID,
		Message:           raw.Commit.Message,
		AuthoredAt:        raw.Commit.Author.Date,
		CommittedAt:       raw.Commit.Committer.Date,
		ParentHashes:      parents,
		TreeHash:          raw.Commit.Tree.SHA,
		StatsLinesAdded:   linesAdded,
		StatsLinesDeleted: linesDeleted,
		StatsFilesChanged: len(changes),
	}

	return commit, author, committer, changes, warnings
}

// mapAuthor derives the author identity. Email is the primary key,
// normalized to lowercase; without one, a synthetic key from name+username
// keeps records linkable but flags them low-confidence.
func (m *Mapper) mapAuthor(sig github.RawSignature, username string) *models.Author {
	email := strings.ToLower(strings.TrimSpace(sig.Email))

	author := &models.Author{
		Name:     sig.Name,
		Username: username,
		Email:    email,
	}

	if email != "" {
		author.AuthorID = email
		return author
	}

	sum := sha1.Sum([]byte(sig.Name + "|" + username))
	author.AuthorID = "synthetic:" + hex.EncodeToString(sum[:])[:16]
	author.Metadata = map[string]string{"low_confidence": "true"}
	return author
}

func (m *Mapper) mapFileChange(commitHash string, file github.RawFile) (*models.FileChange, string) {
	changeType, warning := changeTypeOf(file.Status)
	if warning != "" {
		warning = fmt.Sprintf("file %s: %s", file.Filename, warning)
		m.logger.WithFields(logrus.Fields{
			"commit": commitHash,
			"file":   file.Filename,
			"status": file.Status,
		}).Warn("Unrecognized file status, mapped to MODIFIED")
	}

	change := &models.FileChange{
		FileChangeID: FileChangeID(commitHash, file.Filename),
		CommitHash:   commitHash,
		FilePath:     file.Filename,
		ChangeType:   changeType,
		LinesAdded:   file.Additions,
		LinesDeleted: file.Deletions,
		FileType:     fileTypeOf(file.Filename),
	}

	if changeType == models.ChangeRenamed || changeType == models.ChangeCopied {
		if file.PreviousFilename != "" {
			prev := file.PreviousFilename
			change.OldFilePath = &prev
		}
	} else if file.Patch == "" && file.SHA != "" && file.Additions == 0 && file.Deletions == 0 {
		// Upstream omits patch text and line counts for binary diffs. The
		// resolver's byte sniff has the final word once content is fetched;
		// renames and copies legitimately carry no patch and stay text.
		change.IsBinary = true
	}

	return change, warning
}

// FileChangeID derives the unique identifier of a file change within a commit
func FileChangeID(commitHash, filePath string) string {
	return commitHash + "_" + strings.ReplaceAll(filePath, "/", "_")
}

// changeTypeOf maps the upstream status field onto the change-type enum.
// Rename/copy markers take precedence; unknown statuses map to MODIFIED with
// a warning rather than failing the whole commit.
func changeTypeOf(status string) (models.ChangeType, string) {
	switch status {
	case "renamed":
		return models.ChangeRenamed, ""
	case "copied":
		return models.ChangeCopied, ""
	case "added":
		return models.ChangeAdded, ""
	case "removed":
		return models.ChangeDeleted, ""
	case "modified", "changed":
		return models.ChangeModified, ""
	default:
		return models.ChangeModified, fmt.Sprintf("unrecognized status %q mapped to MODIFIED", status)
	}
}

// fileTypeOf derives the case-normalized file type from the path extension
func fileTypeOf(filePath string) string {
	ext := path.Ext(filePath)
	if ext == "" {
		return "none"
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func login(account *github.RawAccount) string {
	if account == nil {
		return ""
	}
	return account.Login
}

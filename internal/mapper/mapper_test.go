package mapper

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LukasIV/github-commit-collector/internal/github"
	"github.com/LukasIV/github-commit-collector/internal/models"
)

func newTestMapper() *Mapper {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(logger)
}

func rawDetail(sha string, files ...github.RawFile) *github.RawCommitDetail {
	detail := &github.RawCommitDetail{Files: files}
	detail.SHA = sha
	detail.Commit.Message = "test commit"
	detail.Commit.Author = github.RawSignature{
		Name:  "Jane Doe",
		Email: "Jane.Doe@Example.com ",
		Date:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	detail.Commit.Committer = github.RawSignature{
		Name:  "Jane Doe",
		Email: "jane.doe@example.com",
		Date:  time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
	}
	detail.Commit.Tree = github.RawRef{SHA: "tree-" + sha}
	detail.Parents = []github.RawRef{{SHA: "parent-" + sha}}
	return detail
}

func TestRepositoryID(t *testing.T) {
	assert.Equal(t, "github.com/octocat/hello-world", RepositoryID("Octocat", "Hello-World"))
}

func TestMapRepository(t *testing.T) {
	raw := &github.RawRepository{
		Name:            "Hello-World",
		Description:     "demo",
		Language:        "Go",
		CloneURL:        "https://github.com/octocat/Hello-World.git",
		StargazersCount: 3,
		ForksCount:      1,
		DefaultBranch:   "main",
		Topics:          []string{"a", "b"},
	}
	raw.Owner.Login = "octocat"

	repo := newTestMapper().MapRepository(raw)
	assert.Equal(t, "github.com/octocat/hello-world", repo.RepositoryID)
	assert.Equal(t, "octocat", repo.Owner)
	assert.Equal(t, "Go", repo.PrimaryLanguage)
	assert.Equal(t, "3", repo.Metadata["stars"])
	assert.Equal(t, "a,b", repo.Metadata["topics"])
}

func TestMapCommit_StatsSumInvariant(t *testing.T) {
	detail := rawDetail("abc",
		github.RawFile{Filename: "a.go", Status: "modified", Additions: 3, Deletions: 1},
		github.RawFile{Filename: "b.go", Status: "added", Additions: 10},
		github.RawFile{Filename: "c.go", Status: "removed", Deletions: 7},
	)
	// A lying upstream aggregate must be ignored.
	detail.Stats.Additions = 999

	commit, _, _, changes, warnings := newTestMapper().MapCommit("github.com/o/r", detail)
	require.Empty(t, warnings)
	require.Len(t, changes, 3)

	added, deleted := 0, 0
	for _, fc := range changes {
		added += fc.LinesAdded
		deleted += fc.LinesDeleted
	}
	assert.Equal(t, added, commit.StatsLinesAdded)
	assert.Equal(t, deleted, commit.StatsLinesDeleted)
	assert.Equal(t, 13, commit.StatsLinesAdded)
	assert.Equal(t, 8, commit.StatsLinesDeleted)
	assert.Equal(t, 3, commit.StatsFilesChanged)
}

func TestMapCommit_EmptyCommitYieldsZeroStats(t *testing.T) {
	commit, _, _, changes, warnings := newTestMapper().MapCommit("github.com/o/r", rawDetail("empty"))
	assert.Empty(t, changes)
	assert.Empty(t, warnings)
	assert.Zero(t, commit.StatsLinesAdded)
	assert.Zero(t, commit.StatsLinesDeleted)
	assert.Zero(t, commit.StatsFilesChanged)
}

func TestMapCommit_AuthorIdentity(t *testing.T) {
	t.Run("email is normalized", func(t *testing.T) {
		commit, author, committer, _, _ := newTestMapper().MapCommit("github.com/o/r", rawDetail("abc"))
		assert.Equal(t, "jane.doe@example.com", author.AuthorID)
		assert.Equal(t, author.AuthorID, committer.AuthorID, "same person in both roles resolves to one id")
		assert.Equal(t, author.AuthorID, commit.AuthorID)
		assert.False(t, author.LowConfidence())
	})

	t.Run("missing email synthesizes a low-confidence id", func(t *testing.T) {
		detail := rawDetail("abc")
		detail.Commit.Author.Email = ""
		detail.Author = &github.RawAccount{Login: "janedoe"}

		_, author, _, _, _ := newTestMapper().MapCommit("github.com/o/r", detail)
		assert.True(t, author.LowConfidence())
		assert.Contains(t, author.AuthorID, "synthetic:")

		// Same name+username must synthesize the same id across commits.
		_, again, _, _, _ := newTestMapper().MapCommit("github.com/o/r", detail)
		assert.Equal(t, author.AuthorID, again.AuthorID)
	})
}

func TestMapCommit_RenameHandling(t *testing.T) {
	detail := rawDetail("abc", github.RawFile{
		Filename:         "new/path.py",
		Status:           "renamed",
		PreviousFilename: "old/path.py",
	})

	_, _, _, changes, _ := newTestMapper().MapCommit("github.com/o/r", detail)
	require.Len(t, changes, 1)
	fc := changes[0]
	assert.Equal(t, models.ChangeRenamed, fc.ChangeType)
	assert.Equal(t, "new/path.py", fc.FilePath)
	require.NotNil(t, fc.OldFilePath)
	assert.Equal(t, "old/path.py", *fc.OldFilePath)
}

func TestMapCommit_UnknownStatusWarnsNotFails(t *testing.T) {
	detail := rawDetail("abc", github.RawFile{Filename: "weird.txt", Status: "exploded"})

	_, _, _, changes, warnings := newTestMapper().MapCommit("github.com/o/r", detail)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeModified, changes[0].ChangeType)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "weird.txt")
}

func TestMapCommit_BinaryDiffHint(t *testing.T) {
	detail := rawDetail("abc",
		github.RawFile{Filename: "logo.png", Status: "modified", SHA: "blob1"},
		github.RawFile{Filename: "a.go", Status: "modified", SHA: "blob2", Additions: 2, Deletions: 1, Patch: "@@ -1 +1,2 @@"},
		github.RawFile{Filename: "moved.txt", Status: "renamed", SHA: "blob3", PreviousFilename: "old.txt"},
	)

	_, _, _, changes, warnings := newTestMapper().MapCommit("github.com/o/r", detail)
	require.Empty(t, warnings)
	require.Len(t, changes, 3)
	assert.True(t, changes[0].IsBinary, "no patch, no line counts, blob present")
	assert.False(t, changes[1].IsBinary)
	assert.False(t, changes[2].IsBinary, "pure renames carry no patch but stay text")
}

func TestMapCommit_OldPathOnlyForRenames(t *testing.T) {
	detail := rawDetail("abc",
		github.RawFile{Filename: "a.go", Status: "modified", PreviousFilename: "stale.go"},
	)
	_, _, _, changes, _ := newTestMapper().MapCommit("github.com/o/r", detail)
	assert.Nil(t, changes[0].OldFilePath)
}

func TestFileTypeOf(t *testing.T) {
	tests := map[string]string{
		"main.go":        "go",
		"README.MD":      "md",
		"Makefile":       "none",
		"deep/dir/x.PY":  "py",
		"archive.tar.gz": "gz",
	}
	for filePath, want := range tests {
		assert.Equal(t, want, fileTypeOf(filePath), filePath)
	}
}

func TestFileChangeID(t *testing.T) {
	assert.Equal(t, "abc_src_main.go", FileChangeID("abc", "src/main.go"))
}

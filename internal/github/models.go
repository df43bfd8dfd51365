package github

import "time"

// Raw wire types for the subset of the GitHub REST API the collector consumes.

// RawRepository mirrors the repository endpoint response
type RawRepository struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	CloneURL        string    `json:"clone_url"`
	HTMLURL         string    `json:"html_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Size            int       `json:"size"`
	DefaultBranch   string    `json:"default_branch"`
	Topics          []string  `json:"topics"`
}

// RawRef is a sha reference to another git object
type RawRef struct {
	SHA string `json:"sha"`
}

// RawSignature is an author or committer signature on a commit
type RawSignature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// RawAccount is the hosting-side account attached to a commit role
type RawAccount struct {
	Login string `json:"login"`
}

// RawCommit mirrors one entry of the commit listing endpoint
type RawCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string       `json:"message"`
		Author    RawSignature `json:"author"`
		Committer RawSignature `json:"committer"`
		Tree      RawRef       `json:"tree"`
	} `json:"commit"`
	Author    *RawAccount `json:"author"`
	Committer *RawAccount `json:"committer"`
	Parents   []RawRef    `json:"parents"`
	HTMLURL   string      `json:"html_url"`
}

// RawFile mirrors one file diff entry of the commit detail endpoint
type RawFile struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Patch            string `json:"patch"`
	PreviousFilename string `json:"previous_filename"`
	SHA              string `json:"sha"`
}

// RawCommitDetail mirrors the commit detail endpoint, including file diffs
type RawCommitDetail struct {
	RawCommit
	Files []RawFile `json:"files"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
		Total     int `json:"total"`
	} `json:"stats"`
}

// rawContent mirrors the contents endpoint response
type rawContent struct {
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

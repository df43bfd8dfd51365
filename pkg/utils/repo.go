package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRepoRef parses a repository reference into owner and name components.
// Both "owner/name" and full GitHub URLs are accepted.
func ParseRepoRef(ref string) (owner, name string, err error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "://") {
		return parseRepoURL(ref)
	}

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository reference %q, expected owner/name", ref)
	}
	return parts[0], parts[1], nil
}

func parseRepoURL(repoURL string) (owner, name string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", err
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid GitHub repository URL")
	}

	return parts[0], parts[1], nil
}

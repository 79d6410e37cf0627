package github

import (
	"fmt"
	"net/url"
	"regexp"
)

const (
	pubURL  = "https://api.github.com"
	pubHost = "api.github.com"
)

var enterpriseRoot = regexp.MustCompile(`^.*/api/v3`)

// APIRoot returns the root of the API a repository URL from a webhook
// payload belongs to. For public github
//
//	https://api.github.com/repos/my-org/my-repo returns https://api.github.com
//
// and for enterprise github
//
//	https://github.my-domain/api/v3/repos/my-org/my-repo returns https://github.my-domain/api/v3
func APIRoot(repoURL string) (string, error) {
	if repoURL == "" {
		return "", fmt.Errorf("no repository URL to derive the API root from")
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("cannot parse repository URL %q: %v", repoURL, err)
	}
	if u.Host == pubHost {
		return pubURL, nil
	}
	match := enterpriseRoot.FindString(u.Path)
	if match == "" {
		return "", fmt.Errorf("%s is not a github v3 API URL", repoURL)
	}
	root := url.URL{Scheme: u.Scheme, Host: u.Host, Path: match}
	return root.String(), nil
}

package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// NewClient creates a new github client for the apiURL,
// authenticated with the supplied token
func NewClient(ctx context.Context, apiURL, token string, timeout time.Duration) (client *github.Client, err error) {
	tokenService := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tokenClient := oauth2.NewClient(ctx, tokenService)
	tokenClient.Timeout = timeout

	client = github.NewClient(tokenClient)
	if apiURL == "" || apiURL == pubURL {
		return
	}

	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		err = fmt.Errorf("cannot create github client: %v", err)
		return
	}
	client.BaseURL = base
	return
}

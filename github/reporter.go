package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"

	"github.com/redbadger/deployhook/model"
)

const (
	deployTask = "deploy"
	// github rejects longer status descriptions
	maxDescription = 140
)

// Deployment identifies a deployment github is tracking
type Deployment struct {
	ID    int64
	Owner string
	Repo  string
	// URL is the API URL of the deployment
	URL string
	// APIURL is the API root the deployment was created against
	APIURL string
}

// Reporter creates deployments and deployment statuses on github
type Reporter struct {
	// Token is the personal access token used for every call
	Token string
	// APIURL overrides the API root, which is otherwise derived from the
	// repository URL in the webhook payload
	APIURL  string
	Timeout time.Duration
}

// NewReporter returns a Reporter for the given token
func NewReporter(token, apiURL string, timeout time.Duration) *Reporter {
	return &Reporter{Token: token, APIURL: apiURL, Timeout: timeout}
}

// SplitFullName splits owner/name
func SplitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%q is not an owner/name repository", fullName)
	}
	return parts[0], parts[1], nil
}

func (r *Reporter) apiRoot(repoURL string) string {
	if r.APIURL != "" {
		return r.APIURL
	}
	root, err := APIRoot(repoURL)
	if err != nil {
		log.WithError(err).Debug("falling back to public github")
		return pubURL
	}
	return root
}

// Handle returns the Deployment for a deployment github already created,
// e.g. the one a deployment event was sent for
func (r *Reporter) Handle(req model.DeploymentRequest) (*Deployment, error) {
	owner, repo, err := SplitFullName(req.FullName)
	if err != nil {
		return nil, err
	}
	return &Deployment{
		ID:     req.DeploymentID,
		Owner:  owner,
		Repo:   repo,
		APIURL: r.apiRoot(req.URL),
	}, nil
}

// CreateDeployment announces a deployment of req to github. The requested
// SHA is deployed when known, otherwise the ref.
func (r *Reporter) CreateDeployment(ctx context.Context, req model.DeploymentRequest, environment string) (*Deployment, error) {
	owner, repo, err := SplitFullName(req.FullName)
	if err != nil {
		return nil, err
	}
	root := r.apiRoot(req.URL)
	client, err := NewClient(ctx, root, r.Token, r.Timeout)
	if err != nil {
		return nil, err
	}

	ref := req.SHA
	if ref == "" {
		ref = req.Ref
	}
	description := fmt.Sprintf("Deploying %s to %s", req.Ref, environment)
	d, _, err := client.Repositories.CreateDeployment(ctx, owner, repo, &github.DeploymentRequest{
		Ref:              github.String(ref),
		Task:             github.String(deployTask),
		AutoMerge:        github.Bool(false),
		RequiredContexts: &[]string{},
		Payload:          map[string]string{"deploy_user": req.Actor},
		Environment:      github.String(environment),
		Description:      github.String(truncate(description)),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create deployment for %s: %v", req.FullName, err)
	}

	log.WithFields(log.Fields{
		"repo":       req.FullName,
		"ref":        ref,
		"deployment": d.GetID(),
	}).Info("deployment created")
	return &Deployment{
		ID:     d.GetID(),
		Owner:  owner,
		Repo:   repo,
		URL:    d.GetURL(),
		APIURL: root,
	}, nil
}

// UpdateDeployment posts a status for d. It reports whether github accepted
// it; failures are logged, never returned.
func (r *Reporter) UpdateDeployment(ctx context.Context, d *Deployment, state model.State, message string) bool {
	if d == nil || d.ID == 0 {
		log.WithField("state", state).Warn("no deployment to update")
		return false
	}
	fields := log.Fields{
		"repo":       d.Owner + "/" + d.Repo,
		"deployment": d.ID,
		"state":      state,
	}

	client, err := NewClient(ctx, d.APIURL, r.Token, r.Timeout)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("updating deployment")
		return false
	}
	status := &github.DeploymentStatusRequest{
		State: github.String(string(state)),
	}
	if message != "" {
		status.Description = github.String(truncate(message))
	}
	_, resp, err := client.Repositories.CreateDeploymentStatus(ctx, d.Owner, d.Repo, d.ID, status)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("updating deployment")
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(fields).WithField("code", resp.StatusCode).Error("updating deployment")
		return false
	}
	log.WithFields(fields).Info("deployment updated")
	return true
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDescription {
		return s
	}
	return string(r[:maxDescription-3]) + "..."
}

// Package notify relays deployment statuses to a chat incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
)

const template = "Repository <%s|%s> has been deployed by *%s* with <%s/statuses|%s>."

// Relay posts messages to a Slack compatible webhook URL
type Relay struct {
	URL    string
	Client *http.Client
}

// NewRelay returns a Relay for url; an empty url only formats messages
func NewRelay(url string, timeout time.Duration) *Relay {
	return &Relay{URL: url, Client: &http.Client{Timeout: timeout}}
}

// DeployUser returns who a deployment was made for: the deploy_user the
// deployment was created with, or else its creator
func DeployUser(d *github.Deployment) string {
	if d == nil {
		return ""
	}
	var payload struct {
		DeployUser string `json:"deploy_user"`
	}
	if len(d.Payload) > 0 && json.Unmarshal(d.Payload, &payload) == nil && payload.DeployUser != "" {
		return payload.DeployUser
	}
	return d.GetCreator().GetLogin()
}

// Message formats the chat message for a deployment status event
func Message(e *github.DeploymentStatusEvent) string {
	repo := e.GetRepo()
	deployment := e.GetDeployment()
	return fmt.Sprintf(template,
		repo.GetURL(),
		repo.GetFullName(),
		DeployUser(deployment),
		deployment.GetURL(),
		e.GetDeploymentStatus().GetState(),
	)
}

// Notify sends the message for e and returns it. Delivery is best effort:
// failures are logged and the message is returned regardless.
func (r *Relay) Notify(ctx context.Context, e *github.DeploymentStatusEvent) string {
	msg := Message(e)
	if r.URL == "" {
		log.Debug("no chat webhook configured")
		return msg
	}
	if err := r.post(ctx, msg); err != nil {
		log.WithError(err).WithField("repo", e.GetRepo().GetFullName()).Warn("notifying chat")
	}
	return msg
}

func (r *Relay) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cannot build chat request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach chat webhook: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("chat webhook answered %s", resp.Status)
	}
	return nil
}

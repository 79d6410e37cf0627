package agent

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"

	"github.com/redbadger/deployhook/constants"
	"github.com/redbadger/deployhook/model"
	"github.com/redbadger/deployhook/notify"
	"github.com/redbadger/deployhook/signature"
)

const bodyKey = "deployhook.body"

// Event types the router dispatches
const (
	PingEvent             = "ping"
	PullRequestEvent      = "pull_request"
	DeploymentEvent       = "deployment"
	DeploymentStatusEvent = "deployment_status"
)

// Deployer runs deployments
type Deployer interface {
	Execute(ctx context.Context, req model.DeploymentRequest) model.Outcome
}

// Notifier relays deployment statuses to people
type Notifier interface {
	Notify(ctx context.Context, e *github.DeploymentStatusEvent) string
}

type handler struct {
	deployer Deployer
	notifier Notifier
}

// NewRouter returns the webhook endpoint on path, guarded by secret, and an
// unauthenticated /healthz
func NewRouter(path, secret string, deployer Deployer, notifier Notifier) *gin.Engine {
	h := &handler{deployer: deployer, notifier: notifier}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.Any(path, Authorize(secret), h.route)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"event":    c.GetHeader(constants.EventHeader),
			"delivery": c.GetHeader(constants.DeliveryHeader),
			"duration": time.Since(start),
		}).Info("request")
	}
}

// Authorize rejects requests whose X-Hub-Signature does not match the body,
// and stores the verified body for the handlers that follow
func Authorize(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.WithError(err).Warn("reading request body")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if !signature.Authorize(body, c.GetHeader(constants.SignatureHeader), secret) {
			log.WithField("delivery", c.GetHeader(constants.DeliveryHeader)).Warn("invalid signature")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Set(bodyKey, body)
		c.Next()
	}
}

func (h *handler) route(c *gin.Context) {
	eventType := c.GetHeader(constants.EventHeader)
	switch eventType {
	case PingEvent:
		c.String(http.StatusOK, constants.Greeting)
		return
	case PullRequestEvent, DeploymentEvent, DeploymentStatusEvent:
	default:
		log.WithField("event", eventType).Info("no handler for event")
		c.String(http.StatusNotImplemented, http.StatusText(http.StatusNotImplemented))
		return
	}

	body := c.MustGet(bodyKey).([]byte)
	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		log.WithError(err).WithField("event", eventType).Warn("decoding payload")
		c.String(http.StatusBadRequest, "invalid payload")
		return
	}
	event := model.IncomingEvent{
		Delivery: c.GetHeader(constants.DeliveryHeader),
		Type:     eventType,
		Body:     body,
		Payload:  payload,
	}
	log.WithFields(log.Fields{
		"event":    event.Type,
		"delivery": event.Delivery,
		"bytes":    len(event.Body),
	}).Debug("routing")

	// github gives up on a delivery long before a pull can finish, which
	// must not abort the deployment
	ctx := context.WithoutCancel(c.Request.Context())
	switch p := event.Payload.(type) {
	case *github.PullRequestEvent:
		h.pullRequest(ctx, c, p)
	case *github.DeploymentEvent:
		h.deployment(ctx, c, p)
	case *github.DeploymentStatusEvent:
		c.String(http.StatusOK, h.notifier.Notify(ctx, p))
	}
}

func (h *handler) pullRequest(ctx context.Context, c *gin.Context, p *github.PullRequestEvent) {
	pr := p.GetPullRequest()
	log.WithFields(log.Fields{
		"action": p.GetAction(),
		"number": pr.GetNumber(),
		"sha":    pr.GetHead().GetSHA(),
	}).Info("pull request")

	if p.GetAction() != "closed" {
		c.String(http.StatusOK, constants.PRCreated)
		return
	}
	if !pr.GetMerged() {
		c.String(http.StatusOK, constants.PRClosed)
		return
	}

	repo := pr.GetHead().GetRepo()
	if repo.GetFullName() == "" {
		repo = p.GetRepo()
	}
	actor := pr.GetMergedBy().GetLogin()
	if actor == "" {
		actor = p.GetSender().GetLogin()
	}
	outcome := h.deployer.Execute(ctx, model.DeploymentRequest{
		FullName: repo.GetFullName(),
		URL:      repo.GetURL(),
		Ref:      pr.GetHead().GetRef(),
		SHA:      pr.GetMergeCommitSHA(),
		Actor:    actor,
	})
	log.WithFields(log.Fields{
		"repo":     repo.GetFullName(),
		"state":    outcome.State,
		"canceled": outcome.Canceled,
	}).Info("merged pull request deployed")
	c.String(http.StatusOK, constants.PRMerged)
}

func (h *handler) deployment(ctx context.Context, c *gin.Context, p *github.DeploymentEvent) {
	d := p.GetDeployment()
	outcome := h.deployer.Execute(ctx, model.DeploymentRequest{
		FullName:     p.GetRepo().GetFullName(),
		URL:          p.GetRepo().GetURL(),
		Ref:          d.GetRef(),
		SHA:          d.GetSHA(),
		Actor:        notify.DeployUser(d),
		DeploymentID: d.GetID(),
	})
	switch {
	case outcome.Canceled:
		c.String(http.StatusOK, constants.DeploymentCancel)
	case outcome.Succeeded():
		c.String(http.StatusOK, constants.DeploymentDone)
	default:
		c.String(http.StatusInternalServerError, outcome.Message)
	}
}

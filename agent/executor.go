package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/redbadger/deployhook/config"
	"github.com/redbadger/deployhook/constants"
	"github.com/redbadger/deployhook/git"
	gh "github.com/redbadger/deployhook/github"
	"github.com/redbadger/deployhook/model"
)

// Reporter tells github how a deployment is going
type Reporter interface {
	Handle(req model.DeploymentRequest) (*gh.Deployment, error)
	CreateDeployment(ctx context.Context, req model.DeploymentRequest, environment string) (*gh.Deployment, error)
	UpdateDeployment(ctx context.Context, d *gh.Deployment, state model.State, message string) bool
}

// Runner runs a command in a working directory
type Runner interface {
	Run(ctx context.Context, workingDir string, args ...string) git.Result
}

// Executor updates the local checkout of a configured repository.
// Deployments of one checkout run one at a time.
type Executor struct {
	config   *config.Config
	reporter Reporter
	runner   Runner
	head     func(dir string) (string, error)
	// locks has one mutex per checkout folder and is not written after
	// NewExecutor returns
	locks map[string]*sync.Mutex
}

// NewExecutor returns an Executor for the repositories in cfg
func NewExecutor(cfg *config.Config, reporter Reporter, runner Runner) *Executor {
	locks := make(map[string]*sync.Mutex)
	for _, r := range cfg.Repositories() {
		if _, ok := locks[r.Folder]; !ok {
			locks[r.Folder] = &sync.Mutex{}
		}
	}
	return &Executor{
		config:   cfg,
		reporter: reporter,
		runner:   runner,
		head:     git.Head,
		locks:    locks,
	}
}

// Execute runs the deployment described by req and reports it to github.
// Every failure ends up in the returned Outcome.
func (e *Executor) Execute(ctx context.Context, req model.DeploymentRequest) model.Outcome {
	fields := log.Fields{
		"repo":  req.FullName,
		"ref":   req.Ref,
		"actor": req.Actor,
	}
	repo, ok := e.config.Lookup(req.FullName)
	if !ok {
		log.WithFields(fields).Warn("repository is not configured, deployment canceled")
		return model.Outcome{
			State:    model.StateError,
			Message:  constants.DeploymentCancel,
			Canceled: true,
		}
	}

	lock := e.locks[repo.Folder]
	lock.Lock()
	defer lock.Unlock()

	deployment := e.track(ctx, req, repo)
	if deployment != nil {
		e.reporter.UpdateDeployment(ctx, deployment, model.StatePending, constants.DeploymentStarted)
	}

	outcome := e.update(ctx, repo)
	log.WithFields(fields).WithFields(log.Fields{
		"state": outcome.State,
		"head":  outcome.Head,
	}).Info("deployment finished")
	if !outcome.Succeeded() {
		log.WithFields(fields).WithField("output", outcome.Output).Error(outcome.Message)
	}

	description := outcome.Message
	if outcome.Succeeded() && outcome.Head != "" {
		description = "Deployed " + outcome.Head
	}
	e.reporter.UpdateDeployment(ctx, deployment, outcome.State, description)
	return outcome
}

// track returns the github deployment req belongs to, creating one when
// github does not know about it yet. A nil result means nothing can be
// reported, which does not stop the deployment.
func (e *Executor) track(ctx context.Context, req model.DeploymentRequest, repo config.Repository) *gh.Deployment {
	if req.DeploymentID != 0 {
		d, err := e.reporter.Handle(req)
		if err != nil {
			log.WithError(err).WithField("repo", req.FullName).Error("tracking deployment")
			return nil
		}
		return d
	}
	d, err := e.reporter.CreateDeployment(ctx, req, repo.Environment)
	if err != nil {
		log.WithError(err).WithField("repo", req.FullName).Error("creating deployment")
		return nil
	}
	return d
}

// run executes one git command under its own command timeout
func (e *Executor) run(ctx context.Context, dir string, args ...string) git.Result {
	if e.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.CommandTimeout)
		defer cancel()
	}
	return e.runner.Run(ctx, dir, args...)
}

func (e *Executor) update(ctx context.Context, repo config.Repository) model.Outcome {
	steps := [][]string{
		{"fetch", repo.Remote},
		{"pull", repo.Remote, repo.Branch},
	}
	var output strings.Builder
	for _, args := range steps {
		res := e.run(ctx, repo.Folder, args...)
		output.WriteString(res.Output())
		switch res.Kind {
		case git.ProcessError:
			return model.Outcome{
				State:   model.StateError,
				Message: fmt.Sprintf("command: %s ERROR: %s", res.Command, res.Stderr),
				Output:  output.String(),
			}
		case git.LaunchError:
			return model.Outcome{
				State:   model.StateError,
				Message: res.Err.Error(),
				Output:  output.String(),
			}
		}
	}

	outcome := model.Outcome{State: model.StateSuccess, Output: output.String()}
	head, err := e.head(repo.Folder)
	if err != nil {
		log.WithError(err).WithField("dir", repo.Folder).Debug("reading HEAD")
	}
	outcome.Head = head
	return outcome
}

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redbadger/deployhook/config"
	"github.com/redbadger/deployhook/constants"
	"github.com/redbadger/deployhook/git"
	gh "github.com/redbadger/deployhook/github"
	"github.com/redbadger/deployhook/model"
)

type statusUpdate struct {
	deployment *gh.Deployment
	state      model.State
	message    string
}

type fakeReporter struct {
	mu        sync.Mutex
	createErr error
	created   []model.DeploymentRequest
	handled   []model.DeploymentRequest
	updates   []statusUpdate
}

func (f *fakeReporter) Handle(req model.DeploymentRequest) (*gh.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, req)
	return &gh.Deployment{ID: req.DeploymentID, Owner: "redbadger", Repo: "website"}, nil
}

func (f *fakeReporter) CreateDeployment(ctx context.Context, req model.DeploymentRequest, environment string) (*gh.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gh.Deployment{ID: 42, Owner: "redbadger", Repo: "website"}, nil
}

func (f *fakeReporter) UpdateDeployment(ctx context.Context, d *gh.Deployment, state model.State, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{d, state, message})
	return d != nil
}

// fakeRunner answers each git subcommand with a canned Result
type fakeRunner struct {
	results map[string]git.Result
	calls   [][]string
	dirs    []string
}

func (f *fakeRunner) Run(ctx context.Context, workingDir string, args ...string) git.Result {
	f.calls = append(f.calls, args)
	f.dirs = append(f.dirs, workingDir)
	res, ok := f.results[args[0]]
	if !ok {
		res = git.Result{Kind: git.Success, Stdout: args[0] + " ok\n"}
	}
	res.Command = "git " + strings.Join(args, " ")
	return res
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New("s3cr3t", "t0k3n", config.Repository{Repo: "redbadger/website", Folder: "/srv/website"})
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	return cfg
}

func newTestExecutor(t *testing.T, reporter *fakeReporter, runner Runner) *Executor {
	e := NewExecutor(newTestConfig(t), reporter, runner)
	e.head = func(string) (string, error) { return "abc123", nil }
	return e
}

var deployRequest = model.DeploymentRequest{
	FullName: "redbadger/website",
	Ref:      "master",
	SHA:      "abc123",
	Actor:    "octocat",
}

func TestExecuteCanceled(t *testing.T) {
	reporter := &fakeReporter{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, reporter, runner)

	req := deployRequest
	req.FullName = "redbadger/unknown"
	got := e.Execute(context.Background(), req)

	if !got.Canceled || got.Succeeded() {
		t.Errorf("Execute() = %+v, want canceled", got)
	}
	if got.Message != constants.DeploymentCancel {
		t.Errorf("Execute() message = %q, want %q", got.Message, constants.DeploymentCancel)
	}
	if len(reporter.created) != 0 || len(reporter.updates) != 0 {
		t.Errorf("reporter was called: %d creates, %d updates", len(reporter.created), len(reporter.updates))
	}
	if len(runner.calls) != 0 {
		t.Errorf("commands were run: %v", runner.calls)
	}
}

func TestExecuteSuccess(t *testing.T) {
	reporter := &fakeReporter{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, reporter, runner)

	got := e.Execute(context.Background(), deployRequest)

	if !got.Succeeded() || got.Message != "" || got.Head != "abc123" {
		t.Errorf("Execute() = %+v, want success at abc123", got)
	}
	if got.Output != "fetch ok\npull ok\n" {
		t.Errorf("Execute() output = %q", got.Output)
	}
	wantCalls := [][]string{{"fetch", "origin"}, {"pull", "origin", "master"}}
	if len(runner.calls) != len(wantCalls) {
		t.Fatalf("commands run = %v, want %v", runner.calls, wantCalls)
	}
	for i := range wantCalls {
		if strings.Join(runner.calls[i], " ") != strings.Join(wantCalls[i], " ") {
			t.Errorf("command %d = %v, want %v", i, runner.calls[i], wantCalls[i])
		}
		if runner.dirs[i] != "/srv/website" {
			t.Errorf("command %d ran in %v", i, runner.dirs[i])
		}
	}
	if len(reporter.created) != 1 {
		t.Fatalf("reporter created %d deployments, want 1", len(reporter.created))
	}
	wantStates := []model.State{model.StatePending, model.StateSuccess}
	if len(reporter.updates) != len(wantStates) {
		t.Fatalf("reporter updates = %+v", reporter.updates)
	}
	for i, s := range wantStates {
		if reporter.updates[i].state != s {
			t.Errorf("update %d state = %v, want %v", i, reporter.updates[i].state, s)
		}
	}
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name        string
		results     map[string]git.Result
		wantMessage string
		wantCalls   int
	}{
		{
			"pull exits non-zero",
			map[string]git.Result{"pull": {Kind: git.ProcessError, ExitCode: 1, Stdout: "output", Stderr: "error"}},
			"command: git pull origin master ERROR: error",
			2,
		},
		{
			"fetch exits non-zero",
			map[string]git.Result{"fetch": {Kind: git.ProcessError, ExitCode: 128, Stderr: "fatal: 'origin' does not appear to be a git repository\n"}},
			"command: git fetch origin ERROR: fatal: 'origin' does not appear to be a git repository\n",
			1,
		},
		{
			"git cannot be started",
			map[string]git.Result{"fetch": {Kind: git.LaunchError, ExitCode: -1, Err: errors.New(`exec: "git": executable file not found in $PATH`)}},
			`exec: "git": executable file not found in $PATH`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &fakeReporter{}
			runner := &fakeRunner{results: tt.results}
			e := newTestExecutor(t, reporter, runner)

			got := e.Execute(context.Background(), deployRequest)

			if got.Succeeded() || got.Canceled {
				t.Fatalf("Execute() = %+v, want error", got)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("Execute() message = %q, want %q", got.Message, tt.wantMessage)
			}
			if len(runner.calls) != tt.wantCalls {
				t.Errorf("commands run = %v, want %d", runner.calls, tt.wantCalls)
			}
			last := reporter.updates[len(reporter.updates)-1]
			if last.state != model.StateError || last.message != tt.wantMessage {
				t.Errorf("last update = %+v, want error %q", last, tt.wantMessage)
			}
		})
	}
}

func TestExecuteCreateFails(t *testing.T) {
	reporter := &fakeReporter{createErr: errors.New("422 Validation Failed")}
	runner := &fakeRunner{}
	e := newTestExecutor(t, reporter, runner)

	got := e.Execute(context.Background(), deployRequest)

	if !got.Succeeded() {
		t.Errorf("Execute() = %+v, want success when github cannot be told", got)
	}
	if len(runner.calls) != 2 {
		t.Errorf("commands run = %v, want fetch and pull", runner.calls)
	}
	if len(reporter.updates) != 1 || reporter.updates[0].deployment != nil {
		t.Errorf("reporter updates = %+v, want one update without a deployment", reporter.updates)
	}
}

func TestExecuteExistingDeployment(t *testing.T) {
	reporter := &fakeReporter{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, reporter, runner)

	req := deployRequest
	req.DeploymentID = 7
	got := e.Execute(context.Background(), req)

	if !got.Succeeded() {
		t.Errorf("Execute() = %+v, want success", got)
	}
	if len(reporter.created) != 0 {
		t.Errorf("reporter created %d deployments, want 0", len(reporter.created))
	}
	if len(reporter.handled) != 1 {
		t.Fatalf("reporter handled %d deployments, want 1", len(reporter.handled))
	}
	last := reporter.updates[len(reporter.updates)-1]
	if last.deployment.ID != 7 || last.message != "Deployed abc123" {
		t.Errorf("last update = %+v", last)
	}
}

// slowRunner takes delay per command, gives up when ctx is done, and
// remembers the most commands it ever saw running at once
type slowRunner struct {
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (f *slowRunner) Run(ctx context.Context, workingDir string, args ...string) git.Result {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	res := git.Result{Command: "git " + strings.Join(args, " ")}
	select {
	case <-time.After(f.delay):
		res.Kind = git.Success
	case <-ctx.Done():
		res.Kind = git.LaunchError
		res.Err = ctx.Err()
	}
	return res
}

func TestExecuteOneCheckoutAtATime(t *testing.T) {
	reporter := &fakeReporter{}
	runner := &slowRunner{delay: 20 * time.Millisecond}
	e := newTestExecutor(t, reporter, runner)

	merged := deployRequest
	event := deployRequest
	event.DeploymentID = 42

	var wg sync.WaitGroup
	outcomes := make([]model.Outcome, 4)
	for i := range outcomes {
		req := merged
		if i%2 == 1 {
			req = event
		}
		wg.Add(1)
		go func(i int, req model.DeploymentRequest) {
			defer wg.Done()
			outcomes[i] = e.Execute(context.Background(), req)
		}(i, req)
	}
	wg.Wait()

	if peak := runner.peak.Load(); peak != 1 {
		t.Errorf("%d commands ran in the same checkout at once, want 1", peak)
	}
	for i, o := range outcomes {
		if !o.Succeeded() {
			t.Errorf("outcome %d = %+v, want success", i, o)
		}
	}
	for _, u := range reporter.updates {
		if u.state == model.StateError {
			t.Errorf("reporter got an error status: %+v", u)
		}
	}
}

func TestExecuteOtherCheckoutsRunTogether(t *testing.T) {
	cfg, err := config.New("s3cr3t", "t0k3n",
		config.Repository{Repo: "redbadger/website", Folder: "/srv/website"},
		config.Repository{Repo: "redbadger/api", Folder: "/srv/api"},
	)
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	runner := &slowRunner{delay: 50 * time.Millisecond}
	e := NewExecutor(cfg, &fakeReporter{}, runner)
	e.head = func(string) (string, error) { return "abc123", nil }

	var wg sync.WaitGroup
	for _, name := range []string{"redbadger/website", "redbadger/api"} {
		req := deployRequest
		req.FullName = name
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Execute(context.Background(), req)
		}()
	}
	wg.Wait()

	if peak := runner.peak.Load(); peak != 2 {
		t.Errorf("peak concurrent commands = %d, want 2", peak)
	}
}

func TestExecuteTimeoutPerCommand(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		delay   time.Duration
		want    model.State
	}{
		{"each command within its timeout", 300 * time.Millisecond, 200 * time.Millisecond, model.StateSuccess},
		{"command exceeds its timeout", 50 * time.Millisecond, time.Second, model.StateError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &fakeReporter{}
			e := newTestExecutor(t, reporter, &slowRunner{delay: tt.delay})
			e.config.CommandTimeout = tt.timeout

			got := e.Execute(context.Background(), deployRequest)

			if got.State != tt.want {
				t.Errorf("Execute() = %+v, want %v", got, tt.want)
			}
			if tt.want == model.StateError && !strings.Contains(got.Message, context.DeadlineExceeded.Error()) {
				t.Errorf("Execute() message = %q, want a deadline error", got.Message)
			}
		})
	}
}

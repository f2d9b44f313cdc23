// Package orch runs one backlog task end to end: select the task, open its
// branch, converge the developer and reviewer, run the project checks, then
// mark the task done and commit.
//
// Fatal task outcomes (no implementation, no review, round limit, failing
// checks) append a blocking entry to problems.yaml and leave the branch
// uncommitted for inspection.
package orch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devloop/pkg/agent"
	"devloop/pkg/agent/llm"
	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/agent/toolloop"
	"devloop/pkg/backlog"
	"devloop/pkg/checks"
	"devloop/pkg/coder"
	"devloop/pkg/config"
	"devloop/pkg/contextmgr"
	"devloop/pkg/convergence"
	"devloop/pkg/eventlog"
	"devloop/pkg/exec"
	"devloop/pkg/git"
	"devloop/pkg/logx"
	"devloop/pkg/patch"
	"devloop/pkg/persistence"
	"devloop/pkg/reviewer"
	"devloop/pkg/sandbox"
)

// ErrNoTask is returned when no backlog task is eligible.
var ErrNoTask = errors.New("no eligible task")

// Generators supplies the remote call for each role.
type Generators struct {
	Developer agent.Generator
	Reviewer  agent.Generator
}

// Options configures an Orchestrator.
//
//nolint:govet // fieldalignment: grouped by concern
type Options struct {
	// RepoDir is the target repository.
	RepoDir string

	// Config overrides <RepoDir>/.devloop/config.json.
	Config *config.Config

	// Generators overrides the model clients built from Config.
	Generators *Generators

	Recorder  metrics.Recorder
	GitRunner git.GitRunner
	Executor  exec.Executor

	// Now stamps the task log directory. Defaults to time.Now.
	Now func() time.Time
}

// RunOptions selects what RunTask does.
type RunOptions struct {
	// TaskID runs a specific task; empty picks the next eligible one.
	TaskID string

	// DryRun converges and runs checks but creates no branch, records no
	// completion and makes no commit. Applied changes stay in the tree.
	DryRun bool
}

// Report summarizes a task run. Problem holds the blocking problem recorded
// for the task, if any. Usage is nil when no model client recorded calls.
type Report struct {
	Task           backlog.Task
	RunID          string
	LogDir         string
	Status         persistence.RunStatus
	Rounds         int
	ReviewComments int
	Checks         *checks.Report
	Commit         *git.CommitResult
	Problem        string
	Usage          *metrics.TaskUsage
}

// Orchestrator runs backlog tasks against one repository.
type Orchestrator struct {
	opts   Options
	cfg    *config.Config
	store  *backlog.YAMLStore
	usage  *metrics.InternalRecorder
	logger *logx.Logger
}

// New loads the configuration and backlog store for opts.RepoDir.
func New(opts Options) (*Orchestrator, error) {
	dir, err := filepath.Abs(opts.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	opts.RepoDir = dir

	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(dir); err != nil {
			return nil, err
		}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}
	usage := metrics.NewInternalRecorder()
	opts.Recorder = metrics.Fanout(opts.Recorder, usage)
	if opts.Executor == nil {
		opts.Executor = exec.NewLocalExec()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store := backlog.NewYAMLStore(
		filepath.Join(dir, cfg.Paths.Backlog),
		filepath.Join(dir, cfg.Paths.Done),
		filepath.Join(dir, cfg.Paths.Problems),
	)
	return &Orchestrator{
		opts:   opts,
		cfg:    cfg,
		store:  store,
		usage:  usage,
		logger: logx.NewLogger("orch"),
	}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// Store returns the backlog store.
func (o *Orchestrator) Store() *backlog.YAMLStore {
	return o.store
}

// NextTask returns the next eligible task without running it.
func (o *Orchestrator) NextTask() (backlog.Task, bool, error) {
	if err := CheckContract(o.opts.RepoDir, o.cfg); err != nil {
		return backlog.Task{}, false, err
	}
	return backlog.NewScheduler(o.store).Next()
}

// RunTask runs one task. The returned report is non-nil whenever a task
// was selected, including when err is non-nil.
func (o *Orchestrator) RunTask(ctx context.Context, ro RunOptions) (*Report, error) {
	dir := o.opts.RepoDir
	if err := CheckContract(dir, o.cfg); err != nil {
		return nil, err
	}

	task, err := o.selectTask(ro.TaskID)
	if err != nil {
		return nil, err
	}
	ctx = logx.WithTask(ctx, task.ID)
	report := &Report{Task: task}
	o.logger.Info("task %s: %s", task.ID, task.Title)

	logsDir := topLevel(o.cfg.Paths.TaskLogs)
	repo := git.NewRepo(dir, o.opts.GitRunner, logsDir, config.ProjectConfigDir)
	checkpoint := git.NewCheckpoint(repo, o.cfg.Git.BranchName)
	if !ro.DryRun {
		if err := checkpoint.Begin(ctx, task.ID); err != nil {
			return report, err
		}
	}

	taskLog, err := eventlog.NewTaskLog(filepath.Join(dir, o.cfg.Paths.TaskLogs), task.ID, o.opts.Now())
	if err != nil {
		return report, err
	}
	defer func() { _ = taskLog.Close() }()
	report.LogDir = taskLog.Dir()

	db, err := persistence.Open(o.cfg.DBPath(dir))
	if err != nil {
		return report, err
	}
	defer func() { _ = db.Close() }()
	journal, err := db.StartRun(task.ID)
	if err != nil {
		return report, err
	}
	report.RunID = journal.RunID()
	sink := eventlog.Multi(taskLog, journal)

	finish := func(status persistence.RunStatus, runErr error) {
		report.Status = status
		report.Usage = o.usage.Usage(task.ID)
		update := persistence.RunUpdate{
			Status:     status,
			Branch:     checkpoint.Branch(),
			BaseCommit: checkpoint.Base(),
			Rounds:     report.Rounds,
		}
		if report.Commit != nil {
			update.CommitHash = report.Commit.Head
		}
		if runErr != nil {
			update.Error = runErr.Error()
		}
		if err := journal.Finish(update); err != nil {
			o.logger.Warn("failed to finish run %s: %v", journal.RunID(), err)
		}
		if err := sink.WriteJSON("report.json", report); err != nil {
			o.logger.Warn("failed to record report: %v", err)
		}
	}

	ctrl, err := o.controller(dir, logsDir, sink)
	if err != nil {
		finish(persistence.RunFailed, err)
		return report, err
	}

	res, err := ctrl.Run(ctx, contextmgr.NewState(), task)
	if res != nil {
		report.Rounds = res.Rounds
	}
	if err != nil {
		if isTaskFailure(err) {
			report.Problem = fmt.Sprintf("Task could not be completed: %v", err)
			o.blockTask(task, report.Problem, ro.DryRun)
			finish(persistence.RunBlocked, err)
			return report, err
		}
		finish(persistence.RunFailed, err)
		return report, err
	}
	report.ReviewComments = len(res.Review.Comments)

	checkReport, err := o.runChecks(ctx, dir)
	report.Checks = checkReport
	if checkReport != nil {
		if werr := sink.WriteText("checks.txt", checkReport.Summary()); werr != nil {
			o.logger.Warn("failed to record checks: %v", werr)
		}
	}
	if err != nil {
		if errors.Is(err, checks.ErrChecksFailed) {
			report.Problem = "Project checks failed:\n" + checkReport.Summary()
			o.blockTask(task, report.Problem, ro.DryRun)
			finish(persistence.RunBlocked, err)
			return report, err
		}
		finish(persistence.RunFailed, err)
		return report, err
	}

	if ro.DryRun {
		o.logger.Info("task %s: dry run converged in %d round(s); nothing committed", task.ID, report.Rounds)
		finish(persistence.RunDryRun, nil)
		return report, nil
	}

	// done.yaml is updated before the commit so the task branch carries it.
	if err := o.store.AppendDone(task.ID, task.Title); err != nil {
		finish(persistence.RunFailed, err)
		return report, err
	}
	commit, err := checkpoint.Commit(ctx, commitMessage(task, res.CommitMessage))
	if err != nil {
		finish(persistence.RunFailed, err)
		return report, err
	}
	report.Commit = commit
	o.logger.Info("task %s committed on %s after %d round(s)", task.ID, commit.Branch, report.Rounds)
	finish(persistence.RunCommitted, nil)
	return report, nil
}

func (o *Orchestrator) selectTask(id string) (backlog.Task, error) {
	sched := backlog.NewScheduler(o.store)
	if id != "" {
		return sched.Select(id)
	}
	task, ok, err := sched.Next()
	if err != nil {
		return backlog.Task{}, err
	}
	if !ok {
		return backlog.Task{}, ErrNoTask
	}
	return task, nil
}

func (o *Orchestrator) controller(dir, logsDir string, sink eventlog.Sink) (*convergence.Controller, error) {
	facts, err := os.ReadFile(filepath.Join(dir, o.cfg.Paths.Facts))
	if err != nil {
		return nil, logx.Wrap(err, "failed to read project facts")
	}

	noise := append([]string{logsDir}, o.cfg.Sandbox.ExtraNoise...)
	acc, err := sandbox.New(dir, noise...)
	if err != nil {
		return nil, err
	}

	gens := o.opts.Generators
	if gens == nil {
		if gens, err = o.buildGenerators(); err != nil {
			return nil, err
		}
	}

	executor := toolloop.NewSandboxExecutor(acc)
	rec := o.opts.Recorder
	devLoop := toolloop.New(gens.Developer, executor, sink, logx.NewLogger(coder.RoleName)).WithRecorder(rec)
	revLoop := toolloop.New(gens.Reviewer, executor, sink, logx.NewLogger(reviewer.RoleName)).WithRecorder(rec)

	dev, err := coder.New(devLoop, o.cfg.Loop.MaxStepsDeveloper)
	if err != nil {
		return nil, err
	}
	rev, err := reviewer.New(revLoop, o.cfg.Loop.MaxStepsReviewer)
	if err != nil {
		return nil, err
	}

	return convergence.New(dev, rev, patch.New(acc), nil,
		convergence.WithSink(sink),
		convergence.WithMaxRounds(o.cfg.Loop.MaxRounds),
		convergence.WithRecorder(rec),
		convergence.WithFacts(string(facts)),
	)
}

func (o *Orchestrator) buildGenerators() (*Generators, error) {
	build := func(role, model string, temperature float32) (agent.Generator, error) {
		client, err := agent.NewClient(model, agent.ClientOptions{
			Role:     role,
			Recorder: o.opts.Recorder,
			Retry:    o.cfg.Retry,
		})
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", role, err)
		}
		return agent.NewLLMGenerator(client,
			agent.WithMaxTokens(o.cfg.Models.MaxOutputTokens),
			agent.WithTemperature(temperature),
		), nil
	}

	dev, err := build(coder.RoleName, o.cfg.Models.Developer, llm.TemperatureDeterministic)
	if err != nil {
		return nil, err
	}
	rev, err := build(reviewer.RoleName, o.cfg.Models.Reviewer, llm.TemperatureDefault)
	if err != nil {
		return nil, err
	}
	return &Generators{Developer: dev, Reviewer: rev}, nil
}

func (o *Orchestrator) runChecks(ctx context.Context, dir string) (*checks.Report, error) {
	pf, err := config.LoadProjectFile(filepath.Join(dir, o.cfg.Paths.Checks))
	if err != nil {
		return nil, err
	}
	return checks.NewRunner(o.opts.Executor, dir, 0).Run(ctx, pf.Checks)
}

func (o *Orchestrator) blockTask(task backlog.Task, question string, dryRun bool) {
	o.logger.Warn("task %s blocked: %s", task.ID, firstLine(question))
	if dryRun {
		return
	}
	if err := o.store.AppendProblem(backlog.Problem{Task: task.ID, Question: question, Blocking: true}); err != nil {
		o.logger.Error("failed to record problem for %s: %v", task.ID, err)
	}
}

func isTaskFailure(err error) bool {
	return errors.Is(err, convergence.ErrNoImplementation) ||
		errors.Is(err, convergence.ErrNoReview) ||
		errors.Is(err, convergence.ErrRoundLimit)
}

func commitMessage(task backlog.Task, message string) string {
	if message = strings.TrimSpace(message); message != "" {
		return message
	}
	if task.Title != "" {
		return task.Title
	}
	return "Complete task " + task.ID
}

// topLevel returns the first element of a repository-relative path.
func topLevel(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package github

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/ternarybob/fragor/internal/services/preferences"
)

// NotifyFrequency is the recurrence cadence: a comment is considered every
// time the group total lands on a multiple of this value.
const NotifyFrequency = 10

// Outcome describes what the orchestrator decided for a submission.
type Outcome string

const (
	OutcomeDisabled  Outcome = "disabled"  // integration switched off
	OutcomeScheduled Outcome = "scheduled" // a job was enqueued
	OutcomeSkipped   Outcome = "skipped"   // guard held by an in-flight job
	OutcomeNoop      Outcome = "noop"      // no action warranted at this count
)

// Orchestrator decides, per crash submission, whether to schedule issue
// creation or a recurrence comment. Decisions are advisory; the scheduled
// jobs re-check state when they run.
type Orchestrator struct {
	crashes interfaces.CrashReportService
	prefs   interfaces.PreferenceService
	guard   interfaces.GuardService
	queue   interfaces.QueueManager
	tracker interfaces.IssueTracker
	logger  arbor.ILogger
}

// NewOrchestrator creates a new GitHub orchestrator.
func NewOrchestrator(crashes interfaces.CrashReportService, prefs interfaces.PreferenceService, guard interfaces.GuardService, queue interfaces.QueueManager, tracker interfaces.IssueTracker, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		crashes: crashes,
		prefs:   prefs,
		guard:   guard,
		queue:   queue,
		tracker: tracker,
		logger:  logger,
	}
}

// Manage runs the per-submission decision for a crash group. The preference
// gate is re-read on every call so flipping it off stops all new scheduling
// immediately.
func (o *Orchestrator) Manage(ctx context.Context, report *models.CrashReport) (Outcome, error) {
	if o.prefs.Get(ctx, preferences.KeyIntegrateWithGitHub, "true") != "true" {
		return OutcomeDisabled, nil
	}

	count, err := o.crashes.GetCount(ctx, report.Fingerprint)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to resolve group count: %w", err)
	}

	if !report.HasIssue() {
		return o.scheduleWithBackoff(ctx, models.WorkflowNewCrash, report.Fingerprint)
	}

	if count > 0 && count%NotifyFrequency == 0 {
		return o.scheduleWithBackoff(ctx, models.WorkflowNewComment, report.Fingerprint)
	}

	return OutcomeNoop, nil
}

// scheduleWithBackoff enqueues a job for the (workflow, fingerprint) pair
// unless one is already in flight. The guard is taken before the enqueue and
// released again if the enqueue fails, so a failed schedule never blocks the
// next trigger.
func (o *Orchestrator) scheduleWithBackoff(ctx context.Context, workflow models.Workflow, fingerprint string) (Outcome, error) {
	acquired, err := o.guard.Acquire(workflow, fingerprint)
	if err != nil {
		return OutcomeNoop, err
	}
	if !acquired {
		o.logger.Debug().
			Str("workflow", string(workflow)).
			Str("fingerprint", fingerprint).
			Msg("Job already in flight, skipping")
		return OutcomeSkipped, nil
	}

	msg := models.NewQueueMessage(models.MessageTypeFor(workflow), fingerprint)
	if err := o.queue.Enqueue(ctx, msg); err != nil {
		if relErr := o.guard.Release(workflow, fingerprint); relErr != nil {
			o.logger.Warn().Err(relErr).Str("fingerprint", fingerprint).Msg("Failed to release guard after enqueue failure")
		}
		return OutcomeNoop, fmt.Errorf("failed to enqueue %s job: %w", workflow, err)
	}

	o.logger.Info().
		Str("workflow", string(workflow)).
		Str("fingerprint", fingerprint).
		Msg("Job scheduled")

	return OutcomeScheduled, nil
}

// CreateIssueJob is the queue handler for new-crash jobs. It re-fetches the
// group, files an issue if one still does not exist, and records the issue
// number. Tracker failures are logged and swallowed - the job is considered
// consumed either way, and the next cadence trigger retries naturally.
func (o *Orchestrator) CreateIssueJob(ctx context.Context, msg *models.QueueMessage) error {
	defer o.release(models.WorkflowNewCrash, msg.Fingerprint)

	report, err := o.crashes.GetCrash(ctx, msg.Fingerprint)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			o.logger.Warn().Str("fingerprint", msg.Fingerprint).Msg("Crash group vanished before issue creation")
			return nil
		}
		return err
	}

	if report.HasIssue() {
		// Another job already filed the issue.
		return nil
	}

	number, err := o.tracker.CreateIssue(ctx, report)
	if err != nil {
		o.logger.Error().Err(err).Str("fingerprint", msg.Fingerprint).Msg("Issue creation failed")
		return nil
	}

	issue := fmt.Sprintf("%d", number)
	state := models.StateSubmitted
	if _, err := o.crashes.UpdateCrashReport(ctx, msg.Fingerprint, models.CrashReportUpdate{
		State: &state,
		Issue: &issue,
	}); err != nil {
		o.logger.Error().Err(err).
			Str("fingerprint", msg.Fingerprint).
			Int("issue", number).
			Msg("Failed to record issue number")
	}

	return nil
}

// AddCommentJob is the queue handler for recurrence-comment jobs. It requires
// an existing issue; the current group total is re-read at execution time so
// the comment reflects reality, not the count at schedule time.
func (o *Orchestrator) AddCommentJob(ctx context.Context, msg *models.QueueMessage) error {
	defer o.release(models.WorkflowNewComment, msg.Fingerprint)

	report, err := o.crashes.GetCrash(ctx, msg.Fingerprint)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			o.logger.Warn().Str("fingerprint", msg.Fingerprint).Msg("Crash group vanished before comment")
			return nil
		}
		return err
	}

	if !report.HasIssue() {
		o.logger.Warn().Str("fingerprint", msg.Fingerprint).Msg("Comment scheduled for group without an issue")
		return nil
	}

	count, err := o.crashes.GetCount(ctx, msg.Fingerprint)
	if err != nil {
		return err
	}

	if _, err := o.tracker.CreateComment(ctx, report, count); err != nil {
		o.logger.Error().Err(err).Str("fingerprint", msg.Fingerprint).Msg("Comment creation failed")
	}

	return nil
}

func (o *Orchestrator) release(workflow models.Workflow, fingerprint string) {
	if err := o.guard.Release(workflow, fingerprint); err != nil {
		o.logger.Warn().Err(err).
			Str("workflow", string(workflow)).
			Str("fingerprint", fingerprint).
			Msg("Failed to release guard")
	}
}

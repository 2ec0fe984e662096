package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// issueLabel marks every issue and comment this service files.
const issueLabel = "crash reporter"

// Client files issues and comments against the configured repository. In
// development it targets the sandbox repository so test crashes never reach
// the real tracker.
type Client struct {
	gh           *gogithub.Client
	limiter      *rate.Limiter
	owner        string
	repo         string
	reporterHost string
	logger       arbor.ILogger
}

// NewClient creates a GitHub client from configuration. The token is
// required; callers that tolerate running without GitHub integration must
// check for it before constructing the client.
func NewClient(cfg *common.Config, logger arbor.ILogger) (*Client, error) {
	if cfg.GitHub.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHub.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)

	owner := cfg.GitHub.SandboxOwner
	repo := cfg.GitHub.SandboxRepo
	host := cfg.Reporter.SandboxHost
	if cfg.IsProduction() {
		owner = cfg.GitHub.Owner
		repo = cfg.GitHub.Repo
		host = cfg.Reporter.Host
	}

	logger.Info().
		Str("owner", owner).
		Str("repo", repo).
		Msg("GitHub client initialized")

	return &Client{
		gh:           gogithub.NewClient(httpClient),
		limiter:      rate.NewLimiter(rate.Limit(cfg.GitHub.RequestsPerSecond), 1),
		owner:        owner,
		repo:         repo,
		reporterHost: host,
		logger:       logger,
	}, nil
}

// CreateIssue files a new tracker issue for a crash group and returns the
// issue number.
func (c *Client) CreateIssue(ctx context.Context, report *models.CrashReport) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	title := issueTitle(report)
	body := c.issueBody(report)
	labels := append([]string{issueLabel}, report.Labels...)

	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gogithub.IssueRequest{
		Title:  &title,
		Body:   &body,
		Labels: &labels,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create issue: %w", err)
	}

	c.logger.Info().
		Str("fingerprint", report.Fingerprint).
		Int("issue", issue.GetNumber()).
		Msg("Issue created")

	return issue.GetNumber(), nil
}

// CreateComment posts a recurrence comment on the group's existing issue.
func (c *Client) CreateComment(ctx context.Context, report *models.CrashReport, count int) (int64, error) {
	number, err := strconv.Atoi(report.Issue)
	if err != nil {
		return 0, fmt.Errorf("report %s has no usable issue number: %w", report.Fingerprint, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	body := issueComment(count)
	comment, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gogithub.IssueComment{
		Body: &body,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create comment on issue %d: %w", number, err)
	}

	c.logger.Info().
		Str("fingerprint", report.Fingerprint).
		Int("issue", number).
		Int("count", count).
		Msg("Recurrence comment posted")

	return comment.GetID(), nil
}

// IssueURL returns the browser URL for an issue number.
func (c *Client) IssueURL(number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", c.owner, c.repo, number)
}

func issueTitle(report *models.CrashReport) string {
	return "Crash report: " + report.Title()
}

func (c *Client) issueBody(report *models.CrashReport) string {
	return fmt.Sprintf("```\n%s\n```\n\nFull report is at [%s](%s/crashes?fingerprint=%s)",
		sanitizeASCII(report.Crash), report.Fingerprint, c.reporterHost, report.Fingerprint)
}

func issueComment(count int) string {
	return fmt.Sprintf("More crashes incoming. Current crash count is at `%d`.", count)
}

// sanitizeASCII strips non-printable and non-ASCII bytes from crash text so
// terminal control sequences never end up in an issue body.
func sanitizeASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 0x20 && r < 0x7f) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ensure Client implements IssueTracker interface
var _ interfaces.IssueTracker = (*Client)(nil)

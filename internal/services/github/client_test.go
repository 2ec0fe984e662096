package github

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/models"
)

func TestNewClientRequiresToken(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.GitHub.Token = ""

	if _, err := NewClient(cfg, arbor.NewLogger()); err == nil {
		t.Error("Expected error without token")
	}
}

func TestNewClientTargetsSandboxInDevelopment(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.GitHub.Token = "test-token"

	client, err := NewClient(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	url := client.IssueURL(7)
	if !strings.Contains(url, cfg.GitHub.SandboxOwner+"/"+cfg.GitHub.SandboxRepo) {
		t.Errorf("Development client should target the sandbox repo: %s", url)
	}
}

func TestNewClientTargetsProductionRepo(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.GitHub.Token = "test-token"
	cfg.Environment = "production"

	client, err := NewClient(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	url := client.IssueURL(7)
	if !strings.Contains(url, cfg.GitHub.Owner+"/"+cfg.GitHub.Repo) {
		t.Errorf("Production client should target the real repo: %s", url)
	}
}

func TestIssueTitle(t *testing.T) {
	report := &models.CrashReport{Crash: "\nTypeError: boom\n    at main"}
	if got := issueTitle(report); got != "Crash report: TypeError: boom" {
		t.Errorf("Unexpected title: %q", got)
	}
}

func TestIssueComment(t *testing.T) {
	want := "More crashes incoming. Current crash count is at `30`."
	if got := issueComment(30); got != want {
		t.Errorf("Unexpected comment: %q", got)
	}
}

func TestIssueBodyLinksReport(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.GitHub.Token = "test-token"
	client, err := NewClient(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}

	report := &models.CrashReport{Fingerprint: "abc123", Crash: "Error: boom"}
	body := client.issueBody(report)
	if !strings.Contains(body, "```\nError: boom\n```") {
		t.Errorf("Body should contain fenced crash text: %q", body)
	}
	if !strings.Contains(body, cfg.Reporter.SandboxHost+"/crashes?fingerprint=abc123") {
		t.Errorf("Body should link the full report: %q", body)
	}
}

func TestSanitizeASCII(t *testing.T) {
	in := "Error: boom\x1b[31m\tnon-ascii é世\n"
	got := sanitizeASCII(in)
	want := "Error: boom[31m\tnon-ascii \n"
	if got != want {
		t.Errorf("Unexpected sanitized text: %q", got)
	}
}

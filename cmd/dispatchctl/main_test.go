package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-engine/internal/auth"
	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/jobs"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("RECORD_BACKEND", "memory")
	t.Setenv("JOBS_BACKEND", "memory")
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("AUTH_ISSUER", "dispatch-engine")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestProcessCommand(t *testing.T) {
	out, _, err := run(t, "process", "i was overcharged on my last invoice", "--phone", "312-555-0199")
	require.NoError(t, err)
	assert.Contains(t, out, "unsupported")
	assert.Contains(t, out, "billing_desk")
	assert.Contains(t, out, "billing desk")

	out, _, err = run(t, "process", "i was overcharged on my last invoice", "--phone", "312-555-0199", "--json")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "unsupported", res["action"])

	_, _, err = run(t, "process", "hello", "--channel", "fax")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	out, _, err := run(t, "token", "--client", "voice-gateway", "--scopes", "dispatch:process,audit:read")
	require.NoError(t, err)

	claims, err := auth.NewTokenManager("cli-secret", "dispatch-engine", 5).ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "voice-gateway", claims.ClientID)
	assert.Equal(t, []auth.Scope{auth.ScopeProcess, auth.ScopeAuditRead}, claims.Scopes)

	_, _, err = run(t, "token", "--client", "x", "--scopes", "root")
	assert.Error(t, err)
	_, _, err = run(t, "token", "--scopes", "audit:read")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(good, catalog.DefaultYAML(), 0o600))

	out, _, err := run(t, "rules", "validate", "--file", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (version")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: x\ntimezone: Nowhere/Invalid\n"), 0o600))
	_, stderr, err := run(t, "rules", "validate", "--file", bad)
	assert.Error(t, err)
	assert.NotEmpty(t, stderr)

	out, _, err = run(t, "rules", "defaults")
	require.NoError(t, err)
	assert.Equal(t, string(catalog.DefaultYAML()), out)
}

func TestJobsDue(t *testing.T) {
	out, _, err := run(t, "jobs", "due", "--at", "2026-10-14T15:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "no jobs due")

	_, _, err = run(t, "jobs", "due", "--at", "yesterday")
	assert.Error(t, err)

	q := jobs.NewMemory()
	ctx := context.Background()
	runAt := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	_, err = q.Enqueue(ctx, domain.JobRequest{Type: jobs.TypeLeadFollowUp, RunAt: runAt})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, domain.JobRequest{Type: jobs.TypeAppointmentReminder, RunAt: runAt.Add(48 * time.Hour)})
	require.NoError(t, err)

	due, err := q.Due(ctx, runAt.Add(time.Hour), 0)
	require.NoError(t, err)
	var buf bytes.Buffer
	renderJobs(&buf, due)
	assert.Contains(t, buf.String(), jobs.TypeLeadFollowUp)
	assert.NotContains(t, buf.String(), jobs.TypeAppointmentReminder)
	assert.Contains(t, buf.String(), "2026-10-14T09:00:00Z")
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/dispatch/internal/config"
	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
)

func TestRunCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()

		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == "run" {
				found = true
				break
			}
		}
		assert.True(t, found, "run command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"run", "--help"})
		defer resetHelpFlag(t, runCmd)

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "batch")
		assert.Contains(t, helpText, "--approve-all")
	})

	t.Run("executes a batch end to end", func(t *testing.T) {
		prevCfg := cfgFile
		defer func() {
			cfgFile = prevCfg
			runApproveAll = false
			runQuiet = false
		}()

		cfgPath := writeTestCLIConfig(t, func(cfg *config.Config) {
			cfg.Approval.Mode = "auto-approve"
		})

		reqPath := filepath.Join(t.TempDir(), "requests.json")
		requests := `[
			{"id": "c1", "tool": "clock", "args": {}},
			{"tool": "upper", "args": {"text": "hello"}}
		]`
		require.NoError(t, os.WriteFile(reqPath, []byte(requests), 0644))

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"run", reqPath, "--config", cfgPath})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		got := output.String()
		assert.Contains(t, got, "2 succeeded, 0 failed, 0 cancelled")
		assert.Contains(t, got, "clock")
		assert.Contains(t, got, `"HELLO"`)
	})

	t.Run("missing requests file", func(t *testing.T) {
		prevCfg := cfgFile
		defer func() { cfgFile = prevCfg }()

		cfgPath := writeTestCLIConfig(t, nil)

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"run", "/nonexistent/requests.json", "--config", cfgPath})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read requests file")
	})
}

func TestReadRequestsFile(t *testing.T) {
	t.Run("parses requests and fills missing ids", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "requests.json")
		data := `[
			{"id": "c1", "tool": "clock", "args": {}},
			{"tool": "upper", "args": {"text": "hi"}}
		]`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		requests, err := readRequestsFile(path)
		require.NoError(t, err)
		require.Len(t, requests, 2)

		assert.Equal(t, "c1", requests[0].ID)
		assert.Equal(t, "clock", requests[0].Tool)
		assert.NotEmpty(t, requests[1].ID)
		assert.Equal(t, "upper", requests[1].Tool)
	})

	t.Run("rejects empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "requests.json")
		require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))

		_, err := readRequestsFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no requests")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "requests.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

		_, err := readRequestsFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readRequestsFile("/nonexistent/requests.json")
		require.Error(t, err)
	})
}

func TestApprovalHandlerFor(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want interface{}
	}{
		{"auto-approve", "auto-approve", approval.AutoApprove{}},
		{"deny-all", "deny-all", approval.DenyAll{}},
		{"prompt", "prompt", &approval.CLIHandler{}},
		{"unknown falls back to prompt", "whatever", &approval.CLIHandler{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := approvalHandlerFor(tt.mode, os.Stdin, os.Stdout)
			assert.IsType(t, tt.want, handler)
		})
	}
}

func TestPrintBatchResult(t *testing.T) {
	now := time.Now()
	result := &scheduler.BatchResult{
		BatchID:   "b-test",
		StartedAt: now,
		EndedAt:   now.Add(150 * time.Millisecond),
		Results: []toolcall.Result{
			{ID: "c1", Tool: "clock", State: toolcall.StateSuccess, Payload: map[string]interface{}{"unix": 1}},
			{ID: "c2", Tool: "file_stat", State: toolcall.StateError, Error: toolcall.NewError(toolcall.ErrorKindExecutorFailure, "file_stat", "stat failed")},
			{ID: "c3", Tool: "sleep", State: toolcall.StateCancelled},
		},
	}

	output := &bytes.Buffer{}
	printBatchResult(output, result)

	got := output.String()
	assert.Contains(t, got, "Batch b-test finished")
	assert.Contains(t, got, "1 succeeded, 1 failed, 1 cancelled")
	assert.Contains(t, got, "clock")
	assert.Contains(t, got, "executor_failure: stat failed")
	assert.Contains(t, got, "sleep")
}

func TestResultDetail(t *testing.T) {
	t.Run("payload rendered as JSON", func(t *testing.T) {
		res := toolcall.Result{Payload: map[string]interface{}{"ok": true}}
		assert.Equal(t, `{"ok":true}`, resultDetail(res))
	})

	t.Run("error rendered with kind", func(t *testing.T) {
		res := toolcall.Result{Error: toolcall.NewError(toolcall.ErrorKindUserDenied, "rm", "denied by reviewer")}
		assert.Equal(t, "user_denied: denied by reviewer", resultDetail(res))
	})

	t.Run("empty payload", func(t *testing.T) {
		assert.Equal(t, "", resultDetail(toolcall.Result{}))
	})

	t.Run("long payload truncated", func(t *testing.T) {
		res := toolcall.Result{Payload: map[string]interface{}{"body": string(bytes.Repeat([]byte("x"), 300))}}
		detail := resultDetail(res)
		assert.Len(t, detail, 120)
		assert.Contains(t, detail, "...")
	})
}

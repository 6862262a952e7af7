package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/lobbywatch/internal/trace"
	"github.com/thebtf/lobbywatch/pkg/models"
)

const sampleOutput = `Ranking for S. 383-116:

| Congress Member | Chamber | State/District | Involvement Rank | Reason |
|---|---|---|---|---|
| John Barrasso (R) | Senate | WY | 2 | Ranking member on Environment |
| Joe Manchin (D) | Senate | WV | 1 | Chairs Energy committee |

TERMINATE`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	debug, configPath = false, ""

	dir := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "settings.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParseCommand_File(t *testing.T) {
	out, err := runCLI(t, "", "parse", writeSample(t, sampleOutput))
	require.NoError(t, err)

	assert.Contains(t, out, "2 congress members")
	assert.Contains(t, out, "Joe Manchin")
	assert.Contains(t, out, "John Barrasso")
	assert.Less(t, strings.Index(out, "Joe Manchin"), strings.Index(out, "John Barrasso"), "rank 1 is listed first")
}

func TestParseCommand_Stdin(t *testing.T) {
	out, err := runCLI(t, sampleOutput, "parse", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Joe Manchin")
}

func TestParseCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "", "parse", "--json", writeSample(t, sampleOutput))
	require.NoError(t, err)

	var table models.ParsedTable
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	assert.Equal(t, 2, table.TotalMembers)
	assert.True(t, table.InvestigationComplete)
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no table", []string{"parse", writeSample(t, "nothing tabular here")}},
		{"missing file", []string{"parse", filepath.Join(t.TempDir(), "absent.md")}},
		{"no argument", []string{"parse"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestWatchCommand_RequiresFlags(t *testing.T) {
	_, err := runCLI(t, "", "watch", "--company", "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--bill")
}

func TestMemberName(t *testing.T) {
	assert.Equal(t, "Joe Manchin (D)", memberName(models.CongressMember{Name: "Joe Manchin", Party: "D"}))
	assert.Equal(t, "Joe Manchin", memberName(models.CongressMember{Name: "Joe Manchin"}))
}

func seedTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")
	rec, err := trace.OpenRecorder(path)
	require.NoError(t, err)
	rec.Outbound([]byte(`{"type":"start_investigation","sessionId":"s1","company":"Acme"}`))
	rec.Inbound([]byte(`{"type":"agent_communication","sessionId":"s2","timestamp":"t"}`))
	rec.Inbound([]byte(`{"type":"investigation_started","sessionId":"s1","timestamp":"t"}`))
	require.NoError(t, rec.Close())
	return path
}

func TestTraceCommand(t *testing.T) {
	t.Setenv("LOBBYWATCH_TRACE_DB", seedTrace(t))

	out, err := runCLI(t, "", "trace")
	require.NoError(t, err)
	assert.Contains(t, out, "agent_communication")
	assert.Less(t, strings.Index(out, "start_investigation"), strings.Index(out, "investigation_started"), "oldest frame first")

	out, err = runCLI(t, "", "trace", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "start_investigation")
	assert.Contains(t, out, "investigation_started")
	assert.NotContains(t, out, "agent_communication")
}

func TestTraceCommand_JSON(t *testing.T) {
	t.Setenv("LOBBYWATCH_TRACE_DB", seedTrace(t))

	out, err := runCLI(t, "", "trace", "--json", "--limit", "1")
	require.NoError(t, err)

	var frames []trace.Frame
	require.NoError(t, json.Unmarshal([]byte(out), &frames))
	require.Len(t, frames, 1)
	assert.Equal(t, "investigation_started", frames[0].Type)
	assert.Equal(t, trace.DirectionInbound, frames[0].Direction)
}

func TestTraceCommand_Empty(t *testing.T) {
	t.Setenv("LOBBYWATCH_TRACE_DB", filepath.Join(t.TempDir(), "empty.db"))

	out, err := runCLI(t, "", "trace")
	require.NoError(t, err)
	assert.Contains(t, out, "No frames recorded")
}

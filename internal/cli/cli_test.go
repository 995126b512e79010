package cli

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
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/app"
	"github.com/noah-isme/conference-timetable/internal/models"
	"github.com/noah-isme/conference-timetable/internal/repository"
	"github.com/noah-isme/conference-timetable/internal/timetable"
	"github.com/noah-isme/conference-timetable/pkg/config"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 6, hour, minute, 0, 0, time.UTC)
}

// seededOptions points every command at one sqlite file holding a clean
// event and one with a block running past the event end.
func seededOptions(t *testing.T) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	loadConfig := func() (*config.Config, error) {
		return &config.Config{
			Env:      config.EnvDevelopment,
			Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "timetable.db")},
			Audit:    config.AuditConfig{Workers: 2, SweepSchedule: "@daily"},
			Exports:  config.ExportsConfig{Dir: filepath.Join(dir, "exports"), Retention: time.Hour},
		}, nil
	}

	cfg, err := loadConfig()
	require.NoError(t, err)
	ctx := context.Background()
	a, err := app.New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Events.Create(ctx, nil, &models.Event{ID: "evt-ok", Title: "Clean", StartDT: at(9, 0), EndDT: at(12, 0)}))
	require.NoError(t, a.Events.Create(ctx, nil, &models.Event{ID: "evt-bad", Title: "Overrun", StartDT: at(9, 0), EndDT: at(10, 0)}))
	late := models.TimetableEntry{
		ID:       "blk-late",
		EventID:  "evt-bad",
		Position: models.TopLevel(),
		StartDT:  at(9, 30),
		Payload:  models.SessionBlockPayload{SessionBlockID: "sb-1", SessionID: "sess-1", Duration: time.Hour},
	}
	require.NoError(t, repository.NewTimetableRepository(a.DB).ApplyChanges(ctx, nil, timetable.EventChanges{
		Event:   models.Event{ID: "evt-bad"},
		Created: []models.TimetableEntry{late},
	}))

	return &RootOptions{
		LoadConfig: loadConfig,
		NewLogger:  func(*config.Config) (*zap.Logger, error) { return zap.NewNop(), nil },
	}
}

func run(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	opts := seededOptions(t)

	stdout, _, err := run(t, opts, "validate", "evt-ok")
	require.NoError(t, err)
	assert.Equal(t, "evt-ok: ok (0 entries)\n", stdout)

	stdout, _, err = run(t, opts, "validate")
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, stdout, "evt-bad: 1 violation(s) in 1 entries\n  EntryEndsAfterEvent")
	assert.Contains(t, stdout, "evt-ok: ok")

	stdout, _, err = run(t, opts, "validate", "-o", "json", "evt-bad")
	require.ErrorIs(t, err, ErrInconsistent)
	var reports []models.AuditReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, models.ViolationEntryEndsAfterEvent, reports[0].Violations[0].Kind)

	_, _, err = run(t, opts, "validate", "evt-missing")
	assert.Error(t, err)

	_, _, err = run(t, opts, "validate", "-o", "yaml")
	assert.EqualError(t, err, `invalid output "yaml": must be text or json`)
}

func TestExportCommand(t *testing.T) {
	opts := seededOptions(t)

	stdout, _, err := run(t, opts, "export", "evt-bad", "--out=-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Kind,Entry,Parent,Actual,Limit,Message", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "EntryEndsAfterEvent,blk-late,"))

	out := filepath.Join(t.TempDir(), "report.pdf")
	_, stderr, err := run(t, opts, "export", "evt-bad", "--format", "pdf", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote "+out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	_, _, err = run(t, opts, "export", "evt-bad", "--format", "xlsx")
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	opts := seededOptions(t)

	stdout, _, err := run(t, opts, "sweep", "-o", "json")
	require.NoError(t, err)
	var result struct {
		Events       int      `json:"events"`
		Inconsistent []string `json:"inconsistent"`
		ReportPath   string   `json:"report_path"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, []string{"evt-bad"}, result.Inconsistent)
	assert.True(t, strings.HasPrefix(result.ReportPath, "sweeps/"))
}

func TestMigrateCommand(t *testing.T) {
	opts := seededOptions(t)

	stdout, _, err := run(t, opts, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema applied (sqlite)\n", stdout)
}

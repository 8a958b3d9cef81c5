package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTask struct {
	name    string
	enabled bool
}

func (s stubTask) Name() string                  { return s.name }
func (s stubTask) Schedule() string              { return "0 * * * * *" }
func (s stubTask) Run(ctx context.Context) error { return nil }
func (s stubTask) Timeout() time.Duration        { return 0 }
func (s stubTask) Enabled() bool                 { return s.enabled }

func TestTaskRegistry(t *testing.T) {
	r := NewTaskRegistry()

	require.NoError(t, r.Register(stubTask{name: "weekly", enabled: true}))
	require.NoError(t, r.Register(stubTask{name: "daily", enabled: true}))
	require.NoError(t, r.Register(stubTask{name: "report", enabled: false}))

	assert.ErrorIs(t, r.Register(stubTask{name: "daily"}), ErrTaskAlreadyRegistered)
	assert.ErrorIs(t, r.Register(stubTask{name: ""}), ErrEmptyTaskName)

	assert.Equal(t, []string{"daily", "report", "weekly"}, r.Names())
	assert.Len(t, r.GetAllTasks(), 3)
	assert.Len(t, r.GetEnabledTasks(), 2)

	_, ok := r.GetTask("daily")
	assert.True(t, ok)
	_, ok = r.GetTask("missing")
	assert.False(t, ok)
}

func TestNewTaskResult(t *testing.T) {
	start := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)

	ok := NewTaskResult("daily", start, end, nil, false)
	assert.True(t, ok.Success)
	assert.Equal(t, 3*time.Second, ok.Duration)
	assert.Empty(t, ok.Message)

	failed := NewTaskResult("daily", start, end, errors.New("boom"), true)
	assert.False(t, failed.Success)
	assert.True(t, failed.Manual)
	assert.Equal(t, "boom", failed.Message)
}

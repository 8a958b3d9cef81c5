package calltracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoptrend/internal/model"
)

type mapStore struct {
	mu    sync.Mutex
	calls map[string]model.RetryableCall
}

func newMapStore() *mapStore {
	return &mapStore{calls: make(map[string]model.RetryableCall)}
}

func (s *mapStore) CreateCall(_ context.Context, c model.RetryableCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = c
	return nil
}

func (s *mapStore) GetCall(_ context.Context, id string) (model.RetryableCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return model.RetryableCall{}, fmt.Errorf("call %s: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (s *mapStore) UpdateCall(_ context.Context, c model.RetryableCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ID] = c
	return nil
}

func TestTracker_StartUsesUUID(t *testing.T) {
	tr := New(newMapStore(), nil)
	id, err := tr.Start(context.Background(), "trend_source", map[string]string{"keyword": "shoes"})
	require.NoError(t, err)

	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	call, err := tr.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.CallPending, call.Status)
	assert.Equal(t, "shoes", call.Params["keyword"])
}

func TestTracker_RetryUntilExhausted(t *testing.T) {
	ctx := context.Background()
	tr := New(newMapStore(), nil)
	id, err := tr.Start(ctx, "trend_source", nil)
	require.NoError(t, err)

	require.NoError(t, tr.Fail(ctx, id, errors.New("timeout")))
	for i := 0; i < model.MaxRetryCount; i++ {
		ok, err := tr.CanRetry(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tr.Retry(ctx, id))
		require.NoError(t, tr.Fail(ctx, id, errors.New("timeout")))
	}

	ok, err := tr.CanRetry(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	err = tr.Retry(ctx, id)
	assert.ErrorIs(t, err, model.ErrExhaustedRetries)

	call, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.MaxRetryCount, call.RetryCount)
	assert.Equal(t, model.CallFailed, call.Status)
	assert.Equal(t, "timeout", call.ErrorMessage)
}

func TestTracker_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	tr := New(newMapStore(), nil)
	id, err := tr.Start(ctx, "trend_source", nil)
	require.NoError(t, err)

	require.NoError(t, tr.Succeed(ctx, id, "ok", 12))
	assert.ErrorIs(t, tr.Succeed(ctx, id, "again", 1), model.ErrInvalidTransition)
	assert.ErrorIs(t, tr.Fail(ctx, id, errors.New("late")), model.ErrInvalidTransition)
	assert.ErrorIs(t, tr.Retry(ctx, id), model.ErrInvalidTransition)

	call, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CallSuccess, call.Status)
	assert.Equal(t, "ok", call.Result)
}

func TestTracker_UnknownID(t *testing.T) {
	tr := New(newMapStore(), nil)
	_, err := tr.CanRetry(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, tr.Retry(context.Background(), "missing"), model.ErrNotFound)
}

func TestTracker_Execute(t *testing.T) {
	ctx := context.Background()
	tr := New(newMapStore(), nil)

	attempts := 0
	id, err := tr.Execute(ctx, "trend_source", nil, 2, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("flaky")
		}
		return "12 samples", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	call, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CallSuccess, call.Status)
	assert.Equal(t, 2, call.RetryCount)
	assert.Equal(t, "12 samples", call.Result)
}

func TestTracker_ExecuteCapsRetries(t *testing.T) {
	ctx := context.Background()
	tr := New(newMapStore(), nil)

	attempts := 0
	boom := errors.New("down")
	id, err := tr.Execute(ctx, "trend_source", nil, 10, func(context.Context) (string, error) {
		attempts++
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.MaxRetryCount+1, attempts)

	call, err := tr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CallFailed, call.Status)
	assert.False(t, call.CanRetry())
}

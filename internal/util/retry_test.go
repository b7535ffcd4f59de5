package util

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("neo4j: connection reset")

func TestRetryWithContext_ReturnsFirstSuccess(t *testing.T) {
	calls := 0
	rels, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) ([]string, error) {
		calls++
		if calls < 2 {
			return nil, errFlaky
		}
		return []string{"article_1 REGIT contrat"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"article_1 REGIT contrat"}, rels)
	assert.Equal(t, 2, calls)
}

func TestRetryWithContext_GivesUpWithLastError(t *testing.T) {
	calls := 0
	_, err := RetryWithContext(context.Background(), 0, func(ctx context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls, "non-positive tries still runs once")
}

func TestRetryWithContext_DeadlineIsNotRetried(t *testing.T) {
	calls := 0
	_, err := RetryWithContext(context.Background(), 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetryErrWithContext(t *testing.T) {
	tests := []struct {
		name      string
		tries     int
		failFirst int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", tries: 2, failFirst: 0, wantCalls: 1},
		{name: "recovers on second attempt", tries: 2, failFirst: 1, wantCalls: 2},
		{name: "exhausted", tries: 2, failFirst: 5, wantErr: true, wantCalls: 2},
		{name: "zero tries runs once", tries: 0, failFirst: 5, wantErr: true, wantCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := RetryErrWithContext(context.Background(), tc.tries, func(ctx context.Context) error {
				calls++
				if calls <= tc.failFirst {
					return errFlaky
				}
				return nil
			})
			if tc.wantErr {
				assert.ErrorIs(t, err, errFlaky)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestRetryErrWithContext_StopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	calls = 0
	err = RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

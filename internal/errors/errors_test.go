package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileNotFound, CategoryIO},
		{ErrCodeRetrievalUnavailable, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := New(ErrCodeAllProvidersFailed, "every provider errored", nil)
	target := New(ErrCodeAllProvidersFailed, "different message", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeInvalidInput, "x", nil)))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeRetrievalUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, err.Retryable)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHasCode_WalksChain(t *testing.T) {
	inner := New(ErrCodeProviderAuth, "bad key", nil)
	outer := New(ErrCodeAllProvidersFailed, "exhausted", inner)

	assert.True(t, HasCode(outer, ErrCodeAllProvidersFailed))
	assert.True(t, HasCode(outer, ErrCodeProviderAuth))
	assert.False(t, HasCode(outer, ErrCodeInvalidInput))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "timeout", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "empty", nil)))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("still broken")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.Contains(t, err.Error(), "still broken")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return fmt.Errorf("never retried")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

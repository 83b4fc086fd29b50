package hooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunHappyPath(t *testing.T) {
	var afterCalled bool
	set := Set[int, string]{
		After: []func(int, string){
			func(ctx int, result string) { afterCalled = true },
		},
	}

	result, err := Run(1, set, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.True(t, afterCalled)
}

func TestRunBeforeAbortsBeforeCore(t *testing.T) {
	abortErr := errors.New("aborted")
	var coreCalled bool
	set := Set[int, string]{
		Before: []func(int) error{
			func(ctx int) error { return abortErr },
		},
	}

	_, err := Run(1, set, func() (string, error) {
		coreCalled = true
		return "ok", nil
	})
	require.ErrorIs(t, err, abortErr)
	require.False(t, coreCalled)
}

func TestRunBeforeStopsAtFirstError(t *testing.T) {
	var secondCalled bool
	set := Set[int, string]{
		Before: []func(int) error{
			func(ctx int) error { return errors.New("first fails") },
			func(ctx int) error { secondCalled = true; return nil },
		},
	}

	_, err := Run(1, set, func() (string, error) { return "ok", nil })
	require.Error(t, err)
	require.False(t, secondCalled)
}

func TestRunOnFailureRecovers(t *testing.T) {
	coreErr := errors.New("core failed")
	set := Set[int, string]{
		OnFailure: []func(int, error) (string, bool){
			func(ctx int, err error) (string, bool) { return "", false },
			func(ctx int, err error) (string, bool) { return "recovered", true },
		},
	}

	result, err := Run(1, set, func() (string, error) { return "", coreErr })
	require.NoError(t, err)
	require.Equal(t, "recovered", result)
}

func TestRunOnFailurePropagatesWhenUnrecovered(t *testing.T) {
	coreErr := errors.New("core failed")
	set := Set[int, string]{
		OnFailure: []func(int, error) (string, bool){
			func(ctx int, err error) (string, bool) { return "", false },
		},
	}

	_, err := Run(1, set, func() (string, error) { return "", coreErr })
	require.ErrorIs(t, err, coreErr)
}

func TestRunAfterSkippedOnFailure(t *testing.T) {
	var afterCalled bool
	set := Set[int, string]{
		After: []func(int, string){
			func(ctx int, result string) { afterCalled = true },
		},
	}

	_, _ = Run(1, set, func() (string, error) { return "", errors.New("fail") })
	require.False(t, afterCalled)
}

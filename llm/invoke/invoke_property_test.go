package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func propOptions(rt *rapid.T) *Options {
	numTemps := rapid.IntRange(1, 6).Draw(rt, "numTemps")
	temps := make([]float32, numTemps)
	for i := range temps {
		temps[i] = float32(rapid.IntRange(0, 20).Draw(rt, fmt.Sprintf("temp_%d", i))) / 10
	}
	return &Options{
		Model:        "primary",
		Temperatures: temps,
		BaseDelay:    time.Nanosecond,
	}
}

// This property test verifies that a successful attempt short-circuits:
// no further generation happens after the first success.
func TestProperty_Do_AtMostOneSuccess(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opts := propOptions(rt)
		succeedAt := rapid.IntRange(1, len(opts.Temperatures)).Draw(rt, "succeedAt")

		testErr := errors.New("attempt failed")
		gen := &recordingGenerator{value: "ok"}
		for i := 1; i < succeedAt; i++ {
			gen.results = append(gen.results, testErr)
		}
		gen.results = append(gen.results, nil)

		result, err := Do[string](context.Background(), gen, opts)
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Len(t, gen.calls, succeedAt, "success must stop the ladder")
	})
}

// This property test verifies that primary attempts consume the configured
// temperature list in order, truncated by MaxAttempts.
func TestProperty_Do_TemperatureOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opts := propOptions(rt)
		opts.MaxAttempts = rapid.IntRange(0, len(opts.Temperatures)+2).Draw(rt, "maxAttempts")

		gen := &recordingGenerator{}
		testErr := errors.New("always fails")
		for i := 0; i < len(opts.Temperatures)+1; i++ {
			gen.results = append(gen.results, testErr)
		}

		_, err := Do[string](context.Background(), gen, opts)
		require.Error(t, err)

		want := len(opts.Temperatures)
		if opts.MaxAttempts > 0 && opts.MaxAttempts < want {
			want = opts.MaxAttempts
		}
		require.Len(t, gen.calls, want)
		for i, call := range gen.calls {
			assert.Equal(t, "primary", call.model)
			assert.Equal(t, opts.Temperatures[i], call.temp,
				"attempt %d must use the %d-th configured temperature", i+1, i+1)
		}
	})
}

// This property test verifies that the backup model is invoked exactly once,
// only after primary exhaustion, and always at the fixed fallback temperature.
func TestProperty_Do_FallbackExactlyOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opts := propOptions(rt)
		opts.BackupModel = "backup"
		fallbackSucceeds := rapid.Bool().Draw(rt, "fallbackSucceeds")

		gen := &recordingGenerator{value: "ok"}
		testErr := errors.New("always fails")
		for i := 0; i < len(opts.Temperatures); i++ {
			gen.results = append(gen.results, testErr)
		}
		if !fallbackSucceeds {
			gen.results = append(gen.results, testErr)
		}

		result, err := Do[string](context.Background(), gen, opts)

		require.Len(t, gen.calls, len(opts.Temperatures)+1)
		backupCalls := 0
		for i, call := range gen.calls {
			if call.model == "backup" {
				backupCalls++
				assert.Equal(t, len(gen.calls)-1, i, "fallback must come after primary exhaustion")
				assert.Equal(t, FallbackTemperature, call.temp)
			}
		}
		assert.Equal(t, 1, backupCalls, "backup model must be invoked exactly once")

		if fallbackSucceeds {
			require.NoError(t, err)
			assert.Equal(t, "ok", result)
		} else {
			require.Error(t, err)
		}
	})
}

// This property test verifies the terminal error accounting: attempt count,
// fallback flag, and the last failure cause.
func TestProperty_Do_ExhaustedErrorAccounting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		opts := propOptions(rt)
		withBackup := rapid.Bool().Draw(rt, "withBackup")
		if withBackup {
			opts.BackupModel = "backup"
		}

		gen := &recordingGenerator{}
		total := len(opts.Temperatures)
		if withBackup {
			total++
		}
		var lastErr error
		for i := 0; i < total; i++ {
			lastErr = fmt.Errorf("failure %d", i+1)
			gen.results = append(gen.results, lastErr)
		}

		_, err := Do[string](context.Background(), gen, opts)
		require.Error(t, err)

		var exhausted *ExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, total, exhausted.Attempts)
		assert.Equal(t, withBackup, exhausted.FallbackUsed)
		assert.Equal(t, lastErr, exhausted.Cause)
	})
}

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jackpot/internal/services"
)

type fakeSweeper struct {
	calls  atomic.Int32
	result *services.SweepResult
	err    error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context) (*services.SweepResult, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("sweep ran without a deadline")
	}
	return f.result, f.err
}

func TestExpirySweepJob_Run(t *testing.T) {
	t.Run("processed rounds", func(t *testing.T) {
		sweeper := &fakeSweeper{result: &services.SweepResult{Processed: true, RoundIDs: []string{"r1"}}}
		NewExpirySweepJob(sweeper).Run(context.Background())
		assert.EqualValues(t, 1, sweeper.calls.Load())
	})

	t.Run("errors are swallowed", func(t *testing.T) {
		sweeper := &fakeSweeper{err: errors.New("database is locked")}
		assert.NotPanics(t, func() { NewExpirySweepJob(sweeper).Run(context.Background()) })
		assert.EqualValues(t, 1, sweeper.calls.Load())
	})
}

func TestScheduler(t *testing.T) {
	t.Run("rejects a bad spec", func(t *testing.T) {
		s := NewScheduler(context.Background())
		require.Error(t, s.Add("every now and then", func(context.Context) {}))
	})

	t.Run("runs jobs with the base context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ran := make(chan context.Context, 1)
		s := NewScheduler(ctx)
		require.NoError(t, s.Add("@every 1s", func(jobCtx context.Context) {
			select {
			case ran <- jobCtx:
			default:
			}
		}))
		s.Start()
		defer s.Stop()

		select {
		case jobCtx := <-ran:
			assert.Equal(t, ctx, jobCtx)
		case <-time.After(3 * time.Second):
			t.Fatal("job did not run")
		}
	})
}

package xcommon_test

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"mgmtbroker/pkg/xcommon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitGroup(t *testing.T) {
	ctx := context.Background()
	var wg xcommon.WaitGroup
	var n int32

	for i := 0; i < 4; i++ {
		wg.Go(ctx, func(ctx context.Context) {
			atomic.AddInt32(&n, 1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(4), n)
}

func TestWaitGroupPanic(t *testing.T) {
	ctx := context.Background()
	var wg xcommon.WaitGroup
	done := make(chan interface{}, 1)

	wg.Add(1)
	go func() {
		defer func() { done <- recover() }()
		defer wg.Done(ctx)
		panic("boom")
	}()
	wg.Wait()
	require.Equal(t, "boom", <-done)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	require.PanicsWithValue(t, "boom", func() {
		defer xcommon.Recover(ctx)
		panic("boom")
	})
}

func TestSpinUntil(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		flag.Store(true)
	}()
	xcommon.SpinUntil(flag.Load)
	assert.True(t, flag.Load())

	count := 0
	xcommon.SpinSleepUntil(func() bool { count++; return count > 2 }, time.Millisecond)
	assert.Equal(t, 3, count)
}

func TestSafeDivision(t *testing.T) {
	assert.Equal(t, int64(0), xcommon.SafeDivision(int64(10), 0))
	assert.Equal(t, uint64(5), xcommon.SafeDivision(uint64(10), 2))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	xcommon.PrintTable(context.Background(), &buf, []string{"queue", "delivered"}, [][]string{{"ControlService", xcommon.ToString(3)}})
	assert.Contains(t, buf.String(), "ControlService")
}

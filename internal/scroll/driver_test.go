package scroll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
)

type fakePage struct {
	alive       bool
	scrollErr   error
	scrollCalls int
	pageText    string
}

func (f *fakePage) ScrollToBottom(ctx context.Context) error {
	f.scrollCalls++
	return f.scrollErr
}

func (f *fakePage) KeepAlive(ctx context.Context) error { return nil }

func (f *fakePage) ContainsText(ctx context.Context, markers []string) (bool, error) {
	for _, m := range markers {
		if m != "" && strings.Contains(strings.ToLower(f.pageText), strings.ToLower(m)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePage) Alive() bool { return f.alive }

func testScrollConfig() common.ScrollConfig {
	return common.ScrollConfig{
		MaxStableTicks: 3,
		SettleDelay:    time.Millisecond,
		QuiesceTimeout: time.Millisecond,
		OldPostStreak:  3,
	}
}

func TestRecordTotalStabilizesAfterConsecutiveStableTicks(t *testing.T) {
	page := &fakePage{alive: true}
	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())

	assert.False(t, driver.RecordTotal(10), "growth resets stability")
	assert.False(t, driver.RecordTotal(25))
	assert.False(t, driver.RecordTotal(25), "stable tick 1")
	assert.False(t, driver.RecordTotal(25), "stable tick 2")
	assert.True(t, driver.RecordTotal(25), "stable tick 3 ends the run")
}

func TestRecordTotalGrowthResetsStreak(t *testing.T) {
	page := &fakePage{alive: true}
	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())

	driver.RecordTotal(10)
	assert.False(t, driver.RecordTotal(10))
	assert.False(t, driver.RecordTotal(10))
	assert.False(t, driver.RecordTotal(12), "new content resets the counter")
	assert.False(t, driver.RecordTotal(12))
	assert.False(t, driver.RecordTotal(12))
	assert.True(t, driver.RecordTotal(12))
}

func TestAdvanceSwallowsScrollErrorsOnLivePage(t *testing.T) {
	page := &fakePage{alive: true, scrollErr: errors.New("node detached")}
	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())

	reason, stop := driver.Advance(context.Background())
	assert.False(t, stop, "a failed scroll on a live page must not end the run")
	assert.Empty(t, reason)
	assert.Equal(t, 1, driver.Ticks())
}

func TestAdvanceStopsWhenPageGone(t *testing.T) {
	page := &fakePage{alive: false}
	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())

	reason, stop := driver.Advance(context.Background())
	require.True(t, stop)
	assert.Equal(t, StopPageGone, reason)
	assert.Zero(t, page.scrollCalls)
}

func TestAdvanceHonorsMaxTicks(t *testing.T) {
	cfg := testScrollConfig()
	cfg.MaxTicks = 2
	page := &fakePage{alive: true}
	driver := NewDriver(cfg, page, nil, arbor.NewLogger())

	_, stop := driver.Advance(context.Background())
	require.False(t, stop)
	_, stop = driver.Advance(context.Background())
	require.False(t, stop)

	reason, stop := driver.Advance(context.Background())
	require.True(t, stop)
	assert.Equal(t, StopMaxTicks, reason)
}

func TestAdvanceInvokesQuiesce(t *testing.T) {
	page := &fakePage{alive: true}
	called := false
	quiesce := func(ctx context.Context, timeout time.Duration) bool {
		called = true
		return true
	}
	driver := NewDriver(testScrollConfig(), page, quiesce, arbor.NewLogger())

	_, stop := driver.Advance(context.Background())
	require.False(t, stop)
	assert.True(t, called)
}

func TestAdvanceStopsOnCancelledContext(t *testing.T) {
	page := &fakePage{alive: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())
	reason, stop := driver.Advance(ctx)
	require.True(t, stop)
	assert.Equal(t, StopCancelled, reason)
}

func TestEndOfFeedMatchesMarker(t *testing.T) {
	page := &fakePage{alive: true, pageText: "No more posts"}
	driver := NewDriver(testScrollConfig(), page, nil, arbor.NewLogger())

	assert.True(t, driver.EndOfFeed(context.Background(), []string{"No more posts"}))
	assert.False(t, driver.EndOfFeed(context.Background(), nil), "no markers, no match")
}

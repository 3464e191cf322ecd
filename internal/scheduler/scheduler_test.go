package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/chat"
	"github.com/shaonote/starbot/internal/service"
)

type fakeDispatcher struct {
	prompts []string
	targets []chat.Target
	fail    bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, prompt string, target chat.Target) service.DispatchResult {
	f.prompts = append(f.prompts, prompt)
	f.targets = append(f.targets, target)
	if f.fail {
		return service.DispatchResult{Err: errors.New("push failed")}
	}
	return service.DispatchResult{OK: true, Reply: "ok"}
}

func taipei(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	return loc
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeDispatcher) {
	d := &fakeDispatcher{}
	return New(taipei(t), d, zap.NewNop()), d
}

func TestFire_CronRule(t *testing.T) {
	s, d := newTestScheduler(t)
	loc := s.Location()
	require.NoError(t, s.Register(Job{
		Schedule:    "30 21 2 2,4,6,8,10,12 *",
		Description: "meter reading",
		Prompt:      "remind everyone to read the meter",
		Target:      chat.LineGroup("HOUSE"),
	}))
	job := s.Jobs()[0]
	ctx := context.Background()

	tests := []struct {
		name string
		at   time.Time
		want Outcome
	}{
		{"odd month", time.Date(2026, 3, 2, 21, 30, 0, 0, loc), SkippedSchedule},
		{"wrong day", time.Date(2026, 4, 3, 21, 30, 0, 0, loc), SkippedSchedule},
		{"wrong minute", time.Date(2026, 4, 2, 21, 31, 0, 0, loc), SkippedSchedule},
		{"matching", time.Date(2026, 4, 2, 21, 30, 4, 0, loc), Dispatched},
		{"matching in utc", time.Date(2026, 12, 2, 13, 30, 0, 0, time.UTC), Dispatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Fire(ctx, job, tt.at))
		})
	}
	assert.Len(t, d.prompts, 2)
	assert.Equal(t, chat.LineGroup("HOUSE"), d.targets[0])
}

func TestFire_DateRange(t *testing.T) {
	s, d := newTestScheduler(t)
	loc := s.Location()
	require.NoError(t, s.RegisterRangeReminder(RangeReminder{
		Range:       DateRange{StartMonth: 12, StartDay: 1, EndMonth: 12, EndDay: 25},
		Hour:        8,
		Minute:      0,
		Description: "advent",
		Prompt:      "advent verse",
		Target:      chat.LineGroup("PRAY"),
	}))
	job := s.Jobs()[0]
	assert.Equal(t, "00 08 * * *", job.Schedule)
	ctx := context.Background()

	assert.Equal(t, SkippedRange, s.Fire(ctx, job, time.Date(2026, 11, 30, 8, 0, 0, 0, loc)))
	assert.Equal(t, Dispatched, s.Fire(ctx, job, time.Date(2026, 12, 1, 8, 0, 0, 0, loc)))
	assert.Equal(t, Dispatched, s.Fire(ctx, job, time.Date(2026, 12, 25, 8, 0, 0, 0, loc)))
	assert.Equal(t, SkippedRange, s.Fire(ctx, job, time.Date(2026, 12, 26, 8, 0, 0, 0, loc)))
	// 12/25 23:59 UTC is already 12/26 in Taipei
	assert.Equal(t, SkippedSchedule, s.Fire(ctx, job, time.Date(2026, 12, 25, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, SkippedRange, s.Fire(ctx, job, time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC)))

	assert.Len(t, d.prompts, 2)
}

func TestFire_FailureAndTemplate(t *testing.T) {
	s, d := newTestScheduler(t)
	d.fail = true
	loc := s.Location()
	require.NoError(t, s.Register(Job{
		Schedule:    "0 9 * * *",
		Description: "daily",
		Build:       func(now time.Time) (string, error) { return now.Format("1/2") + " hello", nil },
		Target:      chat.DiscordChannel("C1"),
	}))

	got := s.Fire(context.Background(), s.Jobs()[0], time.Date(2026, 7, 4, 9, 0, 0, 0, loc))
	assert.Equal(t, Failed, got)
	assert.Equal(t, []string{"7/4 hello"}, d.prompts)
}

func TestRegister_Rejects(t *testing.T) {
	s, _ := newTestScheduler(t)
	base := Job{Schedule: "30 21 * * *", Description: "verse", Prompt: "p", Target: chat.LineGroup("G")}

	require.NoError(t, s.Register(base))
	assert.ErrorIs(t, s.Register(base), ErrDuplicate)

	other := base
	other.Target = chat.LineGroup("G2")
	assert.NoError(t, s.Register(other))

	ranged := base
	ranged.Range = &DateRange{StartMonth: 1, StartDay: 1, EndMonth: 1, EndDay: 31}
	assert.NoError(t, s.Register(ranged))

	bad := base
	bad.Schedule = "61 25 * * *"
	assert.Error(t, s.Register(bad))

	noTarget := base
	noTarget.Description = "no target"
	noTarget.Target = chat.LineGroup("")
	assert.ErrorIs(t, s.Register(noTarget), ErrNoTarget)

	wrap := base
	wrap.Description = "wrap"
	wrap.Range = &DateRange{StartMonth: 12, StartDay: 20, EndMonth: 1, EndDay: 5}
	assert.Error(t, s.Register(wrap))

	assert.Len(t, s.Jobs(), 3)
	assert.Equal(t, 3, s.registry.Len())
}

func TestJobKey(t *testing.T) {
	j := &Job{Schedule: "30 21 * * *", Description: "verse", Target: chat.LineGroup("G")}
	assert.Equal(t, `{"s":"30 21 * * *","g":"line:G","l":"verse"}`, jobKey(j))

	j.Range = &DateRange{StartMonth: 12, StartDay: 1, EndMonth: 12, EndDay: 25}
	assert.Equal(t, `{"s":"30 21 * * *","g":"line:G","l":"verse_range_12/1-12/25"}`, jobKey(j))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has("k"))
	assert.True(t, r.Add("k"))
	assert.False(t, r.Add("k"))
	assert.True(t, r.Has("k"))
	assert.Equal(t, 1, r.Len())
}

func TestRunStops(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

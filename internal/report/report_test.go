package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"

	"github.com/google/go-cmp/cmp"
)

func TestWindow_PreviousLocalDay(t *testing.T) {
	msk := Zone(180)

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "noon moscow",
			now:       time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC),
		},
		{
			name:      "just after local midnight",
			now:       time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC),
			wantStart: time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC),
		},
		{
			name:      "month boundary",
			now:       time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 2, 28, 21, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 2, 29, 21, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Window(tt.now, msk)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("Window(%s) = [%s, %s), want [%s, %s)", tt.now, start, end, tt.wantStart, tt.wantEnd)
			}
			if end.Sub(start) != 24*time.Hour {
				t.Errorf("Expected a 24h window, got %v", end.Sub(start))
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	msk := Zone(180)

	before := time.Date(2024, 5, 2, 8, 59, 0, 0, time.UTC)
	if got, want := NextRun(before, msk, 12, 0), time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextRun before = %s, want %s", got, want)
	}

	exactly := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	if got, want := NextRun(exactly, msk, 12, 0), time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextRun exactly = %s, want %s", got, want)
	}
}

func TestZoneName(t *testing.T) {
	if got := Zone(180).String(); got != "UTC+03:00" {
		t.Errorf("Zone(180) = %q", got)
	}
	if got := Zone(-330).String(); got != "UTC-05:30" {
		t.Errorf("Zone(-330) = %q", got)
	}
}

func TestFormat(t *testing.T) {
	summary := &models.DailySummary{
		Start:            time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC),
		TotalSpendCount:  8,
		UniqueAccounts:   3,
		PurchaseCount:    2,
		PurchasedCredits: 60,
		RefundCount:      1,
		Top: []models.AccountUsage{
			{AccountId: 2, Username: "alice", Count: 5},
			{AccountId: 7, Count: 2},
		},
	}

	got := Format(summary, Zone(180))
	want := strings.Join([]string{
		"📊 Daily report for 2024-05-01 (UTC+03:00)",
		"",
		"Generations: 8",
		"Unique users: 3",
		"Purchases: 2 (60 credits)",
		"Refunds: 1 (12.5%)",
		"",
		"🏆 Top users:",
		"1. @alice (id:2): 5",
		"2. id:7: 2",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Format mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_Empty(t *testing.T) {
	summary := &models.DailySummary{Start: time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC)}
	got := Format(summary, Zone(180))
	if !strings.Contains(got, "Refunds: 0 (0.0%)") || !strings.HasSuffix(got, "No generations.") {
		t.Errorf("Unexpected empty report:\n%s", got)
	}
}

type fakeSummaryStore struct {
	mu     sync.Mutex
	ranges [][2]time.Time
}

func (f *fakeSummaryStore) DailySummary(_ context.Context, start, end time.Time, topN int) (*models.DailySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	return &models.DailySummary{Start: start, End: end, TotalSpendCount: int64(len(f.ranges))}, nil
}

type channelNotifier struct {
	events chan notify.Event
}

func (c *channelNotifier) Notify(_ context.Context, event notify.Event) {
	select {
	case c.events <- event:
	default:
	}
}

func TestScheduler_SendsReportAtConfiguredTime(t *testing.T) {
	store := &fakeSummaryStore{}
	notifier := &channelNotifier{events: make(chan notify.Event, 4)}
	scheduler := NewScheduler(store, notifier, models.ReportConfig{UTCOffsetMin: 180, Hour: 12, Minute: 0, TopN: 5})

	var mu sync.Mutex
	clock := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	var waits []time.Duration
	scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	scheduler.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		clock = clock.Add(d)
		waits = append(waits, d)
		mu.Unlock()
		ch := make(chan time.Time, 1)
		ch <- clock
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	first := <-notifier.events
	second := <-notifier.events
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if first.Kind != notify.EventReport || !strings.Contains(first.Text, "2024-05-01") {
		t.Errorf("Unexpected first report: %+v", first)
	}
	if !strings.Contains(second.Text, "2024-05-02") {
		t.Errorf("Unexpected second report: %+v", second)
	}

	mu.Lock()
	defer mu.Unlock()
	if waits[0] != 3*time.Hour {
		t.Errorf("Expected first wait of 3h, got %v", waits[0])
	}
	if waits[1] != 24*time.Hour {
		t.Errorf("Expected second wait of 24h, got %v", waits[1])
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	wantFirst := [2]time.Time{time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)}
	if !store.ranges[0][0].Equal(wantFirst[0]) || !store.ranges[0][1].Equal(wantFirst[1]) {
		t.Errorf("Unexpected first range %v", store.ranges[0])
	}
}

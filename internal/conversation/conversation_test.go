package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/intent"
)

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	registry, err := catalog.NewRegistry([]catalog.Metric{
		{ID: "gmv", Name: "GMV", Code: "gmv", Domain: "电商", Table: "fact_orders", Column: "order_amount", CalculationType: "SUM"},
		{ID: "profit", Name: "利润", Code: "profit", Domain: "营收", Table: "fact_finance", Column: "profit", CalculationType: "SUM"},
	}, nil)
	if err != nil {
		t.Fatalf("catalog.NewRegistry() error = %v", err)
	}
	return registry
}

func timeRange(start, end string) *intent.TimeRange {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return &intent.TimeRange{Start: s, End: e}
}

func TestMergeInheritsMetricAndOverridesTime(t *testing.T) {
	previous := intent.Intent{
		MetricID:   "gmv",
		CoreQuery:  "GMV",
		TimeRange:  timeRange("2026-08-12", "2026-08-19"),
		Dimensions: []string{"地区"},
		Filters:    map[string]string{"time_range": "2026-08-12 ~ 2026-08-19"},
	}
	current := intent.Intent{
		Query:      "那最近30天的呢",
		CoreQuery:  "那 的呢",
		TimeRange:  timeRange("2026-07-20", "2026-08-19"),
		Dimensions: []string{},
		Filters:    map[string]string{},
	}

	merged := Merge(previous, current, testRegistry(t))
	if merged.MetricID != "gmv" || merged.CoreQuery != "GMV" {
		t.Fatalf("merged = %+v", merged)
	}
	if merged.Filters["time_range"] != "2026-07-20 ~ 2026-08-19" {
		t.Fatalf("time_range = %q", merged.Filters["time_range"])
	}
	// same metric, so dimensions carry over
	if len(merged.Dimensions) != 1 || merged.Dimensions[0] != "地区" {
		t.Fatalf("dimensions = %+v", merged.Dimensions)
	}
}

func TestMergeInheritsTimeWhenAbsent(t *testing.T) {
	previous := intent.Intent{
		MetricID:  "gmv",
		TimeRange: timeRange("2026-08-01", "2026-08-19"),
	}
	current := intent.Intent{MetricID: "gmv", Filters: map[string]string{}}

	merged := Merge(previous, current, testRegistry(t))
	if merged.TimeRange == nil {
		t.Fatal("expected inherited time range")
	}
	if merged.Filters["time_range"] != "2026-08-01 ~ 2026-08-19" {
		t.Fatalf("time_range = %q", merged.Filters["time_range"])
	}
}

func TestMergeMetricSwitchDropsDimensions(t *testing.T) {
	previous := intent.Intent{MetricID: "gmv", Dimensions: []string{"地区"}}
	current := intent.Intent{MetricID: "profit", Dimensions: []string{}, Filters: map[string]string{}}

	merged := Merge(previous, current, testRegistry(t))
	if merged.MetricID != "profit" {
		t.Fatalf("MetricID = %q", merged.MetricID)
	}
	if len(merged.Dimensions) != 0 {
		t.Fatalf("dimensions should not carry over on metric switch: %+v", merged.Dimensions)
	}
}

func TestResolveReference(t *testing.T) {
	session := &Session{Entities: map[string]string{}}
	session.AddTurn("最近7天的GMV", intent.Intent{MetricID: "gmv"}, "GMV", 5)

	if got := session.ResolveReference("它的趋势怎么样"); got != "GMV的趋势怎么样" {
		t.Fatalf("resolved = %q", got)
	}
	if got := session.ResolveReference("没有代词"); got != "没有代词" {
		t.Fatalf("resolved = %q", got)
	}
}

func TestAddTurnTrimsHistory(t *testing.T) {
	session := &Session{}
	for i := 0; i < 8; i++ {
		session.AddTurn("q", intent.Intent{}, "", 5)
	}
	if len(session.Turns) != 5 {
		t.Fatalf("turns = %d, want 5", len(session.Turns))
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	current := time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	session := &Session{ConversationID: "c1"}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(context.Background(), "c1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	current = current.Add(2 * time.Hour)
	got, err = store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatal("expected expired session to be dropped")
	}
}

func TestManagerMintsConversationID(t *testing.T) {
	manager := NewManager(NewMemoryStore(time.Hour), 5)
	session, err := manager.GetOrCreate(context.Background(), "")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if session.ConversationID == "" {
		t.Fatal("expected generated conversation id")
	}

	named, err := manager.GetOrCreate(context.Background(), "known-id")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if named.ConversationID != "known-id" {
		t.Fatalf("ConversationID = %q", named.ConversationID)
	}
}

package decision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/media"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/safety"
	"github.com/eleven-am/spark-backend/internal/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fixture struct {
	agg    *Aggregator
	calls  *call.Store
	safety *safety.Store
	hub    *notify.Hub
	events *events.Recorder
	call   *call.Call
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		calls:  call.NewStore(db, shared.FixedClock(time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC))),
		safety: safety.NewStore(db),
		hub:    notify.NewHub(),
		events: &events.Recorder{},
	}
	if err := f.calls.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := f.safety.Migrate(); err != nil {
		t.Fatal(err)
	}

	tokens := media.NewTokenService("key", "secret", "wss://media.test", 0)
	f.agg = NewAggregator(f.calls, f.safety, tokens, f.hub, f.events, slog.New(slog.NewTextHandler(io.Discard, nil)))

	f.call = &call.Call{
		PoolID:       "pool_1",
		ParticipantA: "user_a",
		ParticipantB: "user_b",
		ChannelToken: tokens.NewChannel(),
	}
	if err := f.calls.Create(context.Background(), f.call); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestAggregator_MutualSpark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.agg.Submit(ctx, f.call.ID, "user_a", call.DecisionSpark)
	if err != nil {
		t.Fatalf("Submit(a) error = %v", err)
	}
	if v.Outcome != call.OutcomePending || !v.YourDecisionSet || v.PartnerDecisionSet {
		t.Errorf("view after first decision = %+v", v)
	}

	v, err = f.agg.Submit(ctx, f.call.ID, "user_b", call.DecisionSpark)
	if err != nil {
		t.Fatalf("Submit(b) error = %v", err)
	}
	if v.Outcome != call.OutcomeMutualSpark || v.IsMutual == nil || !*v.IsMutual {
		t.Errorf("view after both = %+v, want mutual", v)
	}

	conns, _ := f.agg.Connections(ctx, "user_a")
	if len(conns) != 1 {
		t.Errorf("connections = %d, want 1", len(conns))
	}
	if f.events.Count(events.KindCallResolved) != 1 || f.events.Count(events.KindConnectionCreated) != 1 {
		t.Errorf("events = %+v", f.events.Events())
	}
}

func TestAggregator_NoSparkLooksTheSameToBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.agg.Submit(ctx, f.call.ID, "user_a", call.DecisionSpark); err != nil {
		t.Fatal(err)
	}
	if _, err := f.agg.Submit(ctx, f.call.ID, "user_b", call.DecisionPass); err != nil {
		t.Fatal(err)
	}

	va, err := f.agg.State(ctx, f.call.ID, "user_a")
	if err != nil {
		t.Fatal(err)
	}
	vb, err := f.agg.State(ctx, f.call.ID, "user_b")
	if err != nil {
		t.Fatal(err)
	}

	if va.Outcome != call.OutcomeNoSpark {
		t.Errorf("Outcome = %q, want no_spark", va.Outcome)
	}
	va.Role, vb.Role = "", ""
	if *va.IsMutual != *vb.IsMutual {
		t.Fatal("sides disagree on mutuality")
	}
	if !reflect.DeepEqual(va, vb) {
		t.Errorf("terminal views differ:\n a=%+v\n b=%+v", va, vb)
	}

	if conns, _ := f.agg.Connections(ctx, "user_a"); len(conns) != 0 {
		t.Errorf("connections = %d, want 0", len(conns))
	}
	if f.events.Count(events.KindConnectionCreated) != 0 {
		t.Error("no connection event expected")
	}
}

func TestAggregator_ExitBeforePartnerDecides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, _ := f.hub.Subscribe(ctx, notify.CallTopic(f.call.ID))
	defer sub.Close()

	if _, err := f.agg.Submit(ctx, f.call.ID, "user_a", call.DecisionSpark); err != nil {
		t.Fatal(err)
	}
	if _, err := f.agg.Exit(ctx, f.call.ID, "user_a"); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}

	vb, err := f.agg.State(ctx, f.call.ID, "user_b")
	if err != nil {
		t.Fatal(err)
	}
	if vb.Status == call.StatusActive || vb.Outcome != call.OutcomeEnded {
		t.Errorf("partner view = %+v, want ended", vb)
	}
	if vb.IsMutual != nil || vb.ChannelToken != "" {
		t.Errorf("ended view leaks state: %+v", vb)
	}

	vb, err = f.agg.Submit(ctx, f.call.ID, "user_b", call.DecisionSpark)
	if err != nil {
		t.Fatalf("late Submit() error = %v", err)
	}
	if vb.Outcome != call.OutcomeEnded {
		t.Errorf("late decision changed outcome to %q", vb.Outcome)
	}

	notified := 0
	for len(sub.C()) > 0 {
		<-sub.C()
		notified++
	}
	if notified != 2 {
		t.Errorf("notifications = %d, want 2 (decision and exit)", notified)
	}
	if f.events.Count(events.KindCallExited) != 1 {
		t.Errorf("call.exited events = %d, want 1", f.events.Count(events.KindCallExited))
	}
}

func TestAggregator_Submit_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.agg.Submit(ctx, f.call.ID, "user_a", call.DecisionPass); err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
	}
	c, _ := f.calls.GetByID(ctx, f.call.ID)
	if c.DecisionA != call.DecisionPass || c.DecisionB != call.DecisionUnset {
		t.Errorf("decisions = %q/%q", c.DecisionA, c.DecisionB)
	}
}

func TestAggregator_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		callID string
		user   string
		d      call.Decision
		want   error
	}{
		{"missing call", "call_missing", "user_a", call.DecisionSpark, shared.ErrNotFound},
		{"outsider", f.call.ID, "user_c", call.DecisionSpark, shared.ErrNotAParticipant},
		{"invalid decision", f.call.ID, "user_a", call.Decision("maybe"), ErrInvalidDecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.agg.Submit(ctx, tt.callID, tt.user, tt.d)
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAggregator_Report(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.agg.Report(ctx, f.call.ID, "user_b", "rude")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if v.Status != call.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", v.Status)
	}

	reports, _ := f.safety.ReportsForCall(ctx, f.call.ID)
	if len(reports) != 1 || reports[0].ReporterID != "user_b" || reports[0].Reason != "rude" {
		t.Errorf("reports = %+v", reports)
	}

	exited := f.events.Events()
	if len(exited) != 1 || exited[0].Reason != "report" {
		t.Errorf("events = %+v", exited)
	}
}

func TestAggregator_Join(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.agg.Join(ctx, f.call.ID, "user_b")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if grant.Identity != f.call.ID+":b" || grant.Room != f.call.ChannelToken || grant.Token == "" {
		t.Errorf("grant = %+v", grant)
	}
	if strings.Contains(grant.Identity, "user_b") {
		t.Error("media identity must not contain the user id")
	}

	_, _ = f.agg.Exit(ctx, f.call.ID, "user_a")
	if _, err := f.agg.Join(ctx, f.call.ID, "user_b"); !errors.Is(err, ErrCallEnded) {
		t.Errorf("Join() after exit error = %v, want ErrCallEnded", err)
	}
}

package gormrepository

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"zkpay/internal/models"
	"zkpay/internal/repository"
)

// dryRunDB builds statements without a server behind the DSN.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=zkpay dbname=zkpay sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func TestNormalizeLimitAndOffset(t *testing.T) {
	limits := []struct{ in, want int }{
		{0, 200},
		{-5, 200},
		{50, 50},
		{1000, 1000},
		{5000, 1000},
	}
	for _, tc := range limits {
		if got := normalizeLimit(tc.in, 200); got != tc.want {
			t.Fatalf("normalizeLimit(%d)=%d want %d", tc.in, got, tc.want)
		}
	}
	if got := normalizeOffset(-1); got != 0 {
		t.Fatalf("normalizeOffset(-1)=%d want 0", got)
	}
	if got := normalizeOffset(30); got != 30 {
		t.Fatalf("normalizeOffset(30)=%d want 30", got)
	}
}

func TestTradeEventsQuery_AllFilters(t *testing.T) {
	db := dryRunDB(t)
	tradeID, kind, asc := " 0xt1 ", "transition", true
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var items []models.TradeEvent
	stmt := tradeEventsQuery(db, repository.ListTradeEventsParams{
		Limit:     5000,
		Offset:    5,
		SessionID: "s1",
		TradeID:   &tradeID,
		Kind:      &kind,
		Since:     &since,
		Asc:       &asc,
	}).Find(&items).Statement

	sql := stmt.SQL.String()
	for _, want := range []string{
		`FROM "trade_events"`,
		"session_id = $1",
		"trade_id = $2",
		"kind = $3",
		"occurred_at >= $4",
		"ORDER BY occurred_at asc,id asc",
		"LIMIT $5 OFFSET $6",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sql=%q missing %q", sql, want)
		}
	}
	if len(stmt.Vars) != 6 || stmt.Vars[0] != "s1" || stmt.Vars[1] != "0xt1" || stmt.Vars[4] != 1000 || stmt.Vars[5] != 5 {
		t.Fatalf("vars=%v", stmt.Vars)
	}
}

func TestTradeEventsQuery_DefaultsSkipBlankFilters(t *testing.T) {
	db := dryRunDB(t)
	blank := "  "

	var items []models.TradeEvent
	stmt := tradeEventsQuery(db, repository.ListTradeEventsParams{TradeID: &blank, Since: &time.Time{}}).Find(&items).Statement

	sql := stmt.SQL.String()
	if strings.Contains(sql, "WHERE") {
		t.Fatalf("sql=%q want no filters", sql)
	}
	if !strings.Contains(sql, "ORDER BY occurred_at desc,id desc") {
		t.Fatalf("sql=%q want newest first", sql)
	}
	if len(stmt.Vars) != 1 || stmt.Vars[0] != 200 {
		t.Fatalf("vars=%v want default limit only", stmt.Vars)
	}
}

func TestStore_NilAndZeroCutoff(t *testing.T) {
	var s *Store
	if items, err := s.ListTradeEvents(context.Background(), repository.ListTradeEventsParams{}); items != nil || err != nil {
		t.Fatalf("items=%v err=%v", items, err)
	}
	n, err := New(dryRunDB(t)).DeleteTradeEventsBefore(context.Background(), time.Time{})
	if n != 0 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if err := s.InsertTradeEvent(context.Background(), &models.TradeEvent{}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

package store

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

func TestFormatTime(t *testing.T) {
	ny := time.FixedZone("EST", -5*60*60)
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), "2024-01-15T12:00:00.000000Z"},
		{time.Date(2024, 1, 15, 7, 0, 0, 0, ny), "2024-01-15T12:00:00.000000Z"},
		{time.Date(2024, 1, 15, 12, 0, 0, 123456789, time.UTC), "2024-01-15T12:00:00.123456Z"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.in); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime_TextOrderIsTimeOrder(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(10 * time.Second),
		base.Add(time.Microsecond),
		base,
		base.Add(999 * time.Millisecond),
		base.Add(-time.Hour),
	}
	texts := make([]string, len(times))
	for i, ts := range times {
		texts[i] = FormatTime(ts)
	}
	sort.Strings(texts)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	for i := range times {
		if texts[i] != FormatTime(times[i]) {
			t.Fatalf("text order differs from time order at %d: %s vs %s", i, texts[i], FormatTime(times[i]))
		}
	}
}

func TestParseTime_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 8, 21, 5, 9, 42000, time.UTC)
	got, err := ParseTime(FormatTime(ts))
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("ParseTime() = %v, want %v", got, ts)
	}

	if _, err := ParseTime("2024-03-08 21:05:09"); err == nil {
		t.Error("expected error for non-canonical time")
	}
}

func TestTransformNews(t *testing.T) {
	yes, no := true, false
	insertedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	article := model.NewsArticle{
		URL:         "HTTPS://News.Example.com:443/story?utm_source=x&id=7#top",
		Headline:    "Apple beats",
		PublishedAt: time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC),
		Source:      "Example News",
		Kind:        model.NewsCompany,
		Symbols: []model.SymbolLink{
			{Symbol: "aapl"},
			{Symbol: "AAPL", Important: &yes},
			{Symbol: "msft", Important: &no},
			{Symbol: "  "},
		},
		SourceID: 42,
	}

	row, err := transformNews(article, model.ProviderFinnhub, insertedAt)
	if err != nil {
		t.Fatalf("transformNews() error = %v", err)
	}

	if row.URL != "https://news.example.com/story?id=7" {
		t.Errorf("URL = %q", row.URL)
	}
	if row.Content != nil {
		t.Errorf("Content = %q, want nil", *row.Content)
	}
	if row.SourceID == nil || *row.SourceID != 42 {
		t.Errorf("SourceID = %v, want 42", row.SourceID)
	}
	if row.PublishedAt != "2024-01-15T11:30:00.000000Z" {
		t.Errorf("PublishedAt = %q", row.PublishedAt)
	}
	if row.Provider != "finnhub" || row.Kind != "company" {
		t.Errorf("Provider/Kind = %q/%q", row.Provider, row.Kind)
	}
	if len(row.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2", len(row.Links))
	}
	if row.Links[0].Symbol != "AAPL" || row.Links[0].Important == nil || !*row.Links[0].Important {
		t.Errorf("Links[0] = %+v, want AAPL important", row.Links[0])
	}
	if row.Links[1].Symbol != "MSFT" || row.Links[1].Important == nil || *row.Links[1].Important {
		t.Errorf("Links[1] = %+v, want MSFT not important", row.Links[1])
	}
}

func TestTransformNews_InvalidURL(t *testing.T) {
	_, err := transformNews(model.NewsArticle{URL: "ftp://example.com/x"}, model.ProviderRSS, time.Now())
	if err == nil {
		t.Error("expected error for non-http URL")
	}
}

func TestTransformPrice(t *testing.T) {
	vol := int64(1200)
	p := model.PriceObservation{
		Symbol:    "aapl",
		Timestamp: time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC),
		Price:     decimal.RequireFromString("150.2500"),
		Volume:    &vol,
		Session:   model.SessionRegular,
		Source:    "polygon-price",
	}

	row := transformPrice(p, time.Date(2024, 1, 16, 15, 0, 1, 0, time.UTC))

	if row.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", row.Symbol)
	}
	if row.Price != "150.25" {
		t.Errorf("Price = %q, want 150.25", row.Price)
	}
	if row.Timestamp != "2024-01-16T15:00:00.000000Z" {
		t.Errorf("Timestamp = %q", row.Timestamp)
	}
	if row.InsertedAt != "2024-01-16T15:00:01.000000Z" {
		t.Errorf("InsertedAt = %q", row.InsertedAt)
	}
	if row.Session != "regular" {
		t.Errorf("Session = %q", row.Session)
	}
}

func TestTransformSocial(t *testing.T) {
	row := transformSocial(model.SocialDiscussion{
		Source:      "reddit",
		SourceID:    "t3_abc",
		Symbol:      "tsla",
		Community:   "wallstreetbets",
		Title:       "TSLA to the moon",
		PublishedAt: time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC),
		Content:     "body",
	}, time.Now())

	if row.Symbol != "TSLA" {
		t.Errorf("Symbol = %q, want TSLA", row.Symbol)
	}
	if row.Content == nil || *row.Content != "body" {
		t.Errorf("Content = %v, want body", row.Content)
	}
}

func TestWrapErr(t *testing.T) {
	check := &pgconn.PgError{
		Code:           "23514",
		Message:        "new row violates check constraint",
		TableName:      "last_seen_state",
		ConstraintName: "last_seen_state_one_value",
	}

	err := wrapErr("upsert watermark", fmt.Errorf("exec: %w", check))
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("wrapErr() = %T, want *ConstraintError", err)
	}
	if ce.Constraint != "last_seen_state_one_value" || ce.Table != "last_seen_state" {
		t.Errorf("ConstraintError = %+v", ce)
	}
	if !IsConstraint(err) {
		t.Error("IsConstraint() = false, want true")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("ConstraintError does not unwrap to *pgconn.PgError")
	}

	other := wrapErr("store news", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	if IsConstraint(other) {
		t.Error("undefined table reported as constraint violation")
	}

	if wrapErr("noop", nil) != nil {
		t.Error("wrapErr(nil) != nil")
	}
}

func TestWriteResult_Total(t *testing.T) {
	r := WriteResult{Inserts: 3, Updates: 1, Conflicts: 2}
	if r.Total() != 6 {
		t.Errorf("Total() = %d, want 6", r.Total())
	}
}

func TestCheckCutoff(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		cutoff  time.Time
		wantErr bool
	}{
		{"well behind now", now.Add(-time.Hour), false},
		{"exactly the minimum lag", now.Add(-MinCommitLag), false},
		{"inside the write window", now.Add(-30 * time.Second), true},
		{"now", now, true},
		{"future", now.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCutoff(tt.cutoff, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkCutoff(%s) error = %v, wantErr %v", FormatTime(tt.cutoff), err, tt.wantErr)
			}
		})
	}
}

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/marketfeed/internal/api"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

type postItem struct {
	ID          json.RawMessage `json:"id"` // string or number
	Symbol      string          `json:"symbol"`
	Community   string          `json:"community"`
	Title       string          `json:"title"`
	PublishedAt string          `json:"published_at"`
	Content     string          `json:"content"`
}

// SocialFeed is a source.SocialSource over a JSON discussion endpoint.
type SocialFeed struct {
	base
}

var _ source.SocialSource = (*SocialFeed)(nil)

// NewSocialFeed creates a social feed.
func NewSocialFeed(cfg Config, client *api.Client, logger *slog.Logger) *SocialFeed {
	return &SocialFeed{base: newBase(cfg, client, logger)}
}

// FetchIncremental fetches posts newer than the plan's cursor. Like the news
// feed, a failed symbol request only fails the fetch when all of them failed.
func (f *SocialFeed) FetchIncremental(ctx context.Context, plan model.CursorPlan) ([]model.SocialDiscussion, error) {
	var (
		out    []model.SocialDiscussion
		failed []error
	)
	reqs := planRequests(plan)
	for _, req := range reqs {
		raws, err := f.fetchEnvelope(ctx, req.query, "posts")
		if err != nil {
			if err := f.requestFailed(ctx, req, err, &failed); err != nil {
				return nil, err
			}
			continue
		}
		for i, raw := range raws {
			d, err := f.parse(raw, req.symbol)
			if err != nil {
				f.skip(itemLabel(i, d.SourceID), err)
				continue
			}
			out = append(out, d)
		}
	}
	if len(failed) == len(reqs) {
		return nil, errors.Join(failed...)
	}
	return out, nil
}

func (f *SocialFeed) parse(raw json.RawMessage, symbol string) (model.SocialDiscussion, error) {
	var it postItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.SocialDiscussion{}, err
	}
	d := model.SocialDiscussion{
		Source:    f.cfg.Name,
		SourceID:  rawID(it.ID),
		Symbol:    model.NormalizeSymbol(it.Symbol),
		Community: it.Community,
		Title:     strings.TrimSpace(it.Title),
		Content:   it.Content,
	}
	if d.SourceID == "" {
		return d, errors.New("missing id")
	}
	if d.Symbol == "" {
		d.Symbol = symbol
	}
	if d.Symbol == "" {
		return d, errors.New("missing symbol")
	}
	ts, err := parseTime(it.PublishedAt)
	if err != nil {
		return d, fmt.Errorf("published_at: %w", err)
	}
	d.PublishedAt = ts
	return d, nil
}

// rawID returns a JSON string or number id as text.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/poller"
	"github.com/rickgao/marketfeed/internal/store"
)

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	LastCycle string `json:"last_cycle,omitempty"`
	CycleAge  string `json:"cycle_age,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{Status: "ok", Database: "ok"}
	code := http.StatusOK

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp.Status, resp.Database = "unavailable", err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	if s.deps.Cycles != nil {
		if last, ok := s.deps.Cycles.LastCycle(); ok {
			age := s.now().Sub(last.Started)
			resp.LastCycle = last.ID
			resp.CycleAge = age.Truncate(time.Second).String()
			if s.cfg.StaleAfter > 0 && age > s.cfg.StaleAfter {
				resp.Status = "stale"
				code = http.StatusServiceUnavailable
			}
		}
	}

	c.JSON(code, resp)
}

type watermarkResponse struct {
	Provider  string  `json:"provider"`
	Stream    string  `json:"stream"`
	Scope     string  `json:"scope"`
	Symbol    string  `json:"symbol"`
	Timestamp *string `json:"timestamp,omitempty"`
	ID        *int64  `json:"id,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

func (s *Server) watermarks(c *gin.Context) {
	if s.deps.Watermarks == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "watermark store not configured"})
		return
	}
	marks, err := s.deps.Watermarks.List(c.Request.Context())
	if err != nil {
		s.logger.Warn("list watermarks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	provider := c.Query("provider")
	out := make([]watermarkResponse, 0, len(marks))
	for _, w := range marks {
		if provider != "" && string(w.Key.Provider) != provider {
			continue
		}
		out = append(out, toWatermarkResponse(w))
	}
	c.JSON(http.StatusOK, out)
}

func toWatermarkResponse(w model.Watermark) watermarkResponse {
	r := watermarkResponse{
		Provider: string(w.Key.Provider),
		Stream:   string(w.Key.Stream),
		Scope:    string(w.Key.Scope),
		Symbol:   w.Key.Symbol,
		ID:       w.ID,
	}
	if w.Timestamp != nil {
		ts := store.FormatTime(*w.Timestamp)
		r.Timestamp = &ts
	}
	if !w.UpdatedAt.IsZero() {
		r.UpdatedAt = store.FormatTime(w.UpdatedAt)
	}
	return r
}

type cycleError struct {
	Source string `json:"source"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

type cycleMismatch struct {
	Symbol         string `json:"symbol"`
	Primary        string `json:"primary"`
	Secondary      string `json:"secondary"`
	PrimaryPrice   string `json:"primary_price"`
	SecondaryPrice string `json:"secondary_price"`
	Diff           string `json:"diff"`
}

type cycleResponse struct {
	ID         string          `json:"id"`
	Started    string          `json:"started"`
	Duration   string          `json:"duration"`
	Counts     map[string]int  `json:"counts"`
	Errors     []cycleError    `json:"errors"`
	Warnings   []string        `json:"warnings"`
	Mismatches []cycleMismatch `json:"mismatches"`
	Committed  int             `json:"watermarks_committed"`
}

func (s *Server) cycle(c *gin.Context) {
	if s.deps.Cycles == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poller not running"})
		return
	}
	last, ok := s.deps.Cycles.LastCycle()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle completed yet"})
		return
	}
	c.JSON(http.StatusOK, toCycleResponse(last))
}

func toCycleResponse(r poller.CycleResult) cycleResponse {
	out := cycleResponse{
		ID:         r.ID,
		Started:    store.FormatTime(r.Started),
		Duration:   r.Duration.String(),
		Counts:     make(map[string]int, len(r.Counts)),
		Errors:     make([]cycleError, 0, len(r.Errors)),
		Warnings:   append([]string{}, r.Warnings...),
		Mismatches: make([]cycleMismatch, 0, len(r.Mismatches)),
		Committed:  r.Committed,
	}
	for k, v := range r.Counts {
		out.Counts[string(k)] = v
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, cycleError{Source: e.Source, Stage: string(e.Stage), Error: e.Err.Error()})
	}
	for _, m := range r.Mismatches {
		out.Mismatches = append(out.Mismatches, cycleMismatch{
			Symbol:         m.Symbol,
			Primary:        m.Primary,
			Secondary:      m.Secondary,
			PrimaryPrice:   m.PrimaryPrice.String(),
			SecondaryPrice: m.SecondaryPrice.String(),
			Diff:           m.Diff.String(),
		})
	}
	return out
}

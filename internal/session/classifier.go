package session

import (
	"log/slog"
	"time"
	_ "time/tzdata" // exchange timezone must resolve on minimal images

	"github.com/rickgao/marketfeed/internal/model"
)

// DefaultTimezone is the exchange timezone for US equities.
const DefaultTimezone = "America/New_York"

const (
	preOpen     = 4 * time.Hour
	regularOpen = 9*time.Hour + 30*time.Minute
	postClose   = 20 * time.Hour
)

// Classifier maps instants to market sessions.
type Classifier struct {
	loc          *time.Location
	cal          Calendar
	defaultClose time.Duration
	logger       *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocation overrides the exchange timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		c.loc = loc
	}
}

// WithDefaultClose sets the close used when the calendar lookup fails.
func WithDefaultClose(d time.Duration) Option {
	return func(c *Classifier) {
		c.defaultClose = d
	}
}

// NewClassifier creates a Classifier. A nil calendar uses the NYSE rules.
func NewClassifier(cal Calendar, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cal == nil {
		cal = NewNYSECalendar()
	}
	c := &Classifier{
		cal:          cal,
		defaultClose: regularClose,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			// tzdata is embedded, so this only happens with a broken build.
			logger.Warn("exchange timezone unavailable, using fixed EST", "error", err)
			loc = time.FixedZone("EST", -5*60*60)
		}
		c.loc = loc
	}
	return c
}

// Classify returns the session label for ts.
func (c *Classifier) Classify(ts time.Time) model.Session {
	local := ts.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return model.SessionClosed
	}

	day, err := c.cal.Day(local)
	if err != nil {
		c.logger.Warn("calendar lookup failed, assuming default close",
			"date", local.Format(time.DateOnly),
			"default_close", c.defaultClose,
			"error", err,
		)
		day = DayInfo{Open: true, Close: c.defaultClose}
	}
	if !day.Open {
		return model.SessionClosed
	}

	h, m, s := local.Clock()
	wall := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second

	switch {
	case wall >= preOpen && wall < regularOpen:
		return model.SessionPre
	case wall >= regularOpen && wall < day.Close:
		return model.SessionRegular
	case wall >= day.Close && wall < postClose:
		return model.SessionPost
	default:
		return model.SessionClosed
	}
}

// Package planner decides, without any I/O, whether a symbol's cached series is current,
// needs a catch-up fetch, or must be rebuilt.
package planner

import (
	"fmt"
	"time"

	"MarketVault/internal/model"
)

// MaxIncrementalDays is the largest calendar-day gap still caught up incrementally.
const MaxIncrementalDays = 30

// Session describes when a market's daily data becomes available.
type Session struct {
	Location *time.Location
	// Cutoff is the offset from local midnight after which today's bar is expected.
	Cutoff time.Duration
}

// DefaultSessions returns the built-in session table.
func DefaultSessions() map[model.Market]Session {
	return map[model.Market]Session{
		model.MarketUS: {Location: mustLoad("America/New_York"), Cutoff: 16*time.Hour + 30*time.Minute},
		model.MarketHK: {Location: mustLoad("Asia/Hong_Kong"), Cutoff: 16*time.Hour + 30*time.Minute},
		model.MarketCN: {Location: mustLoad("Asia/Shanghai"), Cutoff: 15*time.Hour + 30*time.Minute},
	}
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Planner classifies symbols. It is immutable and safe for concurrent use.
type Planner struct {
	sessions map[model.Market]Session
	fallback Session
}

// New builds a Planner. Markets missing from sessions use fallback; a nil fallback
// location means UTC.
func New(sessions map[model.Market]Session, fallback Session) *Planner {
	if fallback.Location == nil {
		fallback.Location = time.UTC
	}
	copied := make(map[model.Market]Session, len(sessions))
	for m, s := range sessions {
		if s.Location == nil {
			s.Location = fallback.Location
		}
		copied[m] = s
	}
	return &Planner{sessions: copied, fallback: fallback}
}

// NewDefault builds a Planner from DefaultSessions with a UTC 16:30 fallback.
func NewDefault() *Planner {
	return New(DefaultSessions(), Session{Location: time.UTC, Cutoff: 16*time.Hour + 30*time.Minute})
}

func (p *Planner) session(m model.Market) Session {
	if s, ok := p.sessions[m]; ok {
		return s
	}
	return p.fallback
}

// ExpectedLatestDate returns the newest trading date whose bar should already be
// published at now. Weekends roll back to Friday; before the cutoff on a weekday the
// previous trading day is expected.
func (p *Planner) ExpectedLatestDate(market model.Market, now time.Time) time.Time {
	s := p.session(market)
	local := now.In(s.Location)
	today := model.DateOf(local)

	expected := today
	if wd := today.Weekday(); wd != time.Saturday && wd != time.Sunday {
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
		if local.Before(midnight.Add(s.Cutoff)) {
			expected = today.AddDate(0, 0, -1)
		}
	}
	return rollBackWeekend(expected)
}

func rollBackWeekend(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	}
	return d
}

// Classify returns the update plan for sym given the date of its newest cached bar.
// hasCache is false when nothing is stored; lastDate is then ignored.
func (p *Planner) Classify(sym model.Symbol, lastDate time.Time, hasCache bool, now time.Time, force bool) model.UpdatePlan {
	plan := model.UpdatePlan{Symbol: sym}
	switch {
	case force:
		plan.Action = model.ActionFullRefresh
		plan.Reason = "forced rebuild"
		return plan
	case !hasCache:
		plan.Action = model.ActionFullRefresh
		plan.Reason = "first sync"
		return plan
	}

	last := model.DateOf(lastDate)
	expected := p.ExpectedLatestDate(sym.Market, now)
	if !last.Before(expected) {
		plan.Action = model.ActionSkip
		plan.Reason = fmt.Sprintf("up to date through %s", last.Format(time.DateOnly))
		return plan
	}

	today := model.DateOf(now.In(p.session(sym.Market).Location))
	missing := model.DaysBetween(last, today)
	if missing <= MaxIncrementalDays {
		plan.Action = model.ActionIncremental
		plan.From = last.AddDate(0, 0, 1)
		plan.Reason = fmt.Sprintf("%d days behind", missing)
		return plan
	}
	plan.Action = model.ActionFullRefresh
	plan.Reason = fmt.Sprintf("%d days behind, too large to catch up", missing)
	return plan
}

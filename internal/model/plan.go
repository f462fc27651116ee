package model

import (
	"fmt"
	"time"
)

// Action is the update decision for one symbol.
type Action int

const (
	ActionSkip Action = iota
	ActionIncremental
	ActionFullRefresh
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionIncremental:
		return "incremental"
	case ActionFullRefresh:
		return "full_refresh"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// UpdatePlan is the planner's verdict for one symbol. From is set only for incremental plans.
type UpdatePlan struct {
	Symbol Symbol
	Action Action
	From   time.Time
	Reason string
}

func (p UpdatePlan) String() string {
	if p.Action == ActionIncremental {
		return fmt.Sprintf("%s %s from %s (%s)", p.Symbol, p.Action, p.From.Format(time.DateOnly), p.Reason)
	}
	return fmt.Sprintf("%s %s (%s)", p.Symbol, p.Action, p.Reason)
}

package health

import (
	"context"
	"errors"
)

// ErrNoRules is reported by [RulesLoaded] when the rule table is empty.
var ErrNoRules = errors.New("no tag rules loaded")

// RuleCounter reports how many tag rules are active. *rules.Store satisfies it.
type RuleCounter interface {
	Len() int
}

// RulesLoaded fails while rc holds no rules.
func RulesLoaded(rc RuleCounter) Checker {
	return Checker{Name: "rules", Check: func(context.Context) error {
		if rc.Len() == 0 {
			return ErrNoRules
		}
		return nil
	}}
}

// Pinger is implemented by backends that can report their own health, such
// as the Postgres archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping wraps p as a checker named name.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

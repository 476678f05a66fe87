package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/gtdsync/gtd/internal/apperr"
	"github.com/gtdsync/gtd/internal/schema"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDue turns user input into a calendar date. It accepts ISO dates,
// RFC 3339 timestamps and English phrases such as "tomorrow" or
// "next friday", resolved relative to now. Empty input means no due date.
func ParseDue(input string, now time.Time) (*time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	if d, err := time.Parse(schema.DateLayout, input); err == nil {
		return &d, nil
	}
	if ts, err := time.Parse(time.RFC3339, input); err == nil {
		return dateOf(ts), nil
	}

	r, err := dueParser.Parse(input, now)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid due date %q: %v", apperr.ErrValidation, input, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: unrecognized due date %q", apperr.ErrValidation, input)
	}
	return dateOf(r.Time), nil
}

func dateOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

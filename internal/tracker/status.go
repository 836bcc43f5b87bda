package tracker

import (
	"time"

	"github.com/lehigh-university-libraries/radtrack/internal/history"
	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/reconcile"
	"github.com/lehigh-university-libraries/radtrack/internal/timer"
)

// Status is what the progress panel of a page shows.
type Status struct {
	Domain      localstore.Domain
	AccessCode  string
	Elapsed     time.Duration
	Formatted   string
	Paused      bool
	ManualPause bool
	Correct     int64
	Incorrect   int64
	Cases       int64
	Images      int64
	Server      *reconcile.Summary
	Recent      Recent
}

// Recent is the rolling metric over the history ring. Only the field of the
// tracker's domain is set.
type Recent struct {
	Cases   *history.CaseStats
	Reports *history.ReportStats
}

func (t *Tracker) Status() Status {
	fields := t.timer.Snapshot()
	elapsed := t.timer.Elapsed()
	st := Status{
		Domain:      t.domain,
		AccessCode:  t.ns.AccessCode(),
		Elapsed:     elapsed,
		Formatted:   timer.Format(elapsed),
		Paused:      fields.Paused,
		ManualPause: fields.ManualPause,
		Correct:     max(t.ns.Int(localstore.FieldCorrect), 0),
		Incorrect:   max(t.ns.Int(localstore.FieldIncorrect), 0),
		Cases:       max(t.ns.Int(localstore.FieldCases), 0),
		Images:      max(t.ns.Int(localstore.FieldImages), 0),
		Recent:      t.Recent(),
	}
	if s, ok := t.agent.Cached(); ok {
		st.Server = &s
	}
	return st
}

// Recent summarizes the last history.Capacity entries of the domain.
func (t *Tracker) Recent() Recent {
	if t.domain == localstore.DomainReport {
		stats := history.SummarizeReports(history.Load[history.ReportEntry](t.ns, localstore.FieldRecentScores).Items())
		return Recent{Reports: &stats}
	}
	stats := history.SummarizeCases(history.Load[history.CaseEntry](t.ns, localstore.FieldRecentCases).Items())
	return Recent{Cases: &stats}
}

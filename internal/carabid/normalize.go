package carabid

import (
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
)

// NormalizeSamples converts collected field samples into trapping records:
// exposure duration in whole days, repeat collections of the same set
// adjusted to incremental durations, and collect dates resolved to one bout
// date per sampling event.
//
// Samples never collected are dropped first. A collected sample missing
// either date, or collected before it was set, is fatal.
func NormalizeSamples(samples []FieldSample) ([]TrappingRecord, error) {
	collected := make([]FieldSample, 0, len(samples))
	for _, s := range samples {
		if s.Collected {
			collected = append(collected, s)
		}
	}

	for _, s := range collected {
		if s.SetDate.IsZero() || s.CollectDate.IsZero() {
			return nil, eris.Errorf("normalize: sample %q: collected but missing set or collect date", s.SampleID)
		}
		if s.CollectDate.Before(s.SetDate) {
			return nil, eris.Errorf("normalize: sample %q: collect date %s precedes set date %s",
				s.SampleID, s.CollectDate.Format(DateLayout), s.SetDate.Format(DateLayout))
		}
	}

	days := make([]int, len(collected))
	for i, s := range collected {
		days[i] = int(s.CollectDate.Sub(s.SetDate) / (24 * time.Hour))
	}
	adjustRepeatCollections(collected, days)

	resolved := resolveBoutDates(collected)

	out := make([]TrappingRecord, len(collected))
	for i, s := range collected {
		date := resolved[i]
		out[i] = TrappingRecord{
			SampleID:     s.SampleID,
			DomainID:     s.DomainID,
			SiteID:       s.SiteID,
			PlotID:       s.PlotID,
			TrapID:       s.TrapID,
			CollectDate:  date,
			TrappingDays: days[i],
			BoutID:       s.SiteID + "_" + date.Format(DateLayout),
		}
	}
	return out, nil
}

type setKey struct {
	sampleID string
	domainID string
	siteID   string
	plotID   string
	trapID   string
	setDate  time.Time
}

// adjustRepeatCollections handles traps serviced more than once off a single
// set: rows sharing everything but their collect date cover overlapping
// exposure windows, so each later collection is cut down to the days since
// the previous one. The earliest collection keeps its full duration.
// Duplicate rows with identical collect dates are left alone.
func adjustRepeatCollections(samples []FieldSample, days []int) {
	groups := make(map[setKey][]int)
	for i, s := range samples {
		k := setKey{s.SampleID, s.DomainID, s.SiteID, s.PlotID, s.TrapID, s.SetDate}
		groups[k] = append(groups[k], i)
	}

	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		dates := make(map[time.Time]struct{}, len(idxs))
		for _, i := range idxs {
			dates[samples[i].CollectDate] = struct{}{}
		}
		if len(dates) < 2 {
			continue
		}

		min := days[idxs[0]]
		for _, i := range idxs[1:] {
			if days[i] < min {
				min = days[i]
			}
		}
		for _, i := range idxs {
			if days[i] > min {
				days[i] -= min
			}
		}
	}
}

// resolveBoutDates picks one collect date per sampling event so that traps
// serviced a day apart still land in the same bout. The most frequent date
// within an event wins; ties go to the date seen earliest in input order.
// Rows without an event identifier keep their own date.
func resolveBoutDates(samples []FieldSample) []time.Time {
	type tally struct {
		count int
		first int
	}
	events := make(map[string]map[time.Time]*tally)
	for i, s := range samples {
		ev := normalizeEventID(s.EventID)
		if ev == "" {
			continue
		}
		m := events[ev]
		if m == nil {
			m = make(map[time.Time]*tally)
			events[ev] = m
		}
		if t := m[s.CollectDate]; t != nil {
			t.count++
		} else {
			m[s.CollectDate] = &tally{count: 1, first: i}
		}
	}

	winners := make(map[string]time.Time, len(events))
	for ev, m := range events {
		var win time.Time
		winCount, winFirst := 0, 0
		for date, t := range m {
			if t.count > winCount || (t.count == winCount && t.first < winFirst) {
				win, winCount, winFirst = date, t.count, t.first
			}
		}
		winners[ev] = win
	}

	out := make([]time.Time, len(samples))
	for i, s := range samples {
		if ev := normalizeEventID(s.EventID); ev != "" {
			out[i] = winners[ev]
		} else {
			out[i] = s.CollectDate
		}
	}
	return out
}

// normalizeEventID strips separator characters so identifiers that differ
// only in punctuation, like "HARV.2018.3" and "HARV_2018_3", resolve to the
// same sampling event.
func normalizeEventID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

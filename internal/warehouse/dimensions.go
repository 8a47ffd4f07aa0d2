package warehouse

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/channel-warehouse/internal/domain"
)

// BuildChannels aggregates staging rows into one channel row per name,
// sorted by name. ChannelKey is left zero; the store assigns it.
func BuildChannels(records []domain.StagingRecord) []domain.ChannelDimension {
	type agg struct {
		dim      domain.ChannelDimension
		views    int64
		forwards int64
	}
	byName := make(map[string]*agg)

	for _, r := range records {
		a, ok := byName[r.ChannelName]
		if !ok {
			a = &agg{dim: domain.ChannelDimension{
				ChannelName: r.ChannelName,
				Category:    Classify(r.ChannelName),
				FirstSeenAt: r.CapturedAt,
				LastSeenAt:  r.CapturedAt,
			}}
			byName[r.ChannelName] = a
		}
		if r.CapturedAt.Before(a.dim.FirstSeenAt) {
			a.dim.FirstSeenAt = r.CapturedAt
		}
		if r.CapturedAt.After(a.dim.LastSeenAt) {
			a.dim.LastSeenAt = r.CapturedAt
		}
		a.dim.TotalRecords++
		a.views += r.ViewCount
		a.forwards += r.ForwardCount
		if r.HasAttachment {
			a.dim.TotalWithAttachment++
		}
	}

	out := make([]domain.ChannelDimension, 0, len(byName))
	for _, a := range byName {
		n := float64(a.dim.TotalRecords)
		a.dim.AvgViews = round2(float64(a.views) / n)
		a.dim.AvgForwards = round2(float64(a.forwards) / n)
		out = append(out, a.dim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelName < out[j].ChannelName })
	return out
}

// BuildDates returns one calendar row per distinct staging date plus today,
// sorted by key.
func BuildDates(records []domain.StagingRecord, today time.Time) []domain.DateDimension {
	byKey := make(map[int]domain.DateDimension)
	add := func(t time.Time) {
		d := DateAttributes(t)
		byKey[d.DateKey] = d
	}
	for _, r := range records {
		add(r.CalendarDate)
	}
	add(today.UTC())

	out := make([]domain.DateDimension, 0, len(byKey))
	for _, d := range byKey {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateKey < out[j].DateKey })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

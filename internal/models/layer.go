package models

import (
	"fmt"
	"time"
)

// LayerKind identifies which calendar days advance a layer's rotation.
type LayerKind uint8

const (
	// KindWeekday rotates over Mon-Fri calendar days.
	KindWeekday LayerKind = iota
	// KindWeekend rotates over Sat/Sun calendar days.
	KindWeekend
	// KindPlain rotates over raw calendar days.
	KindPlain
)

// String implements fmt.Stringer.
func (k LayerKind) String() string {
	switch k {
	case KindWeekday:
		return "weekday"
	case KindWeekend:
		return "weekend"
	default:
		return "plain"
	}
}

// ParseLayerKind maps a schedule-source group name onto a LayerKind.
func ParseLayerKind(raw string) (LayerKind, error) {
	switch raw {
	case "weekday":
		return KindWeekday, nil
	case "weekend":
		return KindWeekend, nil
	case "plain", "":
		return KindPlain, nil
	}
	return KindPlain, fmt.Errorf("unknown layer kind %q", raw)
}

// Layer is a single on-call rotation stream.
//
// Start and End carry the layer's own fixed UTC offset in their Location;
// all per-layer date arithmetic happens in that offset. An End clock time
// numerically earlier than Start signals a window crossing midnight.
type Layer struct {
	Key                string    `json:"key"`
	Name               string    `json:"name"`
	Kind               LayerKind `json:"kind"`
	Start              time.Time `json:"start" hash:"string"`
	End                time.Time `json:"end" hash:"string"`
	Hours              int       `json:"hours"`
	RotationPeriodDays int       `json:"rotation_period_days"`
	Members            []string  `json:"members"`
}

// Location returns the layer's fixed UTC offset.
func (l *Layer) Location() *time.Location {
	return l.Start.Location()
}

// DateKey formats an instant as the layer-local calendar date (YYYY-MM-DD).
func (l *Layer) DateKey(t time.Time) string {
	return t.In(l.Location()).Format("2006-01-02")
}

// StartClock returns the shift's daily start as hour and minute.
func (l *Layer) StartClock() (hour, minute int) {
	return l.Start.Hour(), l.Start.Minute()
}

// EndClock returns the shift's daily end as hour and minute.
func (l *Layer) EndClock() (hour, minute int) {
	local := l.End.In(l.Location())
	return local.Hour(), local.Minute()
}

// Duration returns the length of one occurrence of this layer's shift.
func (l *Layer) Duration() time.Duration {
	if l.Hours > 0 {
		return time.Duration(l.Hours) * time.Hour
	}
	return l.End.Sub(l.Start)
}

// CrossesMidnight reports whether the daily window wraps past 00:00.
func (l *Layer) CrossesMidnight() bool {
	sh, sm := l.StartClock()
	eh, em := l.EndClock()
	return eh*60+em < sh*60+sm
}

// ContainsClock reports whether the given instant falls inside the layer's
// daily window. Midnight-crossing windows are active when the local clock is
// >= start OR < end.
func (l *Layer) ContainsClock(t time.Time) bool {
	local := t.In(l.Location())
	cur := local.Hour()*60 + local.Minute()
	sh, sm := l.StartClock()
	eh, em := l.EndClock()
	start := sh*60 + sm
	end := eh*60 + em
	if end < start {
		return cur >= start || cur < end
	}
	return cur >= start && cur < end
}

// ScheduleDocument is an immutable snapshot of every configured layer.
// Weekday and Weekend are kept sorted by layer key so that evaluation and
// hashing order is deterministic regardless of source encoding.
type ScheduleDocument struct {
	Weekday []Layer `json:"weekday"`
	Weekend []Layer `json:"weekend"`
}

// Layers returns weekend layers first, then weekday layers. Weekend windows
// span multiple calendar days and must win ties against weekday windows.
func (d *ScheduleDocument) Layers() []Layer {
	out := make([]Layer, 0, len(d.Weekend)+len(d.Weekday))
	out = append(out, d.Weekend...)
	out = append(out, d.Weekday...)
	return out
}

// Layer finds a layer by key across both groups.
func (d *ScheduleDocument) Layer(key string) (*Layer, bool) {
	for i := range d.Weekday {
		if d.Weekday[i].Key == key {
			return &d.Weekday[i], true
		}
	}
	for i := range d.Weekend {
		if d.Weekend[i].Key == key {
			return &d.Weekend[i], true
		}
	}
	return nil, false
}

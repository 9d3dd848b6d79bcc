// Package presentation thins raw slot lists for public display. Filtering is
// cosmetic only; booking validation always runs against the raw list.
package presentation

import (
	"bytes"
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/timezone"
)

// Mode selects how a day's raw slots are presented.
type Mode string

const (
	ModeAll        Mode = "all"
	ModeBusy       Mode = "busy"
	ModeDailyLimit Mode = "daily_limit"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeBusy, ModeDailyLimit:
		return true
	}
	return false
}

// Policy holds the meeting type fields that drive presentation.
type Policy struct {
	MeetingTypeID      string
	Mode               Mode
	BusyBufferPercent  int
	BusyPatternVersion int64
	DailyLimit         int
}

// Apply returns filtered copies of days. The input is not modified.
func Apply(policy Policy, days []availability.Day) []availability.Day {
	out := make([]availability.Day, 0, len(days))
	for _, day := range days {
		filtered := day
		filtered.Slots = applyDay(policy, day)
		out = append(out, filtered)
	}
	return out
}

func applyDay(policy Policy, day availability.Day) []availability.Slot {
	switch policy.Mode {
	case ModeDailyLimit:
		// A limit below one shows nothing for the day.
		if policy.DailyLimit <= 0 {
			return nil
		}
		if len(day.Slots) <= policy.DailyLimit {
			return cloneSlots(day.Slots)
		}
		return cloneSlots(day.Slots[:policy.DailyLimit])
	case ModeBusy:
		hidden := HiddenStarts(policy, day)
		if len(hidden) == 0 {
			return cloneSlots(day.Slots)
		}
		kept := make([]availability.Slot, 0, len(day.Slots)-len(hidden))
		for _, slot := range day.Slots {
			if _, ok := hidden[slot.Start.Unix()]; ok {
				continue
			}
			kept = append(kept, slot)
		}
		return kept
	default:
		return cloneSlots(day.Slots)
	}
}

// HiddenCount returns how many of raw slots busy mode hides at percent. At
// least one slot always stays visible.
func HiddenCount(raw, percent int) int {
	if raw <= 1 || percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	hidden := raw * percent / 100
	if hidden >= raw {
		hidden = raw - 1
	}
	return hidden
}

// HiddenStarts returns the Unix start times busy mode hides for day, keyed
// for lookup. Selection is a deterministic ranking over a keyed hash, so the
// same meeting type, date and pattern version always hide the same slots.
func HiddenStarts(policy Policy, day availability.Day) map[int64]struct{} {
	if policy.Mode != ModeBusy {
		return nil
	}
	count := HiddenCount(len(day.Slots), policy.BusyBufferPercent)
	if count == 0 {
		return nil
	}

	type ranked struct {
		start int64
		score [blake2b.Size256]byte
	}
	ranking := make([]ranked, 0, len(day.Slots))
	for _, slot := range day.Slots {
		start := slot.Start.Unix()
		ranking = append(ranking, ranked{start: start, score: slotScore(policy, day.Date, start)})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if c := bytes.Compare(ranking[i].score[:], ranking[j].score[:]); c != 0 {
			return c < 0
		}
		return ranking[i].start < ranking[j].start
	})

	hidden := make(map[int64]struct{}, count)
	for _, r := range ranking[:count] {
		hidden[r.start] = struct{}{}
	}
	return hidden
}

func slotScore(policy Policy, date timezone.Date, start int64) [blake2b.Size256]byte {
	var buf bytes.Buffer
	buf.WriteString(policy.MeetingTypeID)
	buf.WriteByte(0)
	buf.WriteString(date.String())
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.BigEndian, policy.BusyPatternVersion)
	_ = binary.Write(&buf, binary.BigEndian, start)
	return blake2b.Sum256(buf.Bytes())
}

// Ensure inserts slot into the day matching date, flagging it as current. A
// slot already present is flagged in place. Days without a matching date are
// returned unchanged.
func Ensure(days []availability.Day, date timezone.Date, slot availability.Slot) []availability.Day {
	slot.Current = true
	out := make([]availability.Day, len(days))
	copy(out, days)
	for i := range out {
		if out[i].Date != date {
			continue
		}
		slots := cloneSlots(out[i].Slots)
		found := false
		for j := range slots {
			if slots[j].Start.Equal(slot.Start) {
				slots[j].Current = true
				found = true
			}
		}
		if !found {
			slots = append(slots, slot)
			sort.Slice(slots, func(a, b int) bool { return slots[a].Start.Before(slots[b].Start) })
		}
		out[i].Slots = slots
	}
	return out
}

func cloneSlots(slots []availability.Slot) []availability.Slot {
	if len(slots) == 0 {
		return nil
	}
	out := make([]availability.Slot, len(slots))
	copy(out, slots)
	return out
}

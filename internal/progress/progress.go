// Package progress computes completion percentages and streaks from block
// histories. Everything here is a pure function of its inputs.
package progress

import (
	"time"

	"lifeblocks/api/internal/blocks"
)

// MaxStreakDays bounds the backward walk in Streak.
const MaxStreakDays = 3650

// Progress returns the completion percentage of a progress-bearing block on
// date. ok is false for block types that carry no daily history. A block
// with no items reports 0.
func Progress(b blocks.Block, date string) (float64, bool) {
	done, total, ok := tally(b.Content, date)
	if !ok {
		return 0, false
	}
	if total == 0 {
		return 0, true
	}
	return 100 * float64(done) / float64(total), true
}

// TodoCompletion returns the done ratio of a todo list as a percentage.
func TodoCompletion(b blocks.Block) (float64, bool) {
	list, ok := b.Content.(*blocks.TodoList)
	if !ok {
		return 0, false
	}
	if len(list.Items) == 0 {
		return 0, true
	}
	done := 0
	for _, it := range list.Items {
		if it.Done {
			done++
		}
	}
	return 100 * float64(done) / float64(len(list.Items)), true
}

// Streak counts consecutive fully completed days ending yesterday. Today
// adds one when it is complete and the run is not empty; an incomplete today
// leaves the run alone. A missing day ends the run. The result never exceeds
// MaxStreakDays.
func Streak(b blocks.Block, today time.Time) int {
	if _, _, ok := tally(b.Content, blocks.DateKey(today)); !ok {
		return 0
	}
	run := 0
	day := today.AddDate(0, 0, -1)
	for run < MaxStreakDays && complete(b.Content, blocks.DateKey(day)) {
		run++
		day = day.AddDate(0, 0, -1)
	}
	if run > 0 && run < MaxStreakDays && complete(b.Content, blocks.DateKey(today)) {
		run++
	}
	return run
}

// Overall averages the progress-bearing blocks and, separately, the todo
// lists, then takes the mean of the two averages when both exist.
func Overall(bs []blocks.Block, date string) (float64, bool) {
	var trackedSum, todoSum float64
	var tracked, todos int
	for _, b := range bs {
		if pct, ok := Progress(b, date); ok {
			trackedSum += pct
			tracked++
			continue
		}
		if pct, ok := TodoCompletion(b); ok {
			todoSum += pct
			todos++
		}
	}
	switch {
	case tracked > 0 && todos > 0:
		return (trackedSum/float64(tracked) + todoSum/float64(todos)) / 2, true
	case tracked > 0:
		return trackedSum / float64(tracked), true
	case todos > 0:
		return todoSum / float64(todos), true
	default:
		return 0, false
	}
}

func complete(c blocks.Content, date string) bool {
	done, total, ok := tally(c, date)
	return ok && total > 0 && done == total
}

// tally counts completed and possible marks for date.
func tally(c blocks.Content, date string) (done, total int, ok bool) {
	switch v := c.(type) {
	case *blocks.HabitTracker:
		day := v.History.Day(date)
		for _, it := range v.Habits {
			total++
			if day[it.ID].Checked() {
				done++
			}
		}
		return done, total, true
	case *blocks.GratitudeJournal:
		day := v.History.Day(date)
		for _, it := range v.Items {
			total++
			if day[it.ID].Checked() {
				done++
			}
		}
		return done, total, true
	case *blocks.Affirmations:
		day := v.History.Day(date)
		for _, it := range v.Affirmations {
			reps := it.Repetitions()
			total += reps
			done += day[it.ID].Count(reps)
		}
		return done, total, true
	}
	return 0, 0, false
}

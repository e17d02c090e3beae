package progress

import (
	"time"

	"lifeblocks/api/internal/blocks"
)

const (
	DefaultSeriesDays = 30
	MaxSeriesDays     = 366
)

type BlockStat struct {
	ID       string      `json:"id"`
	Type     blocks.Type `json:"type"`
	Title    string      `json:"title,omitempty"`
	Progress float64     `json:"progress"`
	Streak   int         `json:"streak"`
}

type Snapshot struct {
	Date       string      `json:"date"`
	Overall    float64     `json:"overall"`
	HasOverall bool        `json:"hasOverall"`
	Blocks     []BlockStat `json:"blocks"`
}

type DayProgress struct {
	Date     string  `json:"date"`
	Progress float64 `json:"progress"`
}

// Summarize reports every block that has a percentage on today's date.
func Summarize(board blocks.Board, today time.Time) Snapshot {
	date := blocks.DateKey(today)
	out := Snapshot{Date: date, Blocks: []BlockStat{}}
	for _, b := range board.Blocks {
		stat := BlockStat{ID: b.ID, Type: b.Type, Title: blocks.Title(b.Content)}
		if pct, ok := Progress(b, date); ok {
			stat.Progress = pct
			stat.Streak = Streak(b, today)
		} else if pct, ok := TodoCompletion(b); ok {
			stat.Progress = pct
		} else {
			continue
		}
		out.Blocks = append(out.Blocks, stat)
	}
	out.Overall, out.HasOverall = Overall(board.Blocks, date)
	return out
}

// Series returns daily progress for the days ending at end, oldest first.
// days is clamped to [1, MaxSeriesDays]. Blocks without history return nil.
func Series(b blocks.Block, end time.Time, days int) []DayProgress {
	if _, ok := Progress(b, blocks.DateKey(end)); !ok {
		return nil
	}
	if days < 1 {
		days = 1
	}
	if days > MaxSeriesDays {
		days = MaxSeriesDays
	}
	out := make([]DayProgress, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := blocks.DateKey(end.AddDate(0, 0, -i))
		pct, _ := Progress(b, date)
		out = append(out, DayProgress{Date: date, Progress: pct})
	}
	return out
}

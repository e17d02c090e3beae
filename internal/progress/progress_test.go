package progress

import (
	"math"
	"testing"
	"time"

	"lifeblocks/api/internal/blocks"
)

func day(value string) time.Time {
	t, err := blocks.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return t
}

func decode(t *testing.T, doc string) blocks.Block {
	t.Helper()
	b, err := blocks.Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode %s: %v", doc, err)
	}
	return b
}

func habit(t *testing.T, history string) blocks.Block {
	return decode(t, `{"id":"h1","type":"daily-habit-tracker","habits":[{"id":"a"},{"id":"b"}],"history":`+history+`}`)
}

func TestProgressZeroItemsAndNonBearing(t *testing.T) {
	empty := decode(t, `{"id":"h0","type":"daily-habit-tracker","habits":[]}`)
	if pct, ok := Progress(empty, "2024-01-01"); !ok || pct != 0 || math.IsNaN(pct) {
		t.Fatalf("expected 0,true for empty habits, got %v,%v", pct, ok)
	}
	text := decode(t, `{"id":"t","type":"text","text":"hello"}`)
	if _, ok := Progress(text, "2024-01-01"); ok {
		t.Fatal("expected text block to be non progress-bearing")
	}
	if Streak(text, day("2024-01-01")) != 0 {
		t.Fatal("expected zero streak for text block")
	}
}

func TestWorkedExample(t *testing.T) {
	b := habit(t, `{"2024-01-01":{"a":true,"b":true},"2024-01-02":{"a":true,"b":false}}`)
	if pct, ok := Progress(b, "2024-01-02"); !ok || pct != 50 {
		t.Fatalf("expected 50, got %v", pct)
	}
	// Yesterday was complete, today is not yet: the run of one survives.
	if got := Streak(b, day("2024-01-02")); got != 1 {
		t.Fatalf("expected streak 1, got %d", got)
	}
}

func TestStreakRules(t *testing.T) {
	full := `{"a":true,"b":true}`
	half := `{"a":true,"b":false}`
	tests := []struct {
		name    string
		history string
		today   string
		want    int
	}{
		{
			name:    "yesterday incomplete",
			history: `{"2024-01-01":` + full + `,"2024-01-02":` + half + `,"2024-01-03":` + full + `}`,
			today:   "2024-01-03",
			want:    0,
		},
		{
			name:    "today missing",
			history: `{"2024-01-01":` + full + `,"2024-01-02":` + full + `,"2024-01-03":` + full + `,"2024-01-04":` + full + `}`,
			today:   "2024-01-05",
			want:    4,
		},
		{
			name:    "today complete extends",
			history: `{"2024-01-03":` + full + `,"2024-01-04":` + full + `,"2024-01-05":` + full + `}`,
			today:   "2024-01-05",
			want:    3,
		},
		{
			name:    "gap breaks run",
			history: `{"2024-01-01":` + full + `,"2024-01-03":` + full + `,"2024-01-04":` + full + `}`,
			today:   "2024-01-05",
			want:    2,
		},
		{
			name:    "malformed values are unchecked",
			history: `{"2024-01-04":{"a":1,"b":"true"}}`,
			today:   "2024-01-05",
			want:    0,
		},
		{
			name:    "empty history",
			history: `{}`,
			today:   "2024-01-05",
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Streak(habit(t, tt.history), day(tt.today)); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestStreakGrowsWhenEarlierDaysAppended(t *testing.T) {
	b := habit(t, `{"2024-01-03":{"a":true,"b":true},"2024-01-04":{"a":true,"b":true}}`)
	today := day("2024-01-05")
	before := Streak(b, today)
	h := b.Content.(*blocks.HabitTracker)
	h.History["2024-01-02"] = blocks.DayEntry{"a": blocks.NewMark(true), "b": blocks.NewMark(true)}
	after := Streak(b, today)
	if before != 2 || after != 3 {
		t.Fatalf("expected 2 then 3, got %d then %d", before, after)
	}
}

func TestStreakIsCapped(t *testing.T) {
	h := &blocks.HabitTracker{Habits: []blocks.Item{{ID: "a"}}, History: blocks.History{}}
	today := day("2024-01-01")
	for i := 1; i <= MaxStreakDays+20; i++ {
		h.History[blocks.DateKey(today.AddDate(0, 0, -i))] = blocks.DayEntry{"a": blocks.NewMark(true)}
	}
	b := blocks.Block{ID: "h", Type: blocks.TypeHabitTracker, Content: h}
	if got := Streak(b, today); got != MaxStreakDays {
		t.Fatalf("expected cap %d, got %d", MaxStreakDays, got)
	}

	h.History[blocks.DateKey(today)] = blocks.DayEntry{"a": blocks.NewMark(true)}
	if got := Streak(b, today); got != MaxStreakDays {
		t.Fatalf("expected cap %d with today complete, got %d", MaxStreakDays, got)
	}
}

func TestAffirmationProgress(t *testing.T) {
	b := decode(t, `{"id":"af","type":"affirmations","affirmations":[
		{"id":"x","count":3},
		{"id":"y","count":0},
		{"id":"z","count":2}
	],"history":{"2024-02-01":{"x":[true,true,false,true],"y":true,"z":"junk"}}}`)
	pct, ok := Progress(b, "2024-02-01")
	if !ok {
		t.Fatal("expected affirmations to be progress-bearing")
	}
	// 2 of the first 3 slots for x, 1 of 1 for y, 0 of 2 for z.
	if want := 100 * 3.0 / 6.0; pct != want {
		t.Fatalf("expected %v, got %v", want, pct)
	}
	if pct, _ := Progress(b, "2024-02-02"); pct != 0 {
		t.Fatalf("expected 0 for missing day, got %v", pct)
	}
}

func TestOverall(t *testing.T) {
	h := habit(t, `{"2024-01-02":{"a":true,"b":false}}`)
	g := decode(t, `{"id":"g","type":"gratitude-journal","items":[{"id":"i"}],"history":{"2024-01-02":{"i":true}}}`)
	todo := decode(t, `{"id":"td","type":"todo-list","items":[{"id":"1","done":true},{"id":"2"},{"id":"3"},{"id":"4"}]}`)
	text := decode(t, `{"id":"t","type":"text"}`)

	if pct, ok := Overall([]blocks.Block{h, g, todo, text}, "2024-01-02"); !ok || pct != 50 {
		t.Fatalf("expected mean of 75 and 25, got %v,%v", pct, ok)
	}
	if pct, ok := Overall([]blocks.Block{todo}, "2024-01-02"); !ok || pct != 25 {
		t.Fatalf("expected todo only 25, got %v,%v", pct, ok)
	}
	if pct, ok := Overall([]blocks.Block{h, g}, "2024-01-02"); !ok || pct != 75 {
		t.Fatalf("expected tracked only 75, got %v,%v", pct, ok)
	}
	if _, ok := Overall([]blocks.Block{text}, "2024-01-02"); ok {
		t.Fatal("expected no overall without progress-bearing blocks")
	}
}

func TestSeries(t *testing.T) {
	b := habit(t, `{"2024-01-01":{"a":true,"b":true},"2024-01-02":{"a":true}}`)
	got := Series(b, day("2024-01-02"), 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 days, got %d", len(got))
	}
	want := []DayProgress{{"2023-12-31", 0}, {"2024-01-01", 100}, {"2024-01-02", 50}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("day %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if n := len(Series(b, day("2024-01-02"), 0)); n != 1 {
		t.Fatalf("expected clamp to 1, got %d", n)
	}
	if n := len(Series(b, day("2024-01-02"), 5000)); n != MaxSeriesDays {
		t.Fatalf("expected clamp to %d, got %d", MaxSeriesDays, n)
	}
	if Series(decode(t, `{"id":"t","type":"text"}`), day("2024-01-02"), 3) != nil {
		t.Fatal("expected nil series for text block")
	}
}

func TestSummarize(t *testing.T) {
	board := blocks.Board{ID: "b", Blocks: []blocks.Block{
		habit(t, `{"2024-01-01":{"a":true,"b":true},"2024-01-02":{"a":true,"b":true}}`),
		decode(t, `{"id":"t","type":"text"}`),
		decode(t, `{"id":"td","type":"todo-list","items":[]}`),
	}}
	snap := Summarize(board, day("2024-01-02"))
	if snap.Date != "2024-01-02" || len(snap.Blocks) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Blocks[0].Streak != 2 || snap.Blocks[0].Progress != 100 {
		t.Fatalf("unexpected habit stat: %+v", snap.Blocks[0])
	}
	if !snap.HasOverall || snap.Overall != 50 {
		t.Fatalf("expected overall 50 (100 and empty todo 0), got %v", snap.Overall)
	}
}

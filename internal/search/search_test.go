package search

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/blocks"
)

type fakeMeili struct {
	healthy       bool
	searchFn      func(Query) ([]Result, int, error)
	indexBlocksFn func([]BlockRecord) error
	deleted       chan string
}

func (f *fakeMeili) Search(_ context.Context, q Query) ([]Result, int, error) { return f.searchFn(q) }
func (f *fakeMeili) Healthy() bool                                            { return f.healthy }
func (f *fakeMeili) IndexBlocks(r []BlockRecord) error                        { return f.indexBlocksFn(r) }
func (f *fakeMeili) Close()                                                   {}

func (f *fakeMeili) DeleteBlock(id string) error {
	f.deleted <- id
	return nil
}

type fakePG struct {
	searchFn func(Query) ([]Result, int, error)
	records  []BlockRecord
}

func (f *fakePG) Search(_ context.Context, q Query) ([]Result, int, error) { return f.searchFn(q) }
func (f *fakePG) Healthy() bool                                            { return true }
func (f *fakePG) LoadAllRecords(context.Context) ([]BlockRecord, error)    { return f.records, nil }

func quiet() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestServiceFallsBackToPG(t *testing.T) {
	pg := &fakePG{searchFn: func(q Query) ([]Result, int, error) {
		return []Result{{BoardID: "b1", BlockID: "pg"}}, 1, nil
	}}
	m := &fakeMeili{healthy: true, searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("timeout")
	}}
	s := &Service{meili: m, pgfts: pg, logger: quiet()}

	resp := s.Search(context.Background(), Query{Text: "stretch", BoardIDs: []string{"b1"}})
	if resp.Total != 1 || resp.Results[0].BlockID != "pg" {
		t.Fatalf("expected pg fallback, got %+v", resp)
	}

	m.searchFn = func(Query) ([]Result, int, error) { return []Result{{BlockID: "meili"}}, 1, nil }
	resp = s.Search(context.Background(), Query{Text: "stretch", BoardIDs: []string{"b1"}})
	if resp.Results[0].BlockID != "meili" {
		t.Fatalf("expected meili result, got %+v", resp)
	}

	m.healthy = false
	resp = s.Search(context.Background(), Query{Text: "stretch", BoardIDs: []string{"b1"}})
	if resp.Results[0].BlockID != "pg" {
		t.Fatalf("expected pg when meili unhealthy, got %+v", resp)
	}
}

func TestServiceSearchErrorReturnsEmpty(t *testing.T) {
	pg := &fakePG{searchFn: func(Query) ([]Result, int, error) { return nil, 0, errors.New("db down") }}
	s := &Service{pgfts: pg, logger: quiet()}
	resp := s.Search(context.Background(), Query{Text: "x", BoardIDs: []string{"b1"}})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Query != "x" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestServiceIndexesInBackground(t *testing.T) {
	got := make(chan []BlockRecord, 1)
	m := &fakeMeili{healthy: true, indexBlocksFn: func(r []BlockRecord) error {
		got <- r
		return nil
	}, deleted: make(chan string, 1)}
	s := &Service{meili: m, logger: quiet()}

	s.IndexBlock("b1", blocks.Block{ID: "t1", Type: blocks.TypeText, Content: &blocks.Text{Text: "Drink water"}})
	select {
	case records := <-got:
		if len(records) != 1 || records[0].Text != "Drink water" || records[0].ID != RecordID("b1", "t1") {
			t.Fatalf("unexpected records %+v", records)
		}
	case <-time.After(time.Second):
		t.Fatal("index call not made")
	}

	s.DeleteBlock("b1", "t1")
	select {
	case id := <-m.deleted:
		if id != RecordID("b1", "t1") {
			t.Fatalf("unexpected delete id %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("delete call not made")
	}
}

func TestRecordIDIsStableAndDistinct(t *testing.T) {
	if RecordID("b1", "x") != RecordID("b1", "x") {
		t.Fatal("expected stable id")
	}
	if RecordID("b1", "x") == RecordID("b2", "x") {
		t.Fatal("expected board to change id")
	}
	if strings.ContainsAny(RecordID("b1", "a/b c"), "/ ") {
		t.Fatal("expected index-safe id")
	}
}

func TestBoardFilter(t *testing.T) {
	got := boardFilter([]string{"b1", `b"2`})
	want := `boardId IN ["b1", "b\"2"]`
	if got != want {
		t.Fatalf("boardFilter = %s, want %s", got, want)
	}
}

func TestPgFTSSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM blocks b WHERE b.fts @@ plainto_tsquery('english', $1) AND b.board_id IN ($2, $3)")).
		WithArgs("water", "b1", "b2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM blocks b")).
		WithArgs("water", "b1", "b2").
		WillReturnRows(sqlmock.NewRows([]string{"board_id", "id", "type", "title", "snippet"}).
			AddRow("b1", "t1", "text", "", "Drink <b>water</b>"))

	results, total, err := NewPgFTS(db).Search(context.Background(), Query{Text: "water", BoardIDs: []string{"b1", "b2"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(results) != 1 || results[0].Type != blocks.TypeText || results[0].BlockID != "t1" {
		t.Fatalf("unexpected results %+v %d", results, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPgFTSSearchWithoutBoardsSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	results, total, err := NewPgFTS(db).Search(context.Background(), Query{Text: "water"})
	if err != nil || total != 0 || results != nil {
		t.Fatalf("expected empty result, got %v %d %v", results, total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPgFTSLoadAllRecordsSkipsCorrupt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT board_id, doc FROM blocks")).
		WillReturnRows(sqlmock.NewRows([]string{"board_id", "doc"}).
			AddRow("b1", []byte(`{"id":"t1","type":"text","text":"hello"}`)).
			AddRow("b1", []byte(`{"id":"x","type":"mystery"}`)))

	records, err := NewPgFTS(db).LoadAllRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadAllRecords: %v", err)
	}
	if len(records) != 1 || records[0].BlockID != "t1" || records[0].Text != "hello" {
		t.Fatalf("unexpected records %+v", records)
	}
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func articleDoc(t *testing.T, a *Article) bson.D {
	t.Helper()
	Normalize(a)
	raw, err := bson.Marshal(a)
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bson.Unmarshal failed: %v", err)
	}
	return doc
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "techstock.articles"

	mt.Run("get found", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		doc := articleDoc(mt.T, &Article{ID: "1", Title: "Mongo Basics", Tags: []string{"DB"}})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, doc))

		got, err := store.Get(context.Background(), "1")
		if err != nil {
			mt.Fatalf("Get failed: %v", err)
		}
		if got.Title != "Mongo Basics" || got.LowerCaseTitle != "mongo basics" {
			mt.Errorf("Get returned %+v", got)
		}
	})

	mt.Run("get not found", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("Get error = %v, want ErrNotFound", err)
		}
	})

	mt.Run("update returns new document", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		doc := articleDoc(mt.T, &Article{ID: "1", Title: "Renamed"})
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: doc}})

		title := "Renamed"
		got, err := store.Update(context.Background(), "1", Patch{Title: &title}, time.Now())
		if err != nil {
			mt.Fatalf("Update failed: %v", err)
		}
		if got.Title != "Renamed" {
			mt.Errorf("Update returned %+v", got)
		}
		if got.Tags == nil {
			mt.Error("Tags should decode as an empty slice")
		}
	})

	mt.Run("update not found", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		title := "x"
		if _, err := store.Update(context.Background(), "missing", Patch{Title: &title}, time.Now()); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("Update error = %v, want ErrNotFound", err)
		}
	})

	mt.Run("delete returns removed document", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		doc := articleDoc(mt.T, &Article{ID: "9", Title: "Gone"})
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: doc}})

		got, err := store.Delete(context.Background(), "9")
		if err != nil {
			mt.Fatalf("Delete failed: %v", err)
		}
		if got.ID != "9" {
			mt.Errorf("Delete returned %+v", got)
		}
	})

	mt.Run("scan", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			articleDoc(mt.T, &Article{ID: "1", Title: "A"}))
		next := mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
			articleDoc(mt.T, &Article{ID: "2", Title: "B"}))
		mt.AddMockResponses(first, next)

		got, err := store.Scan(context.Background(), Filter{})
		if err != nil {
			mt.Fatalf("Scan failed: %v", err)
		}
		if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
			mt.Errorf("Scan returned %+v", got)
		}
	})

	mt.Run("scan ids", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "id", Value: "a"}},
			bson.D{{Key: "id", Value: "b"}},
		))

		ids, err := store.ScanIDs(context.Background())
		if err != nil {
			mt.Fatalf("ScanIDs failed: %v", err)
		}
		if len(ids) != 2 {
			mt.Errorf("ScanIDs returned %v", ids)
		}
	})

	mt.Run("ensure schema", func(mt *mtest.T) {
		store := newMongoStore(nil, mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := store.EnsureSchema(context.Background()); err != nil {
			mt.Fatalf("EnsureSchema failed: %v", err)
		}
	})
}

func TestMongoFilter(t *testing.T) {
	if q := mongoFilter(Filter{}); len(q) != 0 {
		t.Errorf("zero filter = %v, want empty query", q)
	}

	q := mongoFilter(Filter{TitlePrefix: "c++ (intro)", Tag: "nosql"})
	title, ok := q["lower_case_title"].(bson.M)
	if !ok {
		t.Fatalf("lower_case_title predicate = %#v", q["lower_case_title"])
	}
	if got, want := title["$regex"], `^c\+\+ \(intro\)`; got != want {
		t.Errorf("regex = %v, want %v", got, want)
	}
	if q["lower_case_tags"] != "nosql" {
		t.Errorf("tag predicate = %v, want nosql", q["lower_case_tags"])
	}
}

func TestSetDocument(t *testing.T) {
	tags := []string{"Go", "MongoDB"}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	set := setDocument(Patch{Tags: &tags}, now)

	got := set.Map()
	if got["updatedAt"] != now {
		t.Errorf("updatedAt = %v, want %v", got["updatedAt"], now)
	}
	lower, ok := got["lower_case_tags"].([]string)
	if !ok || len(lower) != 2 || lower[0] != "go" || lower[1] != "mongodb" {
		t.Errorf("lower_case_tags = %#v", got["lower_case_tags"])
	}
	if _, ok := got["title"]; ok {
		t.Error("title should not be set by a tags-only patch")
	}
}

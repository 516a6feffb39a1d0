package search

import (
	"testing"
)

func TestRecordID(t *testing.T) {
	if got := RecordID("happy-collab-my room!"); got != "happy-collab-my_room_" {
		t.Fatalf("RecordID() = %q", got)
	}
	rec := NewRecord("sad-editor-content", "grey", []string{"sad"})
	if rec.Mode != "sad" || rec.ID != "sad-editor-content" {
		t.Fatalf("NewRecord() = %+v", rec)
	}
}

func TestServiceFallsBackToLocal(t *testing.T) {
	s := NewService(nil, nil)
	s.IndexDocument(NewRecord("happy-editor-content", "A happy walk in the park", []string{"happy"}))
	s.IndexDocument(NewRecord("sad-editor-content", "A sad walk home", []string{"sad"}))

	resp := s.Search(Query{Text: "walk"})
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("Search(walk) = %+v", resp)
	}
	if resp.Results[0].Key != "happy-editor-content" {
		t.Fatalf("results not ordered by key: %+v", resp.Results)
	}

	resp = s.Search(Query{Text: "WALK", Mode: "sad"})
	if resp.Total != 1 || resp.Results[0].Snippet != "A sad walk home" {
		t.Fatalf("Search(WALK, sad) = %+v", resp)
	}

	resp = s.Search(Query{Text: "walk park"})
	if resp.Total != 1 || resp.Results[0].Mode != "happy" {
		t.Fatalf("Search(walk park) = %+v", resp)
	}

	s.DeleteDocument("happy-editor-content")
	if resp := s.Search(Query{Text: "park"}); resp.Total != 0 || resp.Results == nil {
		t.Fatalf("Search after delete = %+v", resp)
	}
}

func TestLocalPaging(t *testing.T) {
	l := NewLocal()
	for _, k := range []string{"happy-a", "happy-b", "happy-c"} {
		l.Index(NewRecord(k, "sunny", nil))
	}
	results, total, err := l.Search(Query{Text: "sunny", Limit: 2, Offset: 1})
	if err != nil || total != 3 || len(results) != 2 || results[0].Key != "happy-b" {
		t.Fatalf("Search() = %+v, %d, %v", results, total, err)
	}
	results, _, _ = l.Search(Query{Text: "sunny", Offset: 10})
	if len(results) != 0 {
		t.Fatalf("Search(offset past end) = %+v", results)
	}
}

func TestSnippet(t *testing.T) {
	long := "It had been a long and very ordinary week until the happy news arrived late on Friday evening after work"
	got := snippet(long, "happy")
	if len([]rune(got)) > 65 || got == "" {
		t.Fatalf("snippet() = %q", got)
	}
}

package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"moodpad/internal/document"
	"moodpad/internal/search"
	"moodpad/internal/storage"
)

func TestReindexFromBoltSlot(t *testing.T) {
	ctx := context.Background()
	slot, err := storage.OpenBolt(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	defer slot.Close()

	docs := map[string]string{
		"happy-editor-content": "a happy morning",
		"sad-collab-team":      "rain again",
		"not-a-document":       "ignored",
	}
	for key, text := range docs {
		if err := storage.Save(ctx, slot, key, document.New(document.Paragraph(text))); err != nil {
			t.Fatalf("Save(%s) error = %v", key, err)
		}
	}

	svc := New(Deps{Slot: slot})
	n, err := svc.Reindex(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Reindex() = %d, %v", n, err)
	}
	res := svc.Search(search.Query{Text: "morning"})
	if res.Total != 1 || res.Results[0].Key != "happy-editor-content" || res.Results[0].Emotions[0] != "happy" {
		t.Fatalf("Search() = %+v", res)
	}
	if res := svc.Search(search.Query{Text: "ignored"}); res.Total != 0 {
		t.Fatalf("unknown key indexed: %+v", res)
	}

	if n, err := New(Deps{}).Reindex(ctx); err != nil || n != 0 {
		t.Fatalf("Reindex() on memory slot = %d, %v", n, err)
	}
}

func TestEnrichRecord(t *testing.T) {
	svc := New(Deps{})
	rec := search.NewRecord("sad-editor-content", "sad but happy", nil)
	svc.EnrichRecord(&rec)
	if len(rec.Emotions) != 2 || rec.Emotions[0] != "happy" || rec.Emotions[1] != "sad" {
		t.Fatalf("Emotions = %v", rec.Emotions)
	}
}

func TestRevokeWithoutStore(t *testing.T) {
	svc := New(Deps{})
	tok, err := svc.IssueRoomToken("happy-team", "ada", "editor")
	if err != nil {
		t.Fatalf("IssueRoomToken() error = %v", err)
	}
	err = svc.RevokeRoomToken(context.Background(), "happy-team", tok.Token)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotImplemented {
		t.Fatalf("RevokeRoomToken() error = %v", err)
	}
}

func TestLoadDocumentMissing(t *testing.T) {
	svc := New(Deps{})
	if _, _, err := svc.LoadDocument(context.Background(), "happy-editor-content", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if _, _, err := svc.LoadDocument(context.Background(), "happy-editor-content", "abc1234"); err == nil {
		t.Fatalf("LoadDocument() with version and no history should fail")
	}
}

func TestSaveEmptyDocumentStaysEditable(t *testing.T) {
	svc := New(Deps{})
	ctx := context.Background()
	res, err := svc.SaveDocument(ctx, "sad-editor-content", []byte(`[]`), "")
	if err != nil {
		t.Fatalf("SaveDocument() error = %v", err)
	}
	if n := len(res.Document.Leaves()); n != 1 {
		t.Fatalf("saved document leaves = %d, want 1", n)
	}
	doc, _, err := svc.LoadDocument(ctx, "sad-editor-content", "")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if err := doc.Apply(document.InsertText{At: doc.Selection().Focus, Text: "still here"}); err != nil {
		t.Fatalf("InsertText after reload error = %v", err)
	}
}

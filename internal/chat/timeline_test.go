package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/onetalk/support-chat/internal/domain"
)

func msg(sender, content string) domain.Message {
	return domain.Message{SessionID: "s1", SenderID: sender, Content: content, CreatedAt: time.Unix(100, 0)}
}

func TestNewTimelineKeepsHistoryOrder(t *testing.T) {
	tl := NewTimeline([]domain.Message{
		{ID: "m1", Content: "first"},
		{ID: "m2", Content: "second"},
	})

	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "m1" || entries[1].ID != "m2" {
		t.Errorf("history out of order: %+v", entries)
	}
	for _, e := range entries {
		if e.State != Confirmed {
			t.Errorf("history entry %s should be confirmed, got %s", e.ID, e.State)
		}
	}
}

func TestProvisionalThenConfirm(t *testing.T) {
	tl := NewTimeline(nil)

	tempID := tl.AddProvisional(msg("me", "hello"))
	tl.ApplyRemote(msg("them", "hi"), "me", "Owl")

	if !tl.Confirm(tempID, domain.Message{ID: "real-1", CreatedAt: time.Unix(101, 0)}) {
		t.Fatal("Confirm() returned false for a known temp id")
	}

	entries := tl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "real-1" || entries[0].State != Confirmed {
		t.Errorf("first entry not confirmed in place: %+v", entries[0])
	}
	if entries[1].Content != "hi" {
		t.Errorf("remote message moved: %+v", entries[1])
	}
}

func TestRollbackRemovesOnlyThatEntry(t *testing.T) {
	tl := NewTimeline(nil)

	first := tl.AddProvisional(msg("me", "one"))
	second := tl.AddProvisional(msg("me", "two"))

	removed, ok := tl.Rollback(first)
	if !ok {
		t.Fatal("Rollback() returned false for a known temp id")
	}
	if removed.Content != "one" {
		t.Errorf("rolled back wrong message: %q", removed.Content)
	}
	if tl.Len() != 1 || tl.Entries()[0].TempID != second {
		t.Errorf("unexpected remaining entries: %+v", tl.Entries())
	}

	if _, ok := tl.Rollback(first); ok {
		t.Error("second Rollback() of the same id should fail")
	}
}

func TestConfirmedEntryCannotBeRolledBack(t *testing.T) {
	tl := NewTimeline(nil)
	tempID := tl.AddProvisional(msg("me", "hello"))
	tl.Confirm(tempID, domain.Message{ID: "real-1"})

	if _, ok := tl.Rollback(tempID); ok {
		t.Error("Rollback() should not remove a confirmed entry")
	}
	if tl.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", tl.Len())
	}
}

func TestApplyRemoteIgnoresSelfEcho(t *testing.T) {
	tl := NewTimeline(nil)
	tl.AddProvisional(msg("me", "hello"))

	if tl.ApplyRemote(msg("me", "hello"), "me", "Owl") {
		t.Error("self echo should be ignored")
	}
	if tl.Len() != 1 {
		t.Fatalf("self echo added a second entry: %+v", tl.Entries())
	}
}

func TestApplyRemoteAttachesCounterpartNickname(t *testing.T) {
	tl := NewTimeline(nil)
	tl.ApplyRemote(msg("them", "hi"), "me", "Owl")

	if got := tl.Entries()[0].SenderNickname; got != "Owl" {
		t.Errorf("expected nickname Owl, got %q", got)
	}
}

func TestApplyRemoteNeverDeduplicatesByContent(t *testing.T) {
	tl := NewTimeline(nil)
	for i := 0; i < 3; i++ {
		tl.ApplyRemote(msg("them", "same"), "me", "Owl")
	}
	if tl.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", tl.Len())
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	tl := NewTimeline(nil)
	tl.ApplyRemote(msg("them", "hi"), "me", "Owl")

	entries := tl.Entries()
	entries[0].Content = "mutated"

	if tl.Entries()[0].Content != "hi" {
		t.Error("Entries() leaked internal storage")
	}
}

func TestArrivalOrderPreserved(t *testing.T) {
	tl := NewTimeline(nil)
	for i := 1; i <= 5; i++ {
		tl.ApplyRemote(msg("them", fmt.Sprintf("msg-%d", i)), "me", "Owl")
	}
	for i, e := range tl.Entries() {
		want := fmt.Sprintf("msg-%d", i+1)
		if e.Content != want {
			t.Errorf("index %d: expected %q, got %q", i, want, e.Content)
		}
	}
}

package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benzvi/groupsift/internal/database"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func groupMessage(id string, ts time.Time, text string) *database.Message {
	return &database.Message{
		MessageID: id,
		Timestamp: ts,
		Text:      sql.NullString{String: text, Valid: text != ""},
		ChatJID:   "1203630@g.us",
		SenderJID: "972501234567@s.whatsapp.net",
		GroupJID:  sql.NullString{String: "1203630@g.us", Valid: true},
	}
}

func TestSaveIncomingMessageCreatesRows(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	msg := groupMessage("MSG1", ts, "looking for a golang developer")

	if err := store.SaveIncomingMessage(ctx, msg, "Dana", "Dev Jobs IL"); err != nil {
		t.Fatalf("SaveIncomingMessage: %v", err)
	}

	exists, err := store.MessageExists(ctx, "MSG1")
	if err != nil {
		t.Fatalf("MessageExists: %v", err)
	}
	if !exists {
		t.Error("MessageExists = false after save")
	}

	got, err := store.GetMessage(ctx, "MSG1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got == nil {
		t.Fatal("GetMessage returned nil")
	}
	if got.Text.String != "looking for a golang developer" {
		t.Errorf("text = %q", got.Text.String)
	}
	if got.IsRelevant.Valid || got.Reasoning.Valid {
		t.Error("classification fields should be NULL on a fresh message")
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}

	group, err := store.GetGroup(ctx, "1203630@g.us")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group == nil {
		t.Fatal("group row was not created")
	}
	if group.GroupName.String != "Dev Jobs IL" {
		t.Errorf("group name = %q", group.GroupName.String)
	}
}

func TestSaveIncomingMessageDuplicateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	first := groupMessage("MSG1", ts, "original text")
	if err := store.SaveIncomingMessage(ctx, first, "Dana", ""); err != nil {
		t.Fatalf("first save: %v", err)
	}

	dup := groupMessage("MSG1", ts.Add(time.Minute), "replayed text")
	if err := store.SaveIncomingMessage(ctx, dup, "Dana", ""); err != nil {
		t.Fatalf("duplicate save should not error: %v", err)
	}

	got, err := store.GetMessage(ctx, "MSG1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Text.String != "original text" {
		t.Errorf("text = %q, first write should win", got.Text.String)
	}
}

func TestSaveIncomingMessageConcurrentNewGroup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// Two deliveries race to create the same previously unseen sender and
	// group. Both must commit their message; the group row exists once.
	ids := []string{"MSG-A", "MSG-B"}
	errs := make(chan error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(id string, offset time.Duration) {
			defer wg.Done()
			msg := groupMessage(id, ts.Add(offset), "hiring a backend engineer")
			errs <- store.SaveIncomingMessage(ctx, msg, "Dana", "Dev Jobs IL")
		}(id, time.Duration(i)*time.Second)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent SaveIncomingMessage: %v", err)
		}
	}

	for _, id := range ids {
		exists, err := store.MessageExists(ctx, id)
		if err != nil {
			t.Fatalf("MessageExists(%s): %v", id, err)
		}
		if !exists {
			t.Errorf("message %s was not stored", id)
		}
	}

	group, err := store.GetGroup(ctx, "1203630@g.us")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group == nil {
		t.Fatal("group row was not created")
	}
	if group.GroupName.String != "Dev Jobs IL" {
		t.Errorf("group name = %q", group.GroupName.String)
	}

	stats, err := store.GetMessageStats(ctx)
	if err != nil {
		t.Fatalf("GetMessageStats: %v", err)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("total messages = %d, want 2", stats.TotalMessages)
	}
}

func TestSenderNameNotUpdatedOnLaterSightings(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if err := store.SaveIncomingMessage(ctx, groupMessage("MSG1", ts, "first message here"), "Dana", "Dev Jobs IL"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveIncomingMessage(ctx, groupMessage("MSG2", ts.Add(time.Minute), "second message here"), "Dana Cohen", "Renamed Group"); err != nil {
		t.Fatalf("second save: %v", err)
	}

	messages, _, err := store.ListMessages(ctx, database.MessageFilter{})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for _, m := range messages {
		if m.SenderName.String != "Dana" {
			t.Errorf("sender name = %q, want creation-time name", m.SenderName.String)
		}
		if m.GroupName.String != "Dev Jobs IL" {
			t.Errorf("group name = %q, want creation-time name", m.GroupName.String)
		}
	}
}

func TestSaveClassificationWriteOnce(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if err := store.SaveIncomingMessage(ctx, groupMessage("MSG1", ts, "hiring a data engineer"), "", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	first := database.Classification{
		IsRelevant:  sql.NullBool{Bool: true, Valid: true},
		Reasoning:   sql.NullString{String: "job posting", Valid: true},
		TotalTokens: sql.NullInt64{Int64: 120, Valid: true},
	}
	if err := store.SaveClassification(ctx, "MSG1", first); err != nil {
		t.Fatalf("first classification: %v", err)
	}

	second := database.Classification{
		IsRelevant: sql.NullBool{Bool: false, Valid: true},
		Reasoning:  sql.NullString{String: "overwrite attempt", Valid: true},
	}
	if err := store.SaveClassification(ctx, "MSG1", second); err != nil {
		t.Fatalf("second classification should not error: %v", err)
	}

	got, err := store.GetMessage(ctx, "MSG1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !got.IsRelevant.Bool {
		t.Error("is_relevant was overwritten")
	}
	if got.Reasoning.String != "job posting" {
		t.Errorf("reasoning = %q, want first write preserved", got.Reasoning.String)
	}
	if got.RelevancyTotalTokenCount.Int64 != 120 {
		t.Errorf("total tokens = %d", got.RelevancyTotalTokenCount.Int64)
	}
}

func TestSaveClassificationMissingMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := store.SaveClassification(context.Background(), "NO_SUCH", database.Classification{
		IsRelevant: sql.NullBool{Bool: true, Valid: true},
	})
	if err != nil {
		t.Errorf("classification of a missing message should be a no-op, got %v", err)
	}
}

func TestUpdateGroupNameBackfillsOnlyEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// Created without a name.
	if err := store.SaveIncomingMessage(ctx, groupMessage("MSG1", ts, "some group message text"), "", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.UpdateGroupName(ctx, "1203630@g.us", "Dev Jobs IL"); err != nil {
		t.Fatalf("UpdateGroupName: %v", err)
	}
	group, err := store.GetGroup(ctx, "1203630@g.us")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group.GroupName.String != "Dev Jobs IL" {
		t.Errorf("group name = %q after backfill", group.GroupName.String)
	}

	// A second update must not overwrite the stored name.
	if err := store.UpdateGroupName(ctx, "1203630@g.us", "Other Name"); err != nil {
		t.Fatalf("UpdateGroupName: %v", err)
	}
	group, err = store.GetGroup(ctx, "1203630@g.us")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group.GroupName.String != "Dev Jobs IL" {
		t.Errorf("group name = %q, existing name must not be overwritten", group.GroupName.String)
	}
}

func TestListMessagesFiltersAndPagination(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	seed := []struct {
		id       string
		text     string
		group    string
		relevant sql.NullBool
	}{
		{"MSG1", "hiring a golang developer", "1203630@g.us", sql.NullBool{Bool: true, Valid: true}},
		{"MSG2", "lunch plans anyone", "1203630@g.us", sql.NullBool{Bool: false, Valid: true}},
		{"MSG3", "GOLANG meetup tonight", "999@g.us", sql.NullBool{}},
		{"MSG4", "frontend position open", "999@g.us", sql.NullBool{Bool: true, Valid: true}},
	}
	for i, s := range seed {
		msg := &database.Message{
			MessageID: s.id,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Text:      sql.NullString{String: s.text, Valid: true},
			ChatJID:   s.group,
			SenderJID: "972501234567@s.whatsapp.net",
			GroupJID:  sql.NullString{String: s.group, Valid: true},
		}
		if err := store.SaveIncomingMessage(ctx, msg, "Dana", ""); err != nil {
			t.Fatalf("seeding %s: %v", s.id, err)
		}
		if s.relevant.Valid {
			c := database.Classification{
				IsRelevant: s.relevant,
				Reasoning:  sql.NullString{String: "seed", Valid: true},
			}
			if err := store.SaveClassification(ctx, s.id, c); err != nil {
				t.Fatalf("classifying %s: %v", s.id, err)
			}
		}
	}

	tests := []struct {
		name      string
		filter    database.MessageFilter
		wantIDs   []string
		wantTotal int64
	}{
		{
			name:      "no filter, newest first",
			filter:    database.MessageFilter{},
			wantIDs:   []string{"MSG4", "MSG3", "MSG2", "MSG1"},
			wantTotal: 4,
		},
		{
			name:      "relevant only",
			filter:    database.MessageFilter{Relevance: database.RelevanceRelevant},
			wantIDs:   []string{"MSG4", "MSG1"},
			wantTotal: 2,
		},
		{
			name:      "pending only",
			filter:    database.MessageFilter{Relevance: database.RelevancePending},
			wantIDs:   []string{"MSG3"},
			wantTotal: 1,
		},
		{
			name:      "by group",
			filter:    database.MessageFilter{GroupJID: "1203630@g.us"},
			wantIDs:   []string{"MSG2", "MSG1"},
			wantTotal: 2,
		},
		{
			name:      "case-insensitive text search",
			filter:    database.MessageFilter{SearchText: "golang"},
			wantIDs:   []string{"MSG3", "MSG1"},
			wantTotal: 2,
		},
		{
			name:      "second page",
			filter:    database.MessageFilter{Page: 2, PageSize: 3},
			wantIDs:   []string{"MSG1"},
			wantTotal: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, total, err := store.ListMessages(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMessages: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if len(messages) != len(tt.wantIDs) {
				t.Fatalf("got %d messages, want %d", len(messages), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if messages[i].MessageID != want {
					t.Errorf("messages[%d] = %s, want %s", i, messages[i].MessageID, want)
				}
			}
		})
	}
}

func TestGetMessageStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"MSG1", "MSG2", "MSG3"} {
		msg := groupMessage(id, base.Add(time.Duration(i)*time.Minute), "a perfectly ordinary message")
		if err := store.SaveIncomingMessage(ctx, msg, "", ""); err != nil {
			t.Fatalf("seeding %s: %v", id, err)
		}
	}
	if err := store.SaveClassification(ctx, "MSG1", database.Classification{
		IsRelevant:  sql.NullBool{Bool: true, Valid: true},
		Reasoning:   sql.NullString{String: "seed", Valid: true},
		TotalTokens: sql.NullInt64{Int64: 100, Valid: true},
	}); err != nil {
		t.Fatalf("classifying MSG1: %v", err)
	}
	if err := store.SaveClassification(ctx, "MSG2", database.Classification{
		IsRelevant:  sql.NullBool{Bool: false, Valid: true},
		Reasoning:   sql.NullString{String: "seed", Valid: true},
		TotalTokens: sql.NullInt64{Int64: 200, Valid: true},
	}); err != nil {
		t.Fatalf("classifying MSG2: %v", err)
	}

	stats, err := store.GetMessageStats(ctx)
	if err != nil {
		t.Fatalf("GetMessageStats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.RelevantMessages != 1 || stats.IrrelevantMessages != 1 || stats.PendingAnalysis != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.AvgTokensPerMessage.Valid || stats.AvgTokensPerMessage.Float64 != 150 {
		t.Errorf("avg tokens = %+v, want 150", stats.AvgTokensPerMessage)
	}
}

func TestDeleteMessagesBefore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	old := groupMessage("OLD", base.Add(-100*24*time.Hour), "ancient message text here")
	fresh := groupMessage("FRESH", base, "recent message text here")
	for _, m := range []*database.Message{old, fresh} {
		if err := store.SaveIncomingMessage(ctx, m, "", ""); err != nil {
			t.Fatalf("seeding %s: %v", m.MessageID, err)
		}
	}

	deleted, err := store.DeleteMessagesBefore(ctx, base.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteMessagesBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	exists, err := store.MessageExists(ctx, "FRESH")
	if err != nil {
		t.Fatalf("MessageExists: %v", err)
	}
	if !exists {
		t.Error("fresh message was deleted")
	}
	exists, err = store.MessageExists(ctx, "OLD")
	if err != nil {
		t.Fatalf("MessageExists: %v", err)
	}
	if exists {
		t.Error("old message survived the purge")
	}
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.RunSQLMaintenance(context.Background()); err != nil {
		t.Errorf("RunSQLMaintenance: %v", err)
	}
}

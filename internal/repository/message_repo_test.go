package repository_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pccr10001/smsnotify/internal/model"
	"github.com/pccr10001/smsnotify/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&model.Message{}, &model.Webhook{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func queued(id, dest string, at time.Time) *model.Message {
	return &model.Message{ID: id, Destination: dest, Text: "hello", Source: "queue", Status: model.MessageQueued, CreatedAt: at}
}

func TestMessageRepository(t *testing.T) {
	repo := repository.NewMessageRepository(newTestDB(t))
	base := time.Date(2026, 7, 5, 10, 0, 0, 0, time.UTC)

	t.Run("Create then SaveResult", func(t *testing.T) {
		if err := repo.Create(queued("a", "+1", base)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := repo.SaveResult(&model.Message{
			ID: "a", Destination: "+1", Text: "hello", Status: model.MessageSent,
			MessageRef: "42", Attempts: 1, Transcript: "+CMGS: 42\nOK\n", CreatedAt: base,
		})
		if err != nil {
			t.Fatalf("SaveResult: %v", err)
		}

		got, err := repo.FindByID("a")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.Status != model.MessageSent || got.MessageRef != "42" || got.SentAt == nil {
			t.Errorf("unexpected row: %+v", got)
		}
		if got.Source != "queue" {
			t.Errorf("source should survive the update, got %q", got.Source)
		}
	})

	t.Run("Result stored before Create", func(t *testing.T) {
		err := repo.SaveResult(&model.Message{
			ID: "b", Destination: "+2", Text: "hello", Status: model.MessageFailed, Error: "timeout", CreatedAt: base.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		if err := repo.Create(queued("b", "+2", base.Add(time.Minute))); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.FindByID("b")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got.Status != model.MessageFailed || got.Error != "timeout" {
			t.Errorf("late Create must not overwrite the outcome: %+v", got)
		}
	})

	t.Run("List and count", func(t *testing.T) {
		if err := repo.Create(queued("c", "+1", base.Add(2*time.Minute))); err != nil {
			t.Fatalf("Create: %v", err)
		}

		all, total, err := repo.List(repository.MessageFilter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 || len(all) != 3 || all[0].ID != "c" {
			t.Errorf("expected newest first, got total=%d %+v", total, all)
		}
		if all[2].Transcript != "" {
			t.Error("list should omit transcripts")
		}

		page, total, err := repo.List(repository.MessageFilter{Destination: "+1", Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 2 || len(page) != 1 || page[0].ID != "a" {
			t.Errorf("unexpected page: total=%d %+v", total, page)
		}

		counts, err := repo.CountByStatus()
		if err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
		if counts[model.MessageSent] != 1 || counts[model.MessageFailed] != 1 || counts[model.MessageQueued] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}

func TestWebhookRepository(t *testing.T) {
	repo := repository.NewWebhookRepository(newTestDB(t))

	on := &model.Webhook{Name: "ops", URL: "https://example.com/a", Enabled: true}
	off := &model.Webhook{Name: "old", URL: "https://example.com/b", Enabled: true}
	for _, wh := range []*model.Webhook{on, off} {
		if err := repo.Create(wh); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.SetEnabled(off.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	enabled, err := repo.FindEnabled()
	if err != nil {
		t.Fatalf("FindEnabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != on.ID {
		t.Errorf("unexpected enabled list: %+v", enabled)
	}

	deleted, err := repo.Delete(on.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete: %v %v", deleted, err)
	}
	if deleted, _ := repo.Delete(on.ID); deleted {
		t.Error("second delete should report nothing deleted")
	}
	all, _ := repo.List()
	if len(all) != 1 {
		t.Errorf("expected 1 webhook left, got %d", len(all))
	}
}

package repository

import (
	"time"

	"github.com/pccr10001/smsnotify/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create records an accepted message. If the outcome was already stored
// the row is left alone, since the worker may finish before the caller
// gets here.
func (r *MessageRepository) Create(msg *model.Message) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(msg).Error
}

// SaveResult stores the final state of msg, inserting it if Create has not
// run yet.
func (r *MessageRepository) SaveResult(msg *model.Message) error {
	if msg.Status == model.MessageSent && msg.SentAt == nil {
		now := time.Now()
		msg.SentAt = &now
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "message_ref", "attempts", "segments", "oversize",
			"error", "transcript", "updated_at", "sent_at",
		}),
	}).Create(msg).Error
}

func (r *MessageRepository) FindByID(id string) (*model.Message, error) {
	var msg model.Message
	if err := r.db.First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

type MessageFilter struct {
	Status      string
	Destination string
	Limit       int
	Offset      int
}

// List returns messages newest first along with the total matching count.
func (r *MessageRepository) List(f MessageFilter) ([]model.Message, int64, error) {
	q := r.db.Model(&model.Message{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Destination != "" {
		q = q.Where("destination = ?", f.Destination)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var list []model.Message
	err := q.Session(&gorm.Session{}).Omit("transcript").Order("created_at desc").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, total, err
}

// CountByStatus is used by the status endpoint.
func (r *MessageRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := r.db.Model(&model.Message{}).Select("status, count(*) as n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

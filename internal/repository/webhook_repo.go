package repository

import (
	"github.com/pccr10001/smsnotify/internal/model"
	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(webhook *model.Webhook) error {
	return r.db.Create(webhook).Error
}

func (r *WebhookRepository) List() ([]model.Webhook, error) {
	var list []model.Webhook
	err := r.db.Order("id").Find(&list).Error
	return list, err
}

func (r *WebhookRepository) FindEnabled() ([]model.Webhook, error) {
	var list []model.Webhook
	err := r.db.Where("enabled = ?", true).Find(&list).Error
	return list, err
}

func (r *WebhookRepository) Delete(id uint) (bool, error) {
	res := r.db.Delete(&model.Webhook{}, id)
	return res.RowsAffected > 0, res.Error
}

// SetEnabled toggles a webhook. Create cannot store false because of the
// column default.
func (r *WebhookRepository) SetEnabled(id uint, enabled bool) error {
	return r.db.Model(&model.Webhook{}).Where("id = ?", id).Update("enabled", enabled).Error
}

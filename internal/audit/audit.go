package audit

import (
	"fmt"
	"time"

	"rackyard/internal/logs"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

type Action string

const (
	ActionCreate       Action = "created"
	ActionModify       Action = "modified"
	ActionDelete       Action = "deleted"
	ActionDecommission Action = "decommissioned"
	ActionExecute      Action = "executed"
)

// Recorder пишет записи аудита в таблицу logs и дублирует в app-лог.
type Recorder struct{ db *gorm.DB }

func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// WithTx — копия рекордера, привязанная к транзакции.
func (r *Recorder) WithTx(tx *gorm.DB) *Recorder { return &Recorder{db: tx} }

type Subject struct {
	Kind    string // asset | model | rack | user | change plan
	Name    string
	AssetID *uint
	PlanID  *uint
}

func AssetSubject(a *models.Asset) Subject {
	name := fmt.Sprintf("%d", a.AssetNumber)
	if a.Hostname != nil {
		name += " (" + *a.Hostname + ")"
	}
	id := a.ID
	return Subject{Kind: "asset", Name: name, AssetID: &id}
}

// Record — одна строка аудита: кто, что сделал, с чем.
func (r *Recorder) Record(actor string, action Action, s Subject) {
	now := time.Now()
	content := fmt.Sprintf("[%s] %s %s: user %s %s %s %s",
		now.Format(time.RFC3339), s.Kind, s.Name, actor, action, s.Kind, s.Name)
	entry := models.Log{
		Date:           now,
		Content:        content,
		Username:       actor,
		RelatedAssetID: s.AssetID,
		ChangePlanID:   s.PlanID,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		logs.Logger.Errorf("audit write failed: %v", err)
	}
	logs.Logger.WithField("user", actor).Info(content)
}

// ExecutionSummary — итоговая запись по выполнению плана.
func (r *Recorder) ExecutionSummary(actor, planName string, planID uint, created, modified, decommissioned int) {
	now := time.Now()
	content := fmt.Sprintf(
		"[%s] user %s executed change plan '%s': %d assets created, %d assets modified, %d assets decommissioned",
		now.Format(time.RFC3339), actor, planName, created, modified, decommissioned)
	entry := models.Log{
		Date:         now,
		Content:      content,
		Username:     actor,
		ChangePlanID: &planID,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		logs.Logger.Errorf("audit write failed: %v", err)
	}
	logs.Logger.WithField("user", actor).Info(content)
}

// List — последние записи (новые сверху).
func (r *Recorder) List(limit int) ([]models.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.Log
	err := r.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

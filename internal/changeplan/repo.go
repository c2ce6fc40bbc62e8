package changeplan

import (
	"errors"

	"rackyard/internal/audit"
	"rackyard/internal/cabling"
	"rackyard/internal/faults"
	"rackyard/internal/inventory"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// Service — движок change-plan'ов: теневые копии, детекция конфликтов,
// атомарное выполнение плана.
type Service struct {
	db  *gorm.DB
	inv *inventory.Repo
	cab *cabling.Manager
	rec *audit.Recorder
}

func NewService(db *gorm.DB, inv *inventory.Repo, cab *cabling.Manager, rec *audit.Recorder) *Service {
	return &Service{db: db, inv: inv, cab: cab, rec: rec}
}

// WithTx — копия сервиса с подчинёнными зависимостями, привязанная к tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, inv: s.inv.WithTx(tx), cab: s.cab.WithTx(tx), rec: s.rec.WithTx(tx)}
}

// ── Plan CRUD ───────────────────────────────────────────────

func (s *Service) CreatePlan(name string, ownerID uint) (*models.ChangePlan, error) {
	if name == "" {
		return nil, faults.New(faults.Validation, "change plan name must not be empty")
	}
	p := &models.ChangePlan{Name: name, OwnerID: ownerID}
	if err := s.db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPlan(id uint) (*models.ChangePlan, error) {
	var p models.ChangePlan
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing change plan with id=%d", id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) ListPlans(ownerID uint) ([]models.ChangePlan, error) {
	var out []models.ChangePlan
	err := s.db.Where("owner_id = ?", ownerID).Order("id").Find(&out).Error
	return out, err
}

// CanAccess — владелец либо админ; схема прав намеренно примитивна.
func CanAccess(u *models.User, p *models.ChangePlan) bool {
	return u != nil && (u.ID == p.OwnerID || u.IsAdmin)
}

// ensureOpen — все мутации плана и его теней запрещены после execute.
func ensureOpen(p *models.ChangePlan) error {
	if p.Executed() {
		return faults.New(faults.AlreadyExecuted,
			"change plan '%s' has already been executed and is read-only", p.Name)
	}
	return nil
}

// RenamePlan — единственное изменяемое поле самого плана.
func (s *Service) RenamePlan(id uint, name string) (*models.ChangePlan, error) {
	p, err := s.GetPlan(id)
	if err != nil {
		return nil, err
	}
	if err := ensureOpen(p); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, faults.New(faults.Validation, "change plan name must not be empty")
	}
	p.Name = name
	if err := s.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePlan — discard невыполненного плана вместе со всеми тенями.
func (s *Service) DeletePlan(id uint) error {
	p, err := s.GetPlan(id)
	if err != nil {
		return err
	}
	if err := ensureOpen(p); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := dropPlanShadows(tx, p.ID); err != nil {
			return err
		}
		return tx.Delete(&models.ChangePlan{}, p.ID).Error
	})
}

// dropPlanShadows — жёсткое удаление всех CP-строк плана; это черновики,
// в отличие от живых таблиц soft-delete им не нужен.
func dropPlanShadows(tx *gorm.DB, planID uint) error {
	if err := tx.Unscoped().Where("change_plan_id = ?", planID).Delete(&models.NetworkPortCP{}).Error; err != nil {
		return err
	}
	if err := tx.Unscoped().Where("change_plan_id = ?", planID).Delete(&models.PowerPortCP{}).Error; err != nil {
		return err
	}
	if err := tx.Unscoped().Where("change_plan_id = ?", planID).Delete(&models.PDUPortCP{}).Error; err != nil {
		return err
	}
	return tx.Unscoped().Where("change_plan_id = ?", planID).Delete(&models.AssetCP{}).Error
}

func (s *Service) planShadows(planID uint) ([]models.AssetCP, error) {
	var out []models.AssetCP
	err := s.db.Where("change_plan_id = ?", planID).Order("id").Find(&out).Error
	return out, err
}

func (s *Service) getShadow(id uint) (*models.AssetCP, error) {
	var cp models.AssetCP
	if err := s.db.First(&cp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing staged asset with id=%d", id)
		}
		return nil, err
	}
	return &cp, nil
}

// RemoveAssetFromPlan выбрасывает одну тень из плана (вместе с её портами).
// Любые конфликтные маркеры исчезают вместе со строкой.
func (s *Service) RemoveAssetFromPlan(assetCpID uint) error {
	cp, err := s.getShadow(assetCpID)
	if err != nil {
		return err
	}
	plan, err := s.GetPlan(cp.ChangePlanID)
	if err != nil {
		return err
	}
	if err := ensureOpen(plan); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return dropShadowRow(tx, cp)
	})
}

func dropShadowRow(tx *gorm.DB, cp *models.AssetCP) error {
	// Соседние тени могут быть staged-соединены с удаляемой: их
	// connected_port_id обнуляется, иначе останется ссылка на
	// несуществующий порт и execute упадёт на середине.
	var portIDs []uint
	if err := tx.Model(&models.NetworkPortCP{}).
		Where("asset_id = ?", cp.ID).Pluck("id", &portIDs).Error; err != nil {
		return err
	}
	if len(portIDs) > 0 {
		if err := tx.Model(&models.NetworkPortCP{}).
			Where("connected_port_id IN ?", portIDs).
			Update("connected_port_id", nil).Error; err != nil {
			return err
		}
	}
	if err := tx.Unscoped().Where("asset_id = ?", cp.ID).Delete(&models.NetworkPortCP{}).Error; err != nil {
		return err
	}
	if err := tx.Unscoped().Where("asset_id = ?", cp.ID).Delete(&models.PowerPortCP{}).Error; err != nil {
		return err
	}
	return tx.Unscoped().Delete(&models.AssetCP{}, cp.ID).Error
}

// ResolveConflict — разрешение resolvable-конфликта: overrideLive=true
// оставляет теневую версию (снимает флаг), false — отбрасывает тень
// и тем самым оставляет живую.
func (s *Service) ResolveConflict(assetCpID uint, overrideLive bool) error {
	cp, err := s.getShadow(assetCpID)
	if err != nil {
		return err
	}
	plan, err := s.GetPlan(cp.ChangePlanID)
	if err != nil {
		return err
	}
	if err := ensureOpen(plan); err != nil {
		return err
	}
	if overrideLive {
		return s.db.Model(&models.AssetCP{}).
			Where("id = ?", cp.ID).
			Update("is_conflict", false).Error
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return dropShadowRow(tx, cp)
	})
}

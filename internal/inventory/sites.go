package inventory

import (
	"errors"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ── Datacenters ─────────────────────────────────────────────

func (r *Repo) CreateDatacenter(d *models.Datacenter) error { return r.db.Create(d).Error }

func (r *Repo) ListDatacenters() ([]models.Datacenter, error) {
	var out []models.Datacenter
	err := r.db.Order("abbreviation").Find(&out).Error
	return out, err
}

// ── Racks ───────────────────────────────────────────────────

// CreateRack создаёт стойку и провиженит её PDU: по 24 порта слева и справа.
func (r *Repo) CreateRack(rack *models.Rack) error {
	if rack.Height <= 0 {
		rack.Height = 42
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rack).Error; err != nil {
			return err
		}
		for _, side := range []string{models.PDULeft, models.PDURight} {
			for n := 1; n <= 24; n++ {
				p := models.PDUPort{RackID: rack.ID, LeftRight: side, PortNumber: n}
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *Repo) GetRack(id uint) (*models.Rack, error) {
	var rack models.Rack
	if err := r.db.First(&rack, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing rack with id=%d", id)
		}
		return nil, err
	}
	return &rack, nil
}

func (r *Repo) ListRacks(datacenterID uint) ([]models.Rack, error) {
	var out []models.Rack
	q := r.db.Order("row_letter, rack_num")
	if datacenterID != 0 {
		q = q.Where("datacenter_id = ?", datacenterID)
	}
	err := q.Find(&out).Error
	return out, err
}

// DeleteRack — стойку нельзя удалить, пока в ней стоят ассеты.
func (r *Repo) DeleteRack(id uint) error {
	var n int64
	if err := r.db.Model(&models.Asset{}).Where("rack_id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return faults.New(faults.Validation, "cannot delete rack with id=%d: %d assets still racked", id, n)
	}
	return r.db.Delete(&models.Rack{}, id).Error
}

// ── IT models ───────────────────────────────────────────────

func (r *Repo) CreateModel(m *models.ITModel) error {
	if m.Height <= 0 {
		return faults.New(faults.Validation, "model height must be positive")
	}
	return r.db.Create(m).Error
}

func (r *Repo) GetModel(id uint) (*models.ITModel, error) {
	var m models.ITModel
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing model with id=%d", id)
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repo) ListModels() ([]models.ITModel, error) {
	var out []models.ITModel
	err := r.db.Order("vendor, model_number").Find(&out).Error
	return out, err
}

// DeleteModel — модель нельзя удалить, пока на неё ссылаются живые ассеты.
// Теневые ссылки (AssetCP) при этом обнуляются: такая тень становится
// неразрешимым конфликтом и будет отклонена при execute.
func (r *Repo) DeleteModel(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Asset{}).Where("model_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return faults.New(faults.Validation, "cannot delete model with id=%d: %d assets still reference it", id, n)
		}
		if err := tx.Model(&models.AssetCP{}).Where("model_id = ?", id).
			Update("model_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ITModel{}, id).Error
	})
}

// ── Users ───────────────────────────────────────────────────

func (r *Repo) CreateUser(u *models.User) error { return r.db.Create(u).Error }

func (r *Repo) GetUser(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing user with id=%d", id)
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) ListUsers() ([]models.User, error) {
	var out []models.User
	err := r.db.Order("username").Find(&out).Error
	return out, err
}

package inventory

import (
	"errors"
	"strconv"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ConflictHook вызывается после каждой записи живого ассета, внутри той же
// транзакции. Сюда подключается детектор конфликтов change-plan'ов; явный
// вызов вместо неявных сигналов ORM.
type ConflictHook interface {
	OnAssetWritten(tx *gorm.DB, a *models.Asset) error
}

type Repo struct {
	db        *gorm.DB
	Conflicts ConflictHook // опционально
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// WithTx — копия репозитория, привязанная к транзакции (хук сохраняется).
func (r *Repo) WithTx(tx *gorm.DB) *Repo { return &Repo{db: tx, Conflicts: r.Conflicts} }

// SaveAsset — единая точка записи живого ассета (create и update).
// Валидация, автоназначение asset_number, провижининг портов по модели
// и вызов детектора конфликтов — всё в одной транзакции.
func (r *Repo) SaveAsset(a *models.Asset) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := ValidateHostname(a.Hostname); err != nil {
			return err
		}
		if err := ValidateOwner(tx, a.Owner); err != nil {
			return err
		}

		var model models.ITModel
		if err := tx.First(&model, a.ModelID).Error; err != nil {
			return faults.Wrap(faults.NotFound, err, "no existing model with id=%d", a.ModelID)
		}

		var exclude *uint
		if a.ID != 0 {
			id := a.ID
			exclude = &id
		}
		if err := ValidateLocation(tx, a.RackID, a.RackPosition, model.Height, exclude); err != nil {
			return err
		}

		if a.Hostname != nil && *a.Hostname != "" {
			if err := r.checkHostnameFree(tx, *a.Hostname, exclude); err != nil {
				return err
			}
		}

		if a.AssetNumber == 0 {
			n, err := nextAssetNumber(tx)
			if err != nil {
				return err
			}
			a.AssetNumber = n
		} else {
			if err := ValidateAssetNumber(a.AssetNumber); err != nil {
				return err
			}
			if err := r.checkAssetNumberFree(tx, a.AssetNumber, exclude); err != nil {
				return err
			}
		}

		isNew := a.ID == 0
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		if isNew {
			if err := provisionPorts(tx, a, &model); err != nil {
				return err
			}
		}

		if r.Conflicts != nil {
			if err := r.Conflicts.OnAssetWritten(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) checkHostnameFree(tx *gorm.DB, hostname string, exclude *uint) error {
	q := tx.Model(&models.Asset{}).Where("hostname = ?", hostname)
	if exclude != nil {
		q = q.Where("id <> ?", *exclude)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return faults.New(faults.Validation, "An asset with hostname '%s' already exists.", hostname)
	}
	return nil
}

func (r *Repo) checkAssetNumberFree(tx *gorm.DB, number int, exclude *uint) error {
	// Unscoped: номера выведенных ассетов не переиспользуем, они остаются
	// в архиве decommissioned-ассетов.
	q := tx.Unscoped().Model(&models.Asset{}).Where("asset_number = ?", number)
	if exclude != nil {
		q = q.Where("id <> ?", *exclude)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return faults.New(faults.Validation, "An asset with asset number %d already exists.", number)
	}
	return nil
}

// nextAssetNumber — первый свободный номер в [100000, 999999].
func nextAssetNumber(tx *gorm.DB) (int, error) {
	var taken []int
	if err := tx.Unscoped().Model(&models.Asset{}).
		Order("asset_number").Pluck("asset_number", &taken).Error; err != nil {
		return 0, err
	}
	next := AssetNumberMin
	for _, n := range taken {
		if n < next {
			continue
		}
		if n > next {
			break
		}
		next++
	}
	if next > AssetNumberMax {
		return 0, faults.New(faults.Validation, "no free asset numbers left")
	}
	return next, nil
}

// provisionPorts создаёт порты ассета по раскладке модели. Вызывается
// только для новых ассетов: по одному NetworkPort на имя порта модели,
// по одному PowerPort на слот питания.
func provisionPorts(tx *gorm.DB, a *models.Asset, model *models.ITModel) error {
	var existing int64
	if err := tx.Model(&models.NetworkPort{}).Where("asset_id = ?", a.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing == 0 {
		for _, name := range model.PortNames() {
			p := models.NetworkPort{AssetID: a.ID, PortName: name}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
	}
	if err := tx.Model(&models.PowerPort{}).Where("asset_id = ?", a.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing == 0 {
		// имена силовых портов — "1", "2", ...
		for i := 1; i <= model.NumPowerPorts; i++ {
			p := models.PowerPort{AssetID: a.ID, PortName: strconv.Itoa(i)}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repo) GetAsset(id uint) (*models.Asset, error) {
	var a models.Asset
	if err := r.db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing asset with id=%d", id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repo) GetAssetByHostname(hostname string) (*models.Asset, error) {
	var a models.Asset
	if err := r.db.Where("hostname = ?", hostname).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.NotFound, "no existing asset with hostname '%s'", hostname)
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ListAssets() ([]models.Asset, error) {
	var out []models.Asset
	err := r.db.Order("asset_number").Find(&out).Error
	return out, err
}

// DeleteAsset удаляет живой ассет и каскадно его порты. Сетевые связи
// рвутся симметрично: у каждого подключённого соседа connected_port
// обнуляется до удаления наших портов.
func (r *Repo) DeleteAsset(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var ports []models.NetworkPort
		if err := tx.Where("asset_id = ?", id).Find(&ports).Error; err != nil {
			return err
		}
		for _, p := range ports {
			if p.ConnectedPortID != nil {
				if err := tx.Model(&models.NetworkPort{}).
					Where("id = ?", *p.ConnectedPortID).
					Update("connected_port_id", nil).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.Where("asset_id = ?", id).Delete(&models.NetworkPort{}).Error; err != nil {
			return err
		}
		if err := tx.Where("asset_id = ?", id).Delete(&models.PowerPort{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Asset{}, id).Error
	})
}

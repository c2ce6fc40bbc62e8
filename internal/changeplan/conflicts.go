package changeplan

import (
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ── Conflict Detector ───────────────────────────────────────
//
// Запускается синхронно на каждой записи живого ассета (явный вызов из
// write-path инвентаря, см. inventory.ConflictHook). Маркеры конфликтов
// монотонны: однажды выставленный снимается только явным resolve либо
// удалением тени.

// Detector — stateless, работает в транзакции вызывающего.
type Detector struct{}

func NewDetector() Detector { return Detector{} }

func (Detector) OnAssetWritten(tx *gorm.DB, a *models.Asset) error {
	// 1. тени этого ассета: живая версия разошлась со staged —
	// полный конфликт, требует выбора пользователя
	if err := tx.Model(&models.AssetCP{}).
		Where("related_asset_id = ?", a.ID).
		Update("is_conflict", true).Error; err != nil {
		return err
	}

	// 2. hostname-коллизии с чужими тенями
	if a.Hostname != nil && *a.Hostname != "" {
		if err := tx.Model(&models.AssetCP{}).
			Where("hostname = ? AND (related_asset_id IS NULL OR related_asset_id <> ?)", *a.Hostname, a.ID).
			Update("conflict_hostname_asset_id", a.ID).Error; err != nil {
			return err
		}
	}

	// 3. каждая тень в этой стойке перепроверяется на пересечение
	// со всеми живыми ассетами стойки
	if err := checkRackLocations(tx, a.RackID); err != nil {
		return err
	}

	// 4. коллизии asset_number
	if err := tx.Model(&models.AssetCP{}).
		Where("asset_number = ? AND (related_asset_id IS NULL OR related_asset_id <> ?)", a.AssetNumber, a.ID).
		Update("conflict_asset_number_asset_id", a.ID).Error; err != nil {
		return err
	}

	return nil
}

// checkRackLocations: для каждой тени стойки ищем живой ассет, чей
// footprint пересекается со staged-позицией; нашли — ставим маркер со
// ссылкой на виновника.
func checkRackLocations(tx *gorm.DB, rackID uint) error {
	var shadows []models.AssetCP
	if err := tx.Where("rack_id = ?", rackID).Find(&shadows).Error; err != nil {
		return err
	}
	if len(shadows) == 0 {
		return nil
	}

	var liveInRack []models.Asset
	if err := tx.Where("rack_id = ?", rackID).Find(&liveInRack).Error; err != nil {
		return err
	}
	heights := map[uint]int{}
	heightOf := func(modelID uint) int {
		if h, ok := heights[modelID]; ok {
			return h
		}
		var m models.ITModel
		if err := tx.First(&m, modelID).Error; err != nil {
			heights[modelID] = 0
			return 0
		}
		heights[modelID] = m.Height
		return m.Height
	}

	for _, cp := range shadows {
		if cp.ModelID == nil {
			continue // и так неразрешимый конфликт
		}
		cpHeight := heightOf(*cp.ModelID)
		if cpHeight == 0 {
			continue
		}
		for _, live := range liveInRack {
			if cp.RelatedAssetID != nil && live.ID == *cp.RelatedAssetID {
				continue // старое место самой тени не считается
			}
			liveHeight := heightOf(live.ModelID)
			if liveHeight == 0 {
				continue
			}
			if overlap(cp.RackPosition, cpHeight, live.RackPosition, liveHeight) {
				if err := tx.Model(&models.AssetCP{}).
					Where("id = ?", cp.ID).
					Update("conflict_location_asset_id", live.ID).Error; err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func overlap(pos1, h1, pos2, h2 int) bool {
	return pos1 < pos2+h2 && pos2 < pos1+h1
}

// ── Классификация ───────────────────────────────────────────

// Conflict — один обнаруженный конфликт тени. Resolvable — пользователь
// может выбрать live или staged версию; иначе единственный выход —
// убрать изменение из плана.
type Conflict struct {
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
	Resolvable bool   `json:"resolvable"`
}

// Conflicts классифицирует маркеры тени. Пустой срез — конфликтов нет,
// тень готова к промоушену.
func (s *Service) Conflicts(cp *models.AssetCP) []Conflict {
	var out []Conflict

	if cp.ConflictHostnameAssetID != nil {
		out = append(out, Conflict{
			Field:      "hostname",
			Message:    "A live asset now uses this hostname. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.ConflictAssetNumberAssetID != nil {
		out = append(out, Conflict{
			Field:      "asset_number",
			Message:    "A live asset now uses this asset number. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.ConflictLocationAssetID != nil {
		out = append(out, Conflict{
			Field:      "rack_position",
			Message:    "A live asset now occupies this rack location. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.ModelID == nil {
		out = append(out, Conflict{
			Field:      "model",
			Message:    "The referenced model has been deleted. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.RackID == nil {
		out = append(out, Conflict{
			Field:      "rack",
			Message:    "The referenced rack has been deleted. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.RelatedDecommissionedAssetID != nil {
		out = append(out, Conflict{
			Message:    "This asset has already been decommissioned. Remove this change from the plan.",
			Resolvable: false,
		})
	}
	if cp.RelatedAssetID != nil {
		var n int64
		if res := s.db.Model(&models.Asset{}).Where("id = ?", *cp.RelatedAssetID).Count(&n); res.Error == nil && n == 0 {
			out = append(out, Conflict{
				Message:    "The live asset has been deleted. Remove this change from the plan.",
				Resolvable: false,
			})
		}
	}
	if len(out) == 0 && cp.IsConflict {
		out = append(out, Conflict{
			Message:    "The live asset has been modified since this change was staged. Keep the live version or override it with the staged one.",
			Resolvable: true,
		})
	}
	return out
}

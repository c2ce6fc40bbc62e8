package changeplan

import (
	"errors"
	"strconv"

	"rackyard/internal/faults"
	"rackyard/internal/inventory"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ── Shadow Copy Engine ──────────────────────────────────────
//
// Тень создаётся лениво: при первом staged-изменении, которое касается
// живого ассета. Копируются скаляры, MAC-адреса портов и привязки питания
// (через copy-on-first-use PDUPortCP). Сетевые соединения НЕ копируются:
// иначе тень дублировала бы живую топологию, они восстанавливаются
// по staged-изменениям.

// GetOrCreateShadow — идемпотентный вход: для одного hostname и плана
// всегда возвращает одну и ту же тень. (nil, nil) — ассета нет ни в live,
// ни среди теней плана.
func (s *Service) GetOrCreateShadow(hostname string, plan *models.ChangePlan) (*models.AssetCP, error) {
	var out *models.AssetCP
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cp, err := s.WithTx(tx).getOrCreateShadow(tx, hostname, plan)
		out = cp
		return err
	})
	return out, err
}

func (s *Service) getOrCreateShadow(tx *gorm.DB, hostname string, plan *models.ChangePlan) (*models.AssetCP, error) {
	var live models.Asset
	err := tx.Where("hostname = ?", hostname).First(&live).Error
	switch {
	case err == nil:
		// уже скопирован в этот план?
		var existing models.AssetCP
		ferr := tx.Where("change_plan_id = ? AND related_asset_id = ?", plan.ID, live.ID).
			First(&existing).Error
		if ferr == nil {
			return &existing, nil
		}
		if !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, ferr
		}
		return s.copyAssetToPlan(tx, &live, plan)

	case errors.Is(err, gorm.ErrRecordNotFound):
		// живого нет — возможно, тень создана в плане с нуля
		var cp models.AssetCP
		ferr := tx.Where("change_plan_id = ? AND hostname = ?", plan.ID, hostname).
			First(&cp).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if ferr != nil {
			return nil, ferr
		}
		return &cp, nil

	default:
		return nil, err
	}
}

// StageAsset затягивает живой ассет в план по id (идемпотентно).
func (s *Service) StageAsset(liveID uint, plan *models.ChangePlan) (*models.AssetCP, error) {
	if err := ensureOpen(plan); err != nil {
		return nil, err
	}
	var out *models.AssetCP
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.AssetCP
		ferr := tx.Where("change_plan_id = ? AND related_asset_id = ?", plan.ID, liveID).
			First(&existing).Error
		if ferr == nil {
			out = &existing
			return nil
		}
		if !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return ferr
		}
		var live models.Asset
		if err := tx.First(&live, liveID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return faults.New(faults.NotFound, "no existing asset with id=%d", liveID)
			}
			return err
		}
		cp, err := s.copyAssetToPlan(tx, &live, plan)
		out = cp
		return err
	})
	return out, err
}

// copyAssetToPlan — собственно копирование живого ассета в тень.
func (s *Service) copyAssetToPlan(tx *gorm.DB, live *models.Asset, plan *models.ChangePlan) (*models.AssetCP, error) {
	relID := live.ID
	number := live.AssetNumber
	modelID := live.ModelID
	rackID := live.RackID
	cp := &models.AssetCP{
		Hostname:       cloneStr(live.Hostname),
		AssetNumber:    &number,
		ModelID:        &modelID,
		RackID:         &rackID,
		RackPosition:   live.RackPosition,
		Owner:          cloneStr(live.Owner),
		Comment:        live.Comment,
		ChangePlanID:   plan.ID,
		RelatedAssetID: &relID,
	}
	if err := s.saveShadow(tx, cp, plan); err != nil {
		return nil, err
	}

	// MAC-адреса портов; соединения восстанавливаются staged-изменениями
	var livePorts []models.NetworkPort
	if err := tx.Where("asset_id = ?", live.ID).Find(&livePorts).Error; err != nil {
		return nil, err
	}
	for _, lp := range livePorts {
		if lp.MACAddress == nil {
			continue
		}
		if err := tx.Model(&models.NetworkPortCP{}).
			Where("asset_id = ? AND port_name = ? AND change_plan_id = ?", cp.ID, lp.PortName, plan.ID).
			Update("mac_address", *lp.MACAddress).Error; err != nil {
			return nil, err
		}
	}

	// привязки питания: каждый живой PDU-порт реплицируется
	// copy-on-first-use клоном в скоуп плана
	var livePower []models.PowerPort
	if err := tx.Where("asset_id = ?", live.ID).Find(&livePower).Error; err != nil {
		return nil, err
	}
	for _, lp := range livePower {
		if lp.PowerConnectionID == nil {
			continue
		}
		var pdu models.PDUPort
		if err := tx.First(&pdu, *lp.PowerConnectionID).Error; err != nil {
			return nil, err
		}
		cpPduID, ok, err := s.cab.ResolvePDUPort(tx, pdu.RackID, pdu.LeftRight, pdu.PortNumber, plan)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := tx.Model(&models.PowerPortCP{}).
			Where("asset_id = ? AND port_name = ? AND change_plan_id = ?", cp.ID, lp.PortName, plan.ID).
			Update("power_connection_id", cpPduID).Error; err != nil {
			return nil, err
		}
	}

	return cp, nil
}

// SaveShadow — публичная точка записи тени: создание с нуля либо правка
// полей существующей.
func (s *Service) SaveShadow(cp *models.AssetCP, plan *models.ChangePlan) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return s.saveShadow(tx, cp, plan)
	})
}

// saveShadow — единая точка записи тени: валидация и провижининг портов,
// как у живого ассета.
func (s *Service) saveShadow(tx *gorm.DB, cp *models.AssetCP, plan *models.ChangePlan) error {
	if err := ensureOpen(plan); err != nil {
		return err
	}
	if err := inventory.ValidateHostname(cp.Hostname); err != nil {
		return err
	}
	if err := inventory.ValidateOwner(tx, cp.Owner); err != nil {
		return err
	}
	if cp.AssetNumber != nil {
		if err := inventory.ValidateAssetNumber(*cp.AssetNumber); err != nil {
			return err
		}
	}
	// hostname не должен быть занят живым ассетом, кроме того, чью тень
	// мы правим: такая тень не промоутится и зарежет execute целиком
	if cp.Hostname != nil && *cp.Hostname != "" {
		var taken []models.Asset
		if err := tx.Where("hostname = ?", *cp.Hostname).Find(&taken).Error; err != nil {
			return err
		}
		for _, t := range taken {
			if cp.RelatedAssetID != nil && t.ID == *cp.RelatedAssetID {
				continue
			}
			return faults.New(faults.Validation,
				"An asset with hostname '%s' already exists.", *cp.Hostname)
		}
		// и другой тенью того же плана
		var n int64
		if err := tx.Model(&models.AssetCP{}).
			Where("change_plan_id = ? AND hostname = ? AND id <> ?", plan.ID, *cp.Hostname, cp.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return faults.New(faults.Validation,
				"An asset with hostname '%s' is already staged in this change plan.", *cp.Hostname)
		}
	}

	isNew := cp.ID == 0
	if err := tx.Save(cp).Error; err != nil {
		return err
	}
	if isNew {
		if err := provisionShadowPorts(tx, cp); err != nil {
			return err
		}
	}
	return nil
}

// provisionShadowPorts — как provisionPorts для живого ассета, но в
// скоупе плана. Модель может быть уже удалена (nil) — тогда портов нет,
// такая тень всё равно неразрешимый конфликт.
func provisionShadowPorts(tx *gorm.DB, cp *models.AssetCP) error {
	if cp.ModelID == nil {
		return nil
	}
	var model models.ITModel
	if err := tx.First(&model, *cp.ModelID).Error; err != nil {
		return err
	}
	var existing int64
	if err := tx.Model(&models.NetworkPortCP{}).Where("asset_id = ?", cp.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing == 0 {
		for _, name := range model.PortNames() {
			p := models.NetworkPortCP{AssetID: cp.ID, PortName: name, ChangePlanID: cp.ChangePlanID}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
	}
	if err := tx.Model(&models.PowerPortCP{}).Where("asset_id = ?", cp.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing == 0 {
		for i := 1; i <= model.NumPowerPorts; i++ {
			p := models.PowerPortCP{AssetID: cp.ID, PortName: strconv.Itoa(i), ChangePlanID: cp.ChangePlanID}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// ── cabling.ShadowResolver ──────────────────────────────────

// ResolveAssetByHostname — реализация моста для батчей проводки:
// в plan-скоупе destination-ассет лениво затягивается в план.
func (s *Service) ResolveAssetByHostname(tx *gorm.DB, hostname string, plan *models.ChangePlan) (uint, bool, error) {
	cp, err := s.WithTx(tx).getOrCreateShadow(tx, hostname, plan)
	if err != nil {
		return 0, false, err
	}
	if cp == nil {
		return 0, false, nil
	}
	return cp.ID, true, nil
}

// StageDisconnectPeer: рвётся staged-соединение, а его живой сосед ещё не
// в плане — затягиваем его, чтобы разрыв существовал только в скоупе плана.
func (s *Service) StageDisconnectPeer(tx *gorm.DB, assetCpID uint, portName string, plan *models.ChangePlan) error {
	var cp models.AssetCP
	if err := tx.First(&cp, assetCpID).Error; err != nil {
		return err
	}
	if cp.RelatedAssetID == nil {
		return nil // тень без живого прототипа, рвать нечего
	}
	var livePort models.NetworkPort
	err := tx.Where("asset_id = ? AND port_name = ?", *cp.RelatedAssetID, portName).
		First(&livePort).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if livePort.ConnectedPortID == nil {
		return nil
	}
	var peerPort models.NetworkPort
	if err := tx.First(&peerPort, *livePort.ConnectedPortID).Error; err != nil {
		return err
	}
	var peer models.Asset
	if err := tx.First(&peer, peerPort.AssetID).Error; err != nil {
		return err
	}
	// идемпотентно: если сосед уже в плане, копии не будет
	var existing models.AssetCP
	ferr := tx.Where("change_plan_id = ? AND related_asset_id = ?", plan.ID, peer.ID).
		First(&existing).Error
	if ferr == nil {
		return nil
	}
	if !errors.Is(ferr, gorm.ErrRecordNotFound) {
		return ferr
	}
	_, err = s.WithTx(tx).copyAssetToPlan(tx, &peer, plan)
	return err
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

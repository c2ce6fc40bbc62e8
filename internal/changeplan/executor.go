package changeplan

import (
	"time"

	"rackyard/internal/audit"
	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ── Execute ─────────────────────────────────────────────────
//
// Выполнение плана атомарно: либо все staged-изменения становятся живыми,
// либо ни одно. Два прохода: сначала промоушен теней (create/modify) и
// восстановление проводки, потом decommission — чтобы соединения с
// выводимыми ассетами успели корректно порваться через удаление.

// ExecuteResult — итог выполнения плана.
type ExecuteResult struct {
	Created        int `json:"assets_created"`
	Modified       int `json:"assets_modified"`
	Decommissioned int `json:"assets_decommissioned"`
}

func (s *Service) Execute(planID uint, u *models.User) (*ExecuteResult, error) {
	p, err := s.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if !CanAccess(u, p) {
		return nil, faults.New(faults.Permission,
			"only the owner of change plan '%s' or an administrator may execute it", p.Name)
	}
	if err := ensureOpen(p); err != nil {
		return nil, err
	}

	res := &ExecuteResult{}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		svc := s.WithTx(tx)

		// гонка двух одновременных execute решается атомарным штампом:
		// проигравший увидит 0 затронутых строк
		st := tx.Model(&models.ChangePlan{}).
			Where("id = ? AND execution_time IS NULL", p.ID).
			Update("execution_time", time.Now())
		if st.Error != nil {
			return st.Error
		}
		if st.RowsAffected == 0 {
			return faults.New(faults.AlreadyExecuted,
				"change plan '%s' has already been executed and is read-only", p.Name)
		}

		shadows, err := svc.planShadows(p.ID)
		if err != nil {
			return err
		}
		for i := range shadows {
			if len(svc.Conflicts(&shadows[i])) > 0 {
				return faults.New(faults.ConflictUnresolved,
					"Conflict found on staged asset with id=%d", shadows[i].ID)
			}
		}

		// проход 1: промоушен. promoted связывает тень с её живым ассетом,
		// чтобы потом восстановить проводку между уже существующими портами.
		promoted := map[uint]uint{}
		for i := range shadows {
			cp := &shadows[i]
			if cp.IsDecommissioned {
				if cp.RelatedAssetID != nil {
					promoted[cp.ID] = *cp.RelatedAssetID
				}
				continue
			}
			live, created, err := svc.promoteShadow(cp)
			if err != nil {
				return err
			}
			promoted[cp.ID] = live.ID
			if created {
				res.Created++
				svc.rec.Record(u.Username, audit.ActionCreate, audit.AssetSubject(live))
			} else {
				res.Modified++
				svc.rec.Record(u.Username, audit.ActionModify, audit.AssetSubject(live))
			}
		}

		// проводка — только после того, как все участники существуют
		for i := range shadows {
			cp := &shadows[i]
			if cp.IsDecommissioned {
				continue
			}
			if err := svc.replayWiring(cp, promoted); err != nil {
				return err
			}
		}

		// проход 2: decommission
		for i := range shadows {
			cp := &shadows[i]
			if !cp.IsDecommissioned || cp.RelatedAssetID == nil {
				continue
			}
			var live models.Asset
			if err := tx.First(&live, *cp.RelatedAssetID).Error; err != nil {
				return err
			}
			if err := svc.decommissionLive(&live, u.Username, p.ID); err != nil {
				return err
			}
			res.Decommissioned++
		}

		return dropPlanShadows(tx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.rec.ExecutionSummary(u.Username, p.Name, p.ID, res.Created, res.Modified, res.Decommissioned)
	return res, nil
}

// promoteShadow переносит скаляры тени в живой ассет (существующий или
// новый). Запись идёт через общий write-path инвентаря: валидация,
// автономер и детектор конфликтов для остальных планов срабатывают как
// при обычном сохранении.
func (s *Service) promoteShadow(cp *models.AssetCP) (*models.Asset, bool, error) {
	var live models.Asset
	created := cp.RelatedAssetID == nil
	if !created {
		if err := s.db.First(&live, *cp.RelatedAssetID).Error; err != nil {
			return nil, false, err
		}
	}
	live.Hostname = cloneStr(cp.Hostname)
	if cp.AssetNumber != nil {
		live.AssetNumber = *cp.AssetNumber
	}
	live.ModelID = *cp.ModelID
	live.RackID = *cp.RackID
	live.RackPosition = cp.RackPosition
	live.Owner = cloneStr(cp.Owner)
	live.Comment = cp.Comment
	if err := s.inv.SaveAsset(&live); err != nil {
		return nil, false, err
	}
	return &live, created, nil
}

// replayWiring накатывает staged-проводку тени на её живой ассет:
// MAC-адреса, сетевые соединения (по карте promoted) и питание.
func (s *Service) replayWiring(cp *models.AssetCP, promoted map[uint]uint) error {
	liveID := promoted[cp.ID]

	var cpPorts []models.NetworkPortCP
	if err := s.db.Where("asset_id = ?", cp.ID).Find(&cpPorts).Error; err != nil {
		return err
	}
	for _, cpp := range cpPorts {
		if cpp.MACAddress == nil {
			continue
		}
		if err := s.db.Model(&models.NetworkPort{}).
			Where("asset_id = ? AND port_name = ?", liveID, cpp.PortName).
			Update("mac_address", *cpp.MACAddress).Error; err != nil {
			return err
		}
	}

	for _, cpp := range cpPorts {
		if cpp.ConnectedPortID == nil {
			// staged-разрыв: флаг вместо пустого connected_port,
			// пустота без флага значит "без изменений"
			if cpp.Disconnect {
				var src models.NetworkPort
				err := s.db.Where("asset_id = ? AND port_name = ?", liveID, cpp.PortName).
					First(&src).Error
				if err != nil {
					return err
				}
				if err := s.cab.Disconnect(&src); err != nil {
					return err
				}
			}
			continue
		}
		var peer models.NetworkPortCP
		if err := s.db.First(&peer, *cpp.ConnectedPortID).Error; err != nil {
			return err
		}
		peerLiveID, ok := promoted[peer.AssetID]
		if !ok {
			continue
		}
		var src, dst models.NetworkPort
		if err := s.db.Where("asset_id = ? AND port_name = ?", liveID, cpp.PortName).
			First(&src).Error; err != nil {
			return err
		}
		if err := s.db.Where("asset_id = ? AND port_name = ?", peerLiveID, peer.PortName).
			First(&dst).Error; err != nil {
			return err
		}
		// симметричная пара обрабатывается один раз: вторая сторона
		// увидит уже выставленную связь
		if src.ConnectedPortID != nil && *src.ConnectedPortID == dst.ID {
			continue
		}
		if err := s.cab.Disconnect(&src); err != nil {
			return err
		}
		if err := s.cab.Disconnect(&dst); err != nil {
			return err
		}
		if err := s.cab.Connect(&src, &dst); err != nil {
			return err
		}
	}

	var cpPower []models.PowerPortCP
	if err := s.db.Where("asset_id = ?", cp.ID).Find(&cpPower).Error; err != nil {
		return err
	}
	for _, cpp := range cpPower {
		if cpp.PowerConnectionID == nil {
			if err := s.db.Model(&models.PowerPort{}).
				Where("asset_id = ? AND port_name = ?", liveID, cpp.PortName).
				Update("power_connection_id", nil).Error; err != nil {
				return err
			}
			continue
		}
		var cpPdu models.PDUPortCP
		if err := s.db.First(&cpPdu, *cpp.PowerConnectionID).Error; err != nil {
			return err
		}
		var pdu models.PDUPort
		if err := s.db.Where(&models.PDUPort{
			RackID:     cpPdu.RackID,
			LeftRight:  cpPdu.LeftRight,
			PortNumber: cpPdu.PortNumber,
		}).FirstOrCreate(&pdu).Error; err != nil {
			return err
		}
		if err := s.db.Model(&models.PowerPort{}).
			Where("asset_id = ? AND port_name = ?", liveID, cpp.PortName).
			Update("power_connection_id", pdu.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

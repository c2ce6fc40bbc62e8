package changeplan

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"rackyard/internal/audit"
	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ── Decommission ────────────────────────────────────────────
//
// Вывод из эксплуатации необратим: живой ассет заменяется архивным
// снимком, включающим модель, стойку и всю проводку на момент вывода.
// Номер ассета остаётся занятым навсегда.

// DecommissionLiveAsset — немедленный вывод живого ассета (вне плана).
func (s *Service) DecommissionLiveAsset(assetID uint, u *models.User) error {
	if u == nil {
		return faults.New(faults.Permission, "decommissioning requires an authenticated user")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var live models.Asset
		if err := tx.First(&live, assetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return faults.New(faults.NotFound, "no existing asset with id=%d", assetID)
			}
			return err
		}
		return s.WithTx(tx).decommissionLive(&live, u.Username, 0)
	})
}

// MarkDecommission помечает тень на вывод при execute. Полевые правки
// тени при этом остаются: они не применяются, вывод затирает всё.
func (s *Service) MarkDecommission(assetCpID uint) error {
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
	return s.db.Model(&models.AssetCP{}).
		Where("id = ?", cp.ID).
		Update("is_decommissioned", true).Error
}

// ListDecommissioned — архив, новые сверху.
func (s *Service) ListDecommissioned() ([]models.DecommissionedAsset, error) {
	var out []models.DecommissionedAsset
	err := s.db.Order("time_decommissioned DESC").Find(&out).Error
	return out, err
}

// decommissionLive: снимок -> архив, пометка чужих теней, удаление живого.
// Вызывается на сервисе, уже привязанном к транзакции. excludePlanID —
// план, чьи тени вот-вот будут сброшены целиком (0 — помечать все).
func (s *Service) decommissionLive(live *models.Asset, actor string, excludePlanID uint) error {
	da, err := buildAssetSnapshot(s.db, live, actor)
	if err != nil {
		return err
	}
	if err := s.db.Create(da).Error; err != nil {
		return err
	}

	// тени выведенного ассета в других планах становятся неразрешимыми
	// конфликтами: живого прототипа больше нет
	q := s.db.Model(&models.AssetCP{}).Where("related_asset_id = ?", live.ID)
	if excludePlanID != 0 {
		q = q.Where("change_plan_id <> ?", excludePlanID)
	}
	if err := q.Updates(map[string]interface{}{
		"related_asset_id":                nil,
		"related_decommissioned_asset_id": da.ID,
	}).Error; err != nil {
		return err
	}

	if err := s.inv.DeleteAsset(live.ID); err != nil {
		return err
	}
	s.rec.Record(actor, audit.ActionDecommission, audit.AssetSubject(live))
	return nil
}

// buildAssetSnapshot собирает архивную запись по живому ассету: скаляры,
// JSON-снимки модели и стойки, проводка и одношаговый граф соседей.
func buildAssetSnapshot(tx *gorm.DB, live *models.Asset, actor string) (*models.DecommissionedAsset, error) {
	da := &models.DecommissionedAsset{
		LiveID:              live.ID,
		DecommissioningUser: actor,
		TimeDecommissioned:  time.Now(),
		AssetNumber:         live.AssetNumber,
		Hostname:            cloneStr(live.Hostname),
		RackPosition:        live.RackPosition,
		Owner:               cloneStr(live.Owner),
		Comment:             live.Comment,
	}

	var model models.ITModel
	if err := tx.First(&model, live.ModelID).Error; err == nil {
		da.ModelSnapshot = mustJSON(map[string]interface{}{
			"vendor":          model.Vendor,
			"model_number":    model.ModelNumber,
			"height":          model.Height,
			"network_ports":   model.PortNames(),
			"num_power_ports": model.NumPowerPorts,
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var rack models.Rack
	if err := tx.First(&rack, live.RackID).Error; err == nil {
		snap := map[string]interface{}{
			"row_letter": rack.RowLetter,
			"rack_num":   rack.RackNum,
			"height":     rack.Height,
		}
		var dc models.Datacenter
		if err := tx.First(&dc, rack.DatacenterID).Error; err == nil {
			snap["datacenter"] = dc.Abbreviation
		}
		da.RackSnapshot = mustJSON(snap)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	power, err := snapshotPower(tx, live.ID)
	if err != nil {
		return nil, err
	}
	da.PowerConnections = power

	network, graph, err := snapshotNetwork(tx, live)
	if err != nil {
		return nil, err
	}
	da.NetworkConnections = network
	da.NetworkGraph = graph

	return da, nil
}

func snapshotPower(tx *gorm.DB, assetID uint) (datatypes.JSON, error) {
	var ports []models.PowerPort
	if err := tx.Where("asset_id = ?", assetID).Order("port_name").Find(&ports).Error; err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	for _, p := range ports {
		if p.PowerConnectionID == nil {
			continue
		}
		var pdu models.PDUPort
		if err := tx.First(&pdu, *p.PowerConnectionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		out[p.PortName] = map[string]interface{}{
			"left_right":  pdu.LeftRight,
			"port_number": pdu.PortNumber,
		}
	}
	return mustJSON(out), nil
}

// snapshotNetwork: соединения с подписями соседей плюс одношаговый граф
// (узлы и рёбра вокруг выводимого ассета).
func snapshotNetwork(tx *gorm.DB, live *models.Asset) (datatypes.JSON, datatypes.JSON, error) {
	var ports []models.NetworkPort
	if err := tx.Where("asset_id = ?", live.ID).Order("port_name").Find(&ports).Error; err != nil {
		return nil, nil, err
	}

	selfLabel := labelFor(live)
	conns := []map[string]interface{}{}
	nodes := map[string]bool{selfLabel: true}
	edges := [][2]string{}

	for _, p := range ports {
		if p.ConnectedPortID == nil {
			continue
		}
		var peerPort models.NetworkPort
		if err := tx.First(&peerPort, *p.ConnectedPortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, nil, err
		}
		var peer models.Asset
		if err := tx.First(&peer, peerPort.AssetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, nil, err
		}
		peerLabel := labelFor(&peer)
		conns = append(conns, map[string]interface{}{
			"source_port":          p.PortName,
			"destination_hostname": peerLabel,
			"destination_port":     peerPort.PortName,
		})
		nodes[peerLabel] = true
		edges = append(edges, [2]string{selfLabel, peerLabel})
	}

	nodeList := make([]string, 0, len(nodes))
	for n := range nodes {
		nodeList = append(nodeList, n)
	}
	graph := map[string]interface{}{"nodes": nodeList, "edges": edges}
	return mustJSON(conns), mustJSON(graph), nil
}

func labelFor(a *models.Asset) string {
	if a.Hostname != nil && *a.Hostname != "" {
		return *a.Hostname
	}
	return "#" + strconv.Itoa(a.AssetNumber)
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

package cabling

import (
	"errors"
	"fmt"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// ShadowResolver — мост к change-plan-движку. Определён здесь (у потребителя),
// реализуется пакетом changeplan; так cabling не зависит от него.
type ShadowResolver interface {
	// ResolveAssetByHostname находит ассет по hostname в скоупе плана,
	// при необходимости лениво создавая теневую копию живого ассета.
	// ok=false — ассета нет ни в live, ни среди теней плана.
	ResolveAssetByHostname(tx *gorm.DB, hostname string, plan *models.ChangePlan) (assetID uint, ok bool, err error)
	// StageDisconnectPeer затягивает в план живого соседа рвущегося
	// соединения, чтобы разрыв остался в скоупе плана.
	StageDisconnectPeer(tx *gorm.DB, assetCPID uint, portName string, plan *models.ChangePlan) error
}

// Manager — операции над проводкой: симметричные сетевые линки и
// подключения питания к PDU, в live- и plan-скоупе.
type Manager struct {
	db       *gorm.DB
	Resolver ShadowResolver // опционально; нужен только для plan-скоупа
}

func NewManager(db *gorm.DB) *Manager { return &Manager{db: db} }

// WithTx — копия менеджера, привязанная к транзакции.
func (m *Manager) WithTx(tx *gorm.DB) *Manager { return &Manager{db: tx, Resolver: m.Resolver} }

// ── Симметричные сетевые соединения (live) ──────────────────

// Connect связывает два живых порта. Если destination уже занят другим
// портом — ошибка, состояние не меняется. Существующее соединение source
// рвётся. Обе записи уходят в одной транзакции: симметрия A<->B не должна
// пережить частичную запись.
func (m *Manager) Connect(src, dst *models.NetworkPort) error {
	if dst.ConnectedPortID != nil && *dst.ConnectedPortID != src.ID {
		return faults.New(faults.NetworkConnection,
			"Destination port '%s' is already connected to port '%s'. ",
			m.livePortLabel(dst), m.livePortLabelByID(*dst.ConnectedPortID))
	}
	return m.db.Transaction(func(tx *gorm.DB) error {
		if src.ConnectedPortID != nil {
			if err := m.WithTx(tx).Disconnect(src); err != nil {
				return err
			}
		}
		if src.MACAddress != nil {
			normalized, err := NormalizeMAC(*src.MACAddress)
			if err != nil {
				return err
			}
			src.MACAddress = &normalized
		}
		src.ConnectedPortID = &dst.ID
		dst.ConnectedPortID = &src.ID
		if err := tx.Save(src).Error; err != nil {
			return err
		}
		return tx.Save(dst).Error
	})
}

// Disconnect рвёт соединение порта с обеих сторон. No-op, если порт свободен.
func (m *Manager) Disconnect(p *models.NetworkPort) error {
	if p.ConnectedPortID == nil {
		return nil
	}
	peerID := *p.ConnectedPortID
	return m.db.Transaction(func(tx *gorm.DB) error {
		p.ConnectedPortID = nil
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		return tx.Model(&models.NetworkPort{}).
			Where("id = ?", peerID).
			Update("connected_port_id", nil).Error
	})
}

// ── То же в скоупе change plan ──────────────────────────────

func (m *Manager) ConnectCP(src, dst *models.NetworkPortCP) error {
	if dst.ConnectedPortID != nil && *dst.ConnectedPortID != src.ID {
		return faults.New(faults.NetworkConnection,
			"Destination port '%s' is already connected to port '%s'. ",
			m.cpPortLabel(dst), m.cpPortLabelByID(*dst.ConnectedPortID))
	}
	return m.db.Transaction(func(tx *gorm.DB) error {
		if src.ConnectedPortID != nil {
			if err := m.WithTx(tx).DisconnectCP(src); err != nil {
				return err
			}
		}
		if src.MACAddress != nil {
			normalized, err := NormalizeMAC(*src.MACAddress)
			if err != nil {
				return err
			}
			src.MACAddress = &normalized
		}
		src.ConnectedPortID = &dst.ID
		dst.ConnectedPortID = &src.ID
		src.Disconnect = false
		dst.Disconnect = false
		if err := tx.Save(src).Error; err != nil {
			return err
		}
		return tx.Save(dst).Error
	})
}

// DisconnectCP рвёт staged-соединение и помечает порт: при execute живое
// соединение этого порта должно быть разорвано. Пустой connected_port без
// флага означает "без изменений".
func (m *Manager) DisconnectCP(p *models.NetworkPortCP) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		p.Disconnect = true
		if p.ConnectedPortID == nil {
			return tx.Save(p).Error
		}
		peerID := *p.ConnectedPortID
		p.ConnectedPortID = nil
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		return tx.Model(&models.NetworkPortCP{}).
			Where("id = ?", peerID).
			Update("connected_port_id", nil).Error
	})
}

// ── Лукапы портов: nil вместо ошибки, чтобы батчи могли копить текст ──

// GetNetworkPort возвращает порт по (asset, port_name) в нужном скоупе;
// (nil, nil, nil) — порта нет.
func (m *Manager) GetNetworkPort(assetID uint, portName string, plan *models.ChangePlan) (*models.NetworkPort, *models.NetworkPortCP, error) {
	if plan != nil {
		var p models.NetworkPortCP
		err := m.db.Where("asset_id = ? AND port_name = ? AND change_plan_id = ?",
			assetID, portName, plan.ID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, &p, nil
	}
	var p models.NetworkPort
	err := m.db.Where("asset_id = ? AND port_name = ?", assetID, portName).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &p, nil, nil
}

func (m *Manager) GetPowerPort(assetID uint, portName string, plan *models.ChangePlan) (*models.PowerPort, *models.PowerPortCP, error) {
	if plan != nil {
		var p models.PowerPortCP
		err := m.db.Where("asset_id = ? AND port_name = ? AND change_plan_id = ?",
			assetID, portName, plan.ID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, &p, nil
	}
	var p models.PowerPort
	err := m.db.Where("asset_id = ? AND port_name = ?", assetID, portName).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &p, nil, nil
}

// ── PDU (copy-on-first-use в plan-скоупе) ───────────────────

// ResolvePDUPort находит порт PDU стойки. В live-скоупе: существующий
// PDUPort либо (0, false). В plan-скоупе: PDUPortCP плана, а если его ещё
// нет — клон живого порта, создаваемый при первом обращении.
// Возвращает id записи нужного скоупа.
func (m *Manager) ResolvePDUPort(tx *gorm.DB, rackID uint, leftRight string, portNumber int, plan *models.ChangePlan) (uint, bool, error) {
	var live models.PDUPort
	err := tx.Where("rack_id = ? AND left_right = ? AND port_number = ?",
		rackID, leftRight, portNumber).First(&live).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if plan == nil {
		return live.ID, true, nil
	}

	var cp models.PDUPortCP
	err = tx.Where("rack_id = ? AND left_right = ? AND port_number = ? AND change_plan_id = ?",
		rackID, leftRight, portNumber, plan.ID).First(&cp).Error
	if err == nil {
		return cp.ID, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, err
	}
	cp = models.PDUPortCP{
		RackID:       live.RackID,
		LeftRight:    live.LeftRight,
		PortNumber:   live.PortNumber,
		ChangePlanID: plan.ID,
	}
	if err := tx.Create(&cp).Error; err != nil {
		return 0, false, err
	}
	return cp.ID, true, nil
}

// ── helpers для сообщений об ошибках ────────────────────────

func (m *Manager) livePortLabel(p *models.NetworkPort) string {
	var a models.Asset
	if err := m.db.First(&a, p.AssetID).Error; err == nil && a.Hostname != nil {
		return *a.Hostname + ":" + p.PortName
	}
	return fmt.Sprintf("asset %d:%s", p.AssetID, p.PortName)
}

func (m *Manager) livePortLabelByID(id uint) string {
	var p models.NetworkPort
	if err := m.db.First(&p, id).Error; err != nil {
		return fmt.Sprintf("port %d", id)
	}
	return m.livePortLabel(&p)
}

func (m *Manager) cpPortLabel(p *models.NetworkPortCP) string {
	var a models.AssetCP
	if err := m.db.First(&a, p.AssetID).Error; err == nil && a.Hostname != nil {
		return *a.Hostname + ":" + p.PortName
	}
	return fmt.Sprintf("asset %d:%s", p.AssetID, p.PortName)
}

func (m *Manager) cpPortLabelByID(id uint) string {
	var p models.NetworkPortCP
	if err := m.db.First(&p, id).Error; err != nil {
		return fmt.Sprintf("port %d", id)
	}
	return m.cpPortLabel(&p)
}

package cabling

import (
	"errors"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// NetworkConnection — одно staged-изменение проводки: пустой destination
// означает разрыв соединения source-порта.
type NetworkConnection struct {
	SourcePort          string  `json:"source_port"`
	DestinationHostname *string `json:"destination_hostname"`
	DestinationPort     *string `json:"destination_port"`
}

// PowerConnection — назначение силового порта на порт PDU стойки.
type PowerConnection struct {
	LeftRight  string `json:"left_right"`
	PortNumber int    `json:"port_number"`
}

func (c *NetworkConnection) hasDestination() bool {
	return c.DestinationHostname != nil && c.DestinationPort != nil
}

// validate — оба destination-поля либо заданы, либо пусты; частичная
// спецификация невалидна.
func (c *NetworkConnection) validate() string {
	if c.SourcePort == "" {
		return "Could not create connection because source port was not provided. "
	}
	if c.DestinationHostname == nil && c.DestinationPort != nil {
		return "Could not create connection on port '" + c.SourcePort +
			"' because no destination hostname was provided. "
	}
	if c.DestinationHostname != nil && c.DestinationPort == nil {
		return "Could not create connection on port '" + c.SourcePort +
			"' because no destination port was provided. "
	}
	return ""
}

// ApplyNetworkConnections применяет пакет изменений проводки к ассету
// (в plan-скоупе assetID — это id AssetCP). Ошибки не прерывают обработку:
// копятся и возвращаются одной NetworkConnection-ошибкой, чтобы клиент
// увидел все невалидные порты разом.
func (m *Manager) ApplyNetworkConnections(assetID uint, conns []NetworkConnection, plan *models.ChangePlan) error {
	agg := faults.NewAggregate(faults.NetworkConnection)
	for _, conn := range conns {
		if msg := conn.validate(); msg != "" {
			agg.Addf("%s", msg)
			continue
		}
		livePort, cpPort, err := m.GetNetworkPort(assetID, conn.SourcePort, plan)
		if err != nil {
			return err
		}
		if livePort == nil && cpPort == nil {
			agg.Addf("Port name '%s' is not valid. ", conn.SourcePort)
			continue
		}

		if !conn.hasDestination() {
			// разрыв соединения
			if plan != nil {
				if m.Resolver != nil {
					if err := m.Resolver.StageDisconnectPeer(m.db, assetID, conn.SourcePort, plan); err != nil {
						return err
					}
				}
				if err := m.DisconnectCP(cpPort); err != nil {
					agg.Addf("Could not save connection for port '%s'. %v ", conn.SourcePort, err)
				}
			} else {
				if err := m.Disconnect(livePort); err != nil {
					agg.Addf("Could not save connection for port '%s'. %v ", conn.SourcePort, err)
				}
			}
			continue
		}

		destAssetID, ok, err := m.resolveAssetByHostname(*conn.DestinationHostname, plan)
		if err != nil {
			return err
		}
		if !ok {
			agg.Addf("Asset with hostname '%s' does not exist. ", *conn.DestinationHostname)
			continue
		}
		destLive, destCP, err := m.GetNetworkPort(destAssetID, *conn.DestinationPort, plan)
		if err != nil {
			return err
		}
		if destLive == nil && destCP == nil {
			agg.Addf("Destination port '%s:%s' does not exist. ",
				*conn.DestinationHostname, *conn.DestinationPort)
			continue
		}

		if plan != nil {
			err = m.ConnectCP(cpPort, destCP)
		} else {
			err = m.Connect(livePort, destLive)
		}
		if err != nil {
			agg.Addf("Could not save connection for port '%s'. %v ", conn.SourcePort, err)
		}
	}
	return agg.Err()
}

func (m *Manager) resolveAssetByHostname(hostname string, plan *models.ChangePlan) (uint, bool, error) {
	if plan != nil {
		if m.Resolver == nil {
			return 0, false, faults.New(faults.Internal, "change plan scope requires a shadow resolver")
		}
		return m.Resolver.ResolveAssetByHostname(m.db, hostname, plan)
	}
	var a models.Asset
	err := m.db.Where("hostname = ?", hostname).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return a.ID, true, nil
}

// ApplyPowerConnections применяет назначения питания: имя порта -> порт PDU
// (nil — отключить). Ошибки аггрегируются так же, как в сетевом батче.
func (m *Manager) ApplyPowerConnections(assetID uint, conns map[string]*PowerConnection, plan *models.ChangePlan) error {
	agg := faults.NewAggregate(faults.PowerConnection)
	for portName, conn := range conns {
		livePort, cpPort, err := m.GetPowerPort(assetID, portName, plan)
		if err != nil {
			return err
		}
		if livePort == nil && cpPort == nil {
			agg.Addf("Power port '%s' does not exist on this asset. ", portName)
			continue
		}

		if conn == nil {
			// отключение питания
			if plan != nil {
				cpPort.PowerConnectionID = nil
				err = m.db.Save(cpPort).Error
			} else {
				livePort.PowerConnectionID = nil
				err = m.db.Save(livePort).Error
			}
			if err != nil {
				return err
			}
			continue
		}

		if conn.LeftRight != models.PDULeft && conn.LeftRight != models.PDURight {
			agg.Addf("PDU side '%s' is not valid (expected L or R). ", conn.LeftRight)
			continue
		}
		if conn.PortNumber < 1 || conn.PortNumber > 24 {
			agg.Addf("PDU port number %d is out of range [1, 24]. ", conn.PortNumber)
			continue
		}

		rackID, ok, err := m.assetRack(assetID, plan)
		if err != nil {
			return err
		}
		if !ok {
			agg.Addf("Asset is not racked, cannot connect power port '%s'. ", portName)
			continue
		}

		pduID, ok, err := m.ResolvePDUPort(m.db, rackID, conn.LeftRight, conn.PortNumber, plan)
		if err != nil {
			return err
		}
		if !ok {
			agg.Addf("PDU port '%s%d' does not exist. ", conn.LeftRight, conn.PortNumber)
			continue
		}

		if plan != nil {
			cpPort.PowerConnectionID = &pduID
			err = m.db.Save(cpPort).Error
		} else {
			livePort.PowerConnectionID = &pduID
			err = m.db.Save(livePort).Error
		}
		if err != nil {
			agg.Addf("Power connection on port '%s' was not valid. ", portName)
		}
	}
	return agg.Err()
}

func (m *Manager) assetRack(assetID uint, plan *models.ChangePlan) (uint, bool, error) {
	if plan != nil {
		var cp models.AssetCP
		if err := m.db.First(&cp, assetID).Error; err != nil {
			return 0, false, err
		}
		if cp.RackID == nil {
			return 0, false, nil
		}
		return *cp.RackID, true, nil
	}
	var a models.Asset
	if err := m.db.First(&a, assetID).Error; err != nil {
		return 0, false, err
	}
	return a.RackID, true, nil
}

// ApplyMACAddresses проставляет MAC-адреса по именам портов.
func (m *Manager) ApplyMACAddresses(assetID uint, macByPort map[string]string, plan *models.ChangePlan) error {
	agg := faults.NewAggregate(faults.MacAddress)
	for portName, mac := range macByPort {
		livePort, cpPort, err := m.GetNetworkPort(assetID, portName, plan)
		if err != nil {
			return err
		}
		if livePort == nil && cpPort == nil {
			agg.Addf("Port name '%s' is not valid. ", portName)
			continue
		}
		normalized, err := NormalizeMAC(mac)
		if err != nil {
			agg.Addf("Mac address '%s' is not valid. ", mac)
			continue
		}
		if plan != nil {
			cpPort.MACAddress = &normalized
			err = m.db.Save(cpPort).Error
		} else {
			livePort.MACAddress = &normalized
			err = m.db.Save(livePort).Error
		}
		if err != nil {
			return err
		}
	}
	return agg.Err()
}

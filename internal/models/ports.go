package models

import "gorm.io/gorm"

// NetworkPort — сетевой порт живого ассета. connected_port — симметричная
// связь один-к-одному: если A.connected=B, то B.connected=A, всегда парой.
type NetworkPort struct {
	gorm.Model
	AssetID         uint    `gorm:"uniqueIndex:ux_np_asset_port,priority:1"`
	PortName        string  `gorm:"type:varchar(150);uniqueIndex:ux_np_asset_port,priority:2"`
	MACAddress      *string `gorm:"type:varchar(17)"`
	ConnectedPortID *uint   `gorm:"index"`
}

// NetworkPortCP — то же самое в скоупе change plan. Соединения живого
// ассета в тень не копируются, поэтому пустой connected_port означает
// "без изменений"; staged-разрыв помечается отдельным флагом.
type NetworkPortCP struct {
	gorm.Model
	AssetID         uint    `gorm:"uniqueIndex:ux_npcp_asset_port,priority:1"` // -> AssetCP
	PortName        string  `gorm:"type:varchar(150);uniqueIndex:ux_npcp_asset_port,priority:2"`
	ChangePlanID    uint    `gorm:"index;uniqueIndex:ux_npcp_asset_port,priority:3"`
	MACAddress      *string `gorm:"type:varchar(17)"`
	ConnectedPortID *uint   `gorm:"index"` // -> NetworkPortCP
	Disconnect      bool    `gorm:"default:false"`
}

// PowerPort — силовой порт ассета, опционально подключён к порту PDU.
type PowerPort struct {
	gorm.Model
	AssetID           uint   `gorm:"uniqueIndex:ux_pp_asset_port,priority:1"`
	PortName          string `gorm:"type:varchar(150);uniqueIndex:ux_pp_asset_port,priority:2"`
	PowerConnectionID *uint  `gorm:"index"` // -> PDUPort
}

type PowerPortCP struct {
	gorm.Model
	AssetID           uint   `gorm:"uniqueIndex:ux_ppcp_asset_port,priority:1"` // -> AssetCP
	PortName          string `gorm:"type:varchar(150);uniqueIndex:ux_ppcp_asset_port,priority:2"`
	ChangePlanID      uint   `gorm:"index;uniqueIndex:ux_ppcp_asset_port,priority:3"`
	PowerConnectionID *uint  `gorm:"index"` // -> PDUPortCP
}

// Стороны PDU в стойке.
const (
	PDULeft  = "L"
	PDURight = "R"
)

// PDUPort — порт PDU стойки, идентифицируется (rack, left_right, port_number 1–24).
type PDUPort struct {
	gorm.Model
	RackID     uint   `gorm:"uniqueIndex:ux_pdu,priority:1"`
	LeftRight  string `gorm:"type:varchar(1);uniqueIndex:ux_pdu,priority:2"`
	PortNumber int    `gorm:"uniqueIndex:ux_pdu,priority:3"`
}

// PDUPortCP — копия порта PDU в скоупе change plan (copy-on-first-use).
type PDUPortCP struct {
	gorm.Model
	RackID       uint   `gorm:"uniqueIndex:ux_pducp,priority:1"`
	LeftRight    string `gorm:"type:varchar(1);uniqueIndex:ux_pducp,priority:2"`
	PortNumber   int    `gorm:"uniqueIndex:ux_pducp,priority:3"`
	ChangePlanID uint   `gorm:"index;uniqueIndex:ux_pducp,priority:4"`
}

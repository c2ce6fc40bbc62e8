package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Datacenter struct {
	gorm.Model
	Abbreviation string `gorm:"type:varchar(6);uniqueIndex"`
	Name         string `gorm:"type:varchar(150);uniqueIndex"`
}

// Rack — стойка в датацентре, адресуется буквой ряда и номером.
type Rack struct {
	gorm.Model
	DatacenterID uint   `gorm:"uniqueIndex:ux_rack,priority:1"`
	RowLetter    string `gorm:"type:varchar(2);uniqueIndex:ux_rack,priority:2"`
	RackNum      int    `gorm:"uniqueIndex:ux_rack,priority:3"`
	Height       int    `gorm:"default:42"` // юнитов
}

func (r *Rack) Label() string { return fmt.Sprintf("%s%d", r.RowLetter, r.RackNum) }

// ITModel — модель оборудования: определяет высоту и раскладку портов,
// которые провиженятся при первом сохранении ассета.
type ITModel struct {
	gorm.Model
	Vendor        string         `gorm:"type:varchar(150);uniqueIndex:ux_model,priority:1"`
	ModelNumber   string         `gorm:"type:varchar(150);uniqueIndex:ux_model,priority:2"`
	Height        int            `gorm:"default:1"`
	NetworkPorts  datatypes.JSON // JSON-массив имён портов: ["eth0","eth1",...]
	NumPowerPorts int            `gorm:"default:0"`
}

// PortNames декодирует список сетевых портов модели.
func (m *ITModel) PortNames() []string {
	if len(m.NetworkPorts) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(m.NetworkPorts, &names); err != nil {
		return nil
	}
	return names
}

func (m *ITModel) Label() string { return m.Vendor + " " + m.ModelNumber }

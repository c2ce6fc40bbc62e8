package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChangePlan — именованный пакет staged-изменений одного пользователя.
// После execute план становится терминальным (execution_time != null):
// любые модификации его и его теней отклоняются.
type ChangePlan struct {
	gorm.Model
	Name          string `gorm:"type:varchar(150)"`
	OwnerID       uint   `gorm:"index"`
	ExecutionTime *time.Time
}

func (p *ChangePlan) Executed() bool { return p.ExecutionTime != nil }

// DecommissionedAsset — архивный снимок живого ассета на момент вывода
// из эксплуатации, включая граф портов и питания.
type DecommissionedAsset struct {
	gorm.Model
	LiveID              uint `gorm:"index"`
	DecommissioningUser string
	TimeDecommissioned  time.Time
	AssetNumber         int
	Hostname            *string `gorm:"type:varchar(150)"`
	RackPosition        int
	Owner               *string `gorm:"type:varchar(150)"`
	Comment             string  `gorm:"type:text"`

	// снимки связанных сущностей и проводки на момент decommission
	ModelSnapshot      datatypes.JSON
	RackSnapshot       datatypes.JSON
	PowerConnections   datatypes.JSON
	NetworkConnections datatypes.JSON
	NetworkGraph       datatypes.JSON
}

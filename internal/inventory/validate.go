package inventory

import (
	"fmt"
	"regexp"

	"rackyard/internal/faults"
	"rackyard/internal/models"

	"gorm.io/gorm"
)

// RFC 1034: буква, затем буквы/цифры/дефисы, не длиннее 63, не кончается дефисом.
var hostnamePattern = regexp.MustCompile(`^[A-Za-z]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

const (
	AssetNumberMin = 100000
	AssetNumberMax = 999999
)

func ValidateHostname(hostname *string) error {
	if hostname == nil || *hostname == "" {
		return nil
	}
	if !hostnamePattern.MatchString(*hostname) {
		return faults.New(faults.Validation,
			"'%s' is not a valid hostname as it is not compliant with RFC 1034.", *hostname)
	}
	return nil
}

func ValidateAssetNumber(n int) error {
	if n < AssetNumberMin || n > AssetNumberMax {
		return faults.New(faults.Validation,
			"asset number %d is out of range [%d, %d].", n, AssetNumberMin, AssetNumberMax)
	}
	return nil
}

// ValidateOwner — owner должен быть существующим пользователем.
func ValidateOwner(tx *gorm.DB, owner *string) error {
	if owner == nil || *owner == "" {
		return nil
	}
	var n int64
	if err := tx.Model(&models.User{}).Where("username = ?", *owner).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return faults.New(faults.Validation,
			"There is no existing user with the username '%s'.", *owner)
	}
	return nil
}

// ValidateLocation проверяет, что footprint [position, position+height)
// помещается в стойку и не пересекается ни с одним живым ассетом в ней.
// excludeAssetID — сам ассет при модификации (его старое место не считается).
func ValidateLocation(tx *gorm.DB, rackID uint, position, height int, excludeAssetID *uint) error {
	var rack models.Rack
	if err := tx.First(&rack, rackID).Error; err != nil {
		return faults.Wrap(faults.NotFound, err, "no existing rack with id=%d", rackID)
	}
	if position < 1 || position+height-1 > rack.Height {
		return faults.New(faults.Location, "Cannot place asset outside of rack. ")
	}

	var inRack []models.Asset
	if err := tx.Where("rack_id = ?", rackID).Find(&inRack).Error; err != nil {
		return err
	}
	for _, other := range inRack {
		if excludeAssetID != nil && other.ID == *excludeAssetID {
			continue
		}
		var m models.ITModel
		if err := tx.First(&m, other.ModelID).Error; err != nil {
			continue
		}
		if rangesOverlap(position, height, other.RackPosition, m.Height) {
			name := fmt.Sprintf("%d", other.AssetNumber)
			if other.Hostname != nil {
				name = *other.Hostname
			}
			return faults.New(faults.Location,
				"Asset location conflicts with another asset: '%s'. ", name)
		}
	}
	return nil
}

func rangesOverlap(pos1, h1, pos2, h2 int) bool {
	return pos1 < pos2+h2 && pos2 < pos1+h1
}

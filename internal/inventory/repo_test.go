package inventory

import (
	"strings"
	"testing"

	"rackyard/internal/models"
	"rackyard/internal/testdb"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	repo  *Repo
	rack  *models.Rack
	model *models.ITModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testdb.Open(t)
	repo := NewRepo(d)

	dc := &models.Datacenter{Abbreviation: "DC1", Name: "Main"}
	if err := repo.CreateDatacenter(dc); err != nil {
		t.Fatalf("create datacenter: %v", err)
	}
	rack := &models.Rack{DatacenterID: dc.ID, RowLetter: "A", RackNum: 1, Height: 42}
	if err := repo.CreateRack(rack); err != nil {
		t.Fatalf("create rack: %v", err)
	}
	model := &models.ITModel{
		Vendor:        "Dell",
		ModelNumber:   "R740",
		Height:        2,
		NetworkPorts:  datatypes.JSON(`["eth0","eth1"]`),
		NumPowerPorts: 2,
	}
	if err := repo.CreateModel(model); err != nil {
		t.Fatalf("create model: %v", err)
	}
	return &fixture{db: d, repo: repo, rack: rack, model: model}
}

func (f *fixture) newAsset(t *testing.T, hostname string, pos int) *models.Asset {
	t.Helper()
	h := hostname
	a := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: pos}
	if err := f.repo.SaveAsset(a); err != nil {
		t.Fatalf("save asset %s: %v", hostname, err)
	}
	return a
}

func TestSaveAssetProvisionsPorts(t *testing.T) {
	f := newFixture(t)
	a := f.newAsset(t, "web1", 3)

	var nports []models.NetworkPort
	if err := f.db.Where("asset_id = ?", a.ID).Order("port_name").Find(&nports).Error; err != nil {
		t.Fatalf("load ports: %v", err)
	}
	if len(nports) != 2 || nports[0].PortName != "eth0" || nports[1].PortName != "eth1" {
		t.Fatalf("expected eth0/eth1, got %+v", nports)
	}
	var pports []models.PowerPort
	if err := f.db.Where("asset_id = ?", a.ID).Order("port_name").Find(&pports).Error; err != nil {
		t.Fatalf("load power ports: %v", err)
	}
	if len(pports) != 2 || pports[0].PortName != "1" || pports[1].PortName != "2" {
		t.Fatalf("expected power ports 1/2, got %+v", pports)
	}

	// повторное сохранение не плодит порты
	if err := f.repo.SaveAsset(a); err != nil {
		t.Fatalf("resave: %v", err)
	}
	var n int64
	f.db.Model(&models.NetworkPort{}).Where("asset_id = ?", a.ID).Count(&n)
	if n != 2 {
		t.Fatalf("ports duplicated on resave: %d", n)
	}
}

func TestAssetNumberAssignment(t *testing.T) {
	f := newFixture(t)
	a := f.newAsset(t, "web1", 1)
	b := f.newAsset(t, "web2", 5)

	if a.AssetNumber < AssetNumberMin || a.AssetNumber > AssetNumberMax {
		t.Fatalf("auto number out of range: %d", a.AssetNumber)
	}
	if b.AssetNumber != a.AssetNumber+1 {
		t.Fatalf("expected sequential numbers, got %d then %d", a.AssetNumber, b.AssetNumber)
	}

	// явный номер
	h := "web3"
	c := &models.Asset{Hostname: &h, AssetNumber: 200100, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 9}
	if err := f.repo.SaveAsset(c); err != nil {
		t.Fatalf("explicit number: %v", err)
	}
	// дубликат номера
	h2 := "web4"
	d := &models.Asset{Hostname: &h2, AssetNumber: 200100, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 12}
	if err := f.repo.SaveAsset(d); err == nil {
		t.Fatal("duplicate asset number accepted")
	}
}

func TestAssetNumberNotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	a := f.newAsset(t, "web1", 1)
	num := a.AssetNumber
	if err := f.repo.DeleteAsset(a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b := f.newAsset(t, "web2", 5)
	if b.AssetNumber == num {
		t.Fatalf("asset number %d reused after delete", num)
	}
}

func TestLocationValidation(t *testing.T) {
	f := newFixture(t)
	f.newAsset(t, "web1", 3) // занимает юниты 3-4

	for _, pos := range []int{2, 3, 4} {
		h := "clash"
		a := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: pos}
		if err := f.repo.SaveAsset(a); err == nil {
			t.Fatalf("overlap at position %d accepted", pos)
		}
	}

	// за пределами стойки
	h := "high"
	a := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 42}
	if err := f.repo.SaveAsset(a); err == nil {
		t.Fatal("asset overflowing rack height accepted")
	}

	// вплотную — допустимо
	f.newAsset(t, "web2", 5)
}

func TestHostnameRules(t *testing.T) {
	f := newFixture(t)
	for _, bad := range []string{"1abc", "-abc", "abc-", "a b", strings.Repeat("a", 64)} {
		h := bad
		a := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 1}
		if err := f.repo.SaveAsset(a); err == nil {
			t.Fatalf("invalid hostname %q accepted", bad)
		}
	}

	f.newAsset(t, "web1", 1)
	h := "web1"
	dup := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 9}
	if err := f.repo.SaveAsset(dup); err == nil {
		t.Fatal("duplicate hostname accepted")
	}
}

func TestOwnerMustExist(t *testing.T) {
	f := newFixture(t)
	owner := "ghost"
	h := "web1"
	a := &models.Asset{Hostname: &h, ModelID: f.model.ID, RackID: f.rack.ID, RackPosition: 1, Owner: &owner}
	if err := f.repo.SaveAsset(a); err == nil {
		t.Fatal("unknown owner accepted")
	}

	if err := f.repo.CreateUser(&models.User{Username: "ghost", Email: "g@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.repo.SaveAsset(a); err != nil {
		t.Fatalf("valid owner rejected: %v", err)
	}
}

func TestCreateRackProvisionsPDUPorts(t *testing.T) {
	f := newFixture(t)
	var n int64
	f.db.Model(&models.PDUPort{}).Where("rack_id = ?", f.rack.ID).Count(&n)
	if n != 48 {
		t.Fatalf("expected 48 PDU ports, got %d", n)
	}
	var left int64
	f.db.Model(&models.PDUPort{}).Where("rack_id = ? AND left_right = ?", f.rack.ID, models.PDULeft).Count(&left)
	if left != 24 {
		t.Fatalf("expected 24 left ports, got %d", left)
	}
}

func TestDeleteRackBlockedWhileOccupied(t *testing.T) {
	f := newFixture(t)
	a := f.newAsset(t, "web1", 1)
	if err := f.repo.DeleteRack(f.rack.ID); err == nil {
		t.Fatal("deleted rack with racked assets")
	}
	if err := f.repo.DeleteAsset(a.ID); err != nil {
		t.Fatalf("delete asset: %v", err)
	}
	if err := f.repo.DeleteRack(f.rack.ID); err != nil {
		t.Fatalf("delete empty rack: %v", err)
	}
}

func TestDeleteAssetRemovesPorts(t *testing.T) {
	f := newFixture(t)
	a := f.newAsset(t, "web1", 1)
	if err := f.repo.DeleteAsset(a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int64
	f.db.Model(&models.NetworkPort{}).Where("asset_id = ?", a.ID).Count(&n)
	if n != 0 {
		t.Fatalf("network ports survived delete: %d", n)
	}
	f.db.Model(&models.PowerPort{}).Where("asset_id = ?", a.ID).Count(&n)
	if n != 0 {
		t.Fatalf("power ports survived delete: %d", n)
	}
}

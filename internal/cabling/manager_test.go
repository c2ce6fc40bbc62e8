package cabling

import (
	"strings"
	"testing"

	"rackyard/internal/inventory"
	"rackyard/internal/models"
	"rackyard/internal/testdb"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	inv  *inventory.Repo
	mgr  *Manager
	rack *models.Rack
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testdb.Open(t)
	inv := inventory.NewRepo(d)

	dc := &models.Datacenter{Abbreviation: "DC1", Name: "Main"}
	if err := inv.CreateDatacenter(dc); err != nil {
		t.Fatalf("create datacenter: %v", err)
	}
	rack := &models.Rack{DatacenterID: dc.ID, RowLetter: "A", RackNum: 1, Height: 42}
	if err := inv.CreateRack(rack); err != nil {
		t.Fatalf("create rack: %v", err)
	}
	model := &models.ITModel{
		Vendor:        "Dell",
		ModelNumber:   "R740",
		Height:        1,
		NetworkPorts:  datatypes.JSON(`["eth0","eth1"]`),
		NumPowerPorts: 2,
	}
	if err := inv.CreateModel(model); err != nil {
		t.Fatalf("create model: %v", err)
	}

	f := &fixture{db: d, inv: inv, mgr: NewManager(d), rack: rack}
	pos := 1
	for _, h := range []string{"web1", "web2", "web3"} {
		host := h
		a := &models.Asset{Hostname: &host, ModelID: model.ID, RackID: rack.ID, RackPosition: pos}
		if err := inv.SaveAsset(a); err != nil {
			t.Fatalf("save asset %s: %v", h, err)
		}
		pos += 2
	}
	return f
}

func (f *fixture) port(t *testing.T, hostname, portName string) *models.NetworkPort {
	t.Helper()
	a, err := f.inv.GetAssetByHostname(hostname)
	if err != nil {
		t.Fatalf("asset %s: %v", hostname, err)
	}
	p, _, err := f.mgr.GetNetworkPort(a.ID, portName, nil)
	if err != nil || p == nil {
		t.Fatalf("port %s:%s: %v", hostname, portName, err)
	}
	return p
}

func TestConnectSymmetry(t *testing.T) {
	f := newFixture(t)
	src := f.port(t, "web1", "eth0")
	dst := f.port(t, "web2", "eth0")

	if err := f.mgr.Connect(src, dst); err != nil {
		t.Fatalf("connect: %v", err)
	}
	src = f.port(t, "web1", "eth0")
	dst = f.port(t, "web2", "eth0")
	if src.ConnectedPortID == nil || *src.ConnectedPortID != dst.ID {
		t.Fatal("source side not connected")
	}
	if dst.ConnectedPortID == nil || *dst.ConnectedPortID != src.ID {
		t.Fatal("destination side not connected")
	}
}

func TestConnectBusyDestinationLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Connect(f.port(t, "web1", "eth0"), f.port(t, "web2", "eth0")); err != nil {
		t.Fatalf("connect: %v", err)
	}

	err := f.mgr.Connect(f.port(t, "web3", "eth0"), f.port(t, "web2", "eth0"))
	if err == nil {
		t.Fatal("busy destination accepted")
	}
	if !strings.Contains(err.Error(), "already connected") {
		t.Fatalf("unexpected error text: %v", err)
	}

	// исходная пара не тронута
	src := f.port(t, "web1", "eth0")
	dst := f.port(t, "web2", "eth0")
	if src.ConnectedPortID == nil || *src.ConnectedPortID != dst.ID {
		t.Fatal("existing connection was broken")
	}
	if p := f.port(t, "web3", "eth0"); p.ConnectedPortID != nil {
		t.Fatal("failed connect left a dangling link")
	}
}

func TestConnectTearsDownSourceLink(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Connect(f.port(t, "web1", "eth0"), f.port(t, "web2", "eth0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// web1:eth0 переключается на web3 — старый сосед должен освободиться
	if err := f.mgr.Connect(f.port(t, "web1", "eth0"), f.port(t, "web3", "eth0")); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if p := f.port(t, "web2", "eth0"); p.ConnectedPortID != nil {
		t.Fatal("old peer still connected")
	}
	src := f.port(t, "web1", "eth0")
	dst := f.port(t, "web3", "eth0")
	if src.ConnectedPortID == nil || *src.ConnectedPortID != dst.ID {
		t.Fatal("new connection missing")
	}
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Connect(f.port(t, "web1", "eth0"), f.port(t, "web2", "eth0")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := f.mgr.Disconnect(f.port(t, "web1", "eth0")); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if p := f.port(t, "web1", "eth0"); p.ConnectedPortID != nil {
		t.Fatal("source still connected")
	}
	if p := f.port(t, "web2", "eth0"); p.ConnectedPortID != nil {
		t.Fatal("peer still connected")
	}
	// повторный разрыв — no-op
	if err := f.mgr.Disconnect(f.port(t, "web1", "eth0")); err != nil {
		t.Fatalf("double disconnect: %v", err)
	}
}

func TestNormalizeMAC(t *testing.T) {
	good := map[string]string{
		"AA:BB:CC:DD:EE:FF": "aa:bb:cc:dd:ee:ff",
		"aa-bb-cc-dd-ee-ff": "aa:bb:cc:dd:ee:ff",
		"aabb.ccdd.eeff":    "aa:bb:cc:dd:ee:ff",
		"aabbccddeeff":      "aa:bb:cc:dd:ee:ff",
	}
	for in, want := range good {
		got, err := NormalizeMAC(in)
		if err != nil {
			t.Errorf("NormalizeMAC(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "aa:bb:cc:dd:ee", "zz:bb:cc:dd:ee:ff", "aabbccddeeffaa"} {
		if _, err := NormalizeMAC(bad); err == nil {
			t.Errorf("NormalizeMAC(%q) accepted", bad)
		}
	}
}

func TestApplyNetworkConnectionsAggregatesErrors(t *testing.T) {
	f := newFixture(t)
	a, _ := f.inv.GetAssetByHostname("web1")

	ghost := "ghost"
	eth0 := "eth0"
	conns := []NetworkConnection{
		{SourcePort: "eth9", DestinationHostname: &ghost, DestinationPort: &eth0},
		{SourcePort: "eth0", DestinationHostname: &ghost, DestinationPort: &eth0},
		{SourcePort: "eth1", DestinationHostname: &ghost},
	}
	err := f.mgr.ApplyNetworkConnections(a.ID, conns, nil)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	for _, want := range []string{
		"Port name 'eth9' is not valid.",
		"Asset with hostname 'ghost' does not exist.",
		"no destination port was provided",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestApplyPowerConnections(t *testing.T) {
	f := newFixture(t)
	a, _ := f.inv.GetAssetByHostname("web1")

	err := f.mgr.ApplyPowerConnections(a.ID, map[string]*PowerConnection{
		"1": {LeftRight: models.PDULeft, PortNumber: 5},
	}, nil)
	if err != nil {
		t.Fatalf("apply power: %v", err)
	}
	p, _, err := f.mgr.GetPowerPort(a.ID, "1", nil)
	if err != nil || p == nil || p.PowerConnectionID == nil {
		t.Fatal("power connection not set")
	}
	var pdu models.PDUPort
	if err := f.db.First(&pdu, *p.PowerConnectionID).Error; err != nil {
		t.Fatalf("pdu: %v", err)
	}
	if pdu.LeftRight != models.PDULeft || pdu.PortNumber != 5 || pdu.RackID != f.rack.ID {
		t.Fatalf("wrong pdu port: %+v", pdu)
	}

	// nil отключает
	if err := f.mgr.ApplyPowerConnections(a.ID, map[string]*PowerConnection{"1": nil}, nil); err != nil {
		t.Fatalf("clear power: %v", err)
	}
	p, _, _ = f.mgr.GetPowerPort(a.ID, "1", nil)
	if p.PowerConnectionID != nil {
		t.Fatal("power connection not cleared")
	}

	// невалидные назначения копятся в одну ошибку
	err = f.mgr.ApplyPowerConnections(a.ID, map[string]*PowerConnection{
		"1": {LeftRight: "X", PortNumber: 5},
		"2": {LeftRight: models.PDURight, PortNumber: 40},
	}, nil)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "not valid (expected L or R)") ||
		!strings.Contains(err.Error(), "out of range [1, 24]") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestApplyMACAddresses(t *testing.T) {
	f := newFixture(t)
	a, _ := f.inv.GetAssetByHostname("web1")

	err := f.mgr.ApplyMACAddresses(a.ID, map[string]string{"eth0": "AA-BB-CC-DD-EE-FF"}, nil)
	if err != nil {
		t.Fatalf("apply mac: %v", err)
	}
	p, _, _ := f.mgr.GetNetworkPort(a.ID, "eth0", nil)
	if p.MACAddress == nil || *p.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("mac not normalized: %v", p.MACAddress)
	}

	err = f.mgr.ApplyMACAddresses(a.ID, map[string]string{
		"eth1": "nope",
		"eth9": "aa:bb:cc:dd:ee:ff",
	}, nil)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "Mac address 'nope' is not valid.") ||
		!strings.Contains(err.Error(), "Port name 'eth9' is not valid.") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

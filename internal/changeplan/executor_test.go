package changeplan

import (
	"testing"

	"rackyard/internal/cabling"
	"rackyard/internal/faults"
	"rackyard/internal/inventory"
	"rackyard/internal/models"
)

func TestExecuteCreatesAsset(t *testing.T) {
	f := newFixture(t)
	plan := f.newPlan(t, "rollout")

	h := "newbox"
	cp := &models.AssetCP{Hostname: &h, ModelID: &f.model.ID, RackID: &f.rack.ID, RackPosition: 5, ChangePlanID: plan.ID}
	if err := f.svc.SaveShadow(cp, plan); err != nil {
		t.Fatalf("shadow: %v", err)
	}

	res, err := f.svc.Execute(plan.ID, f.owner)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Created != 1 || res.Modified != 0 || res.Decommissioned != 0 {
		t.Fatalf("wrong counts: %+v", res)
	}

	live, err := f.inv.GetAssetByHostname("newbox")
	if err != nil {
		t.Fatalf("promoted asset missing: %v", err)
	}
	if live.AssetNumber < inventory.AssetNumberMin || live.AssetNumber > inventory.AssetNumberMax {
		t.Fatalf("auto number out of range: %d", live.AssetNumber)
	}
	if live.RackPosition != 5 {
		t.Fatalf("rack position not promoted: %d", live.RackPosition)
	}
	// порты провиженятся при промоушене
	var n int64
	f.db.Model(&models.NetworkPort{}).Where("asset_id = ?", live.ID).Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 live ports, got %d", n)
	}

	// тени плана сброшены
	f.db.Model(&models.AssetCP{}).Where("change_plan_id = ?", plan.ID).Count(&n)
	if n != 0 {
		t.Fatal("shadows survived execute")
	}
	f.db.Model(&models.NetworkPortCP{}).Where("change_plan_id = ?", plan.ID).Count(&n)
	if n != 0 {
		t.Fatal("shadow ports survived execute")
	}
}

func TestExecuteModifiesAsset(t *testing.T) {
	f := newFixture(t)
	live := f.newLive(t, "web1", 3)
	plan := f.newPlan(t, "move")

	cp, err := f.svc.StageAsset(live.ID, plan)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	cp.RackPosition = 10
	owner := f.owner.Username
	cp.Owner = &owner
	if err := f.svc.SaveShadow(cp, plan); err != nil {
		t.Fatalf("edit shadow: %v", err)
	}

	res, err := f.svc.Execute(plan.ID, f.owner)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Modified != 1 || res.Created != 0 {
		t.Fatalf("wrong counts: %+v", res)
	}

	got, err := f.inv.GetAsset(live.ID)
	if err != nil {
		t.Fatalf("live asset: %v", err)
	}
	if got.RackPosition != 10 {
		t.Fatalf("position not applied: %d", got.RackPosition)
	}
	if got.Owner == nil || *got.Owner != f.owner.Username {
		t.Fatal("owner not applied")
	}
	if got.AssetNumber != live.AssetNumber {
		t.Fatal("asset number changed by modify")
	}
}

func TestExecuteReplaysWiring(t *testing.T) {
	f := newFixture(t)
	plan := f.newPlan(t, "rollout")

	for i, h := range []string{"boxa", "boxb"} {
		host := h
		cp := &models.AssetCP{Hostname: &host, ModelID: &f.model.ID, RackID: &f.rack.ID, RackPosition: 1 + i*4, ChangePlanID: plan.ID}
		if err := f.svc.SaveShadow(cp, plan); err != nil {
			t.Fatalf("shadow %s: %v", h, err)
		}
	}
	cpA, err := f.svc.GetOrCreateShadow("boxa", plan)
	if err != nil {
		t.Fatalf("shadow a: %v", err)
	}

	// staged-проводка: boxa:eth0 <-> boxb:eth1, MAC и питание на boxa
	dst := "boxb"
	dstPort := "eth1"
	if err := f.cab.ApplyNetworkConnections(cpA.ID, []cabling.NetworkConnection{
		{SourcePort: "eth0", DestinationHostname: &dst, DestinationPort: &dstPort},
	}, plan); err != nil {
		t.Fatalf("staged connect: %v", err)
	}
	if err := f.cab.ApplyMACAddresses(cpA.ID, map[string]string{"eth0": "aa:bb:cc:dd:ee:01"}, plan); err != nil {
		t.Fatalf("staged mac: %v", err)
	}
	if err := f.cab.ApplyPowerConnections(cpA.ID, map[string]*cabling.PowerConnection{
		"1": {LeftRight: models.PDURight, PortNumber: 3},
	}, plan); err != nil {
		t.Fatalf("staged power: %v", err)
	}

	if _, err := f.svc.Execute(plan.ID, f.owner); err != nil {
		t.Fatalf("execute: %v", err)
	}

	liveA, err := f.inv.GetAssetByHostname("boxa")
	if err != nil {
		t.Fatalf("boxa: %v", err)
	}
	liveB, err := f.inv.GetAssetByHostname("boxb")
	if err != nil {
		t.Fatalf("boxb: %v", err)
	}

	srcPort, _, err := f.cab.GetNetworkPort(liveA.ID, "eth0", nil)
	if err != nil || srcPort == nil {
		t.Fatalf("boxa:eth0: %v", err)
	}
	peerPort, _, err := f.cab.GetNetworkPort(liveB.ID, "eth1", nil)
	if err != nil || peerPort == nil {
		t.Fatalf("boxb:eth1: %v", err)
	}
	if srcPort.ConnectedPortID == nil || *srcPort.ConnectedPortID != peerPort.ID {
		t.Fatal("staged connection not replayed")
	}
	if peerPort.ConnectedPortID == nil || *peerPort.ConnectedPortID != srcPort.ID {
		t.Fatal("replayed connection not symmetric")
	}
	if srcPort.MACAddress == nil || *srcPort.MACAddress != "aa:bb:cc:dd:ee:01" {
		t.Fatal("staged mac not replayed")
	}

	power, _, err := f.cab.GetPowerPort(liveA.ID, "1", nil)
	if err != nil || power == nil || power.PowerConnectionID == nil {
		t.Fatal("staged power not replayed")
	}
	var pdu models.PDUPort
	if err := f.db.First(&pdu, *power.PowerConnectionID).Error; err != nil {
		t.Fatalf("pdu: %v", err)
	}
	if pdu.LeftRight != models.PDURight || pdu.PortNumber != 3 {
		t.Fatalf("wrong pdu after replay: %+v", pdu)
	}
}

func TestExecuteReplaysStagedDisconnect(t *testing.T) {
	f := newFixture(t)
	liveA := f.newLive(t, "web1", 1)
	liveB := f.newLive(t, "web2", 10)
	if err := f.cab.ApplyNetworkConnections(liveA.ID, []cabling.NetworkConnection{
		{SourcePort: "eth0", DestinationHostname: liveB.Hostname, DestinationPort: strPtr("eth0")},
	}, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	plan := f.newPlan(t, "unplug")
	cp, err := f.svc.StageAsset(liveA.ID, plan)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	// staged-разрыв: запись без destination
	if err := f.cab.ApplyNetworkConnections(cp.ID, []cabling.NetworkConnection{
		{SourcePort: "eth0"},
	}, plan); err != nil {
		t.Fatalf("staged disconnect: %v", err)
	}

	// сосед затянут в план, живая связь пока цела
	var peerShadow int64
	f.db.Model(&models.AssetCP{}).
		Where("change_plan_id = ? AND related_asset_id = ?", plan.ID, liveB.ID).
		Count(&peerShadow)
	if peerShadow != 1 {
		t.Fatal("disconnect peer not staged into the plan")
	}
	p, _, _ := f.cab.GetNetworkPort(liveA.ID, "eth0", nil)
	if p.ConnectedPortID == nil {
		t.Fatal("live connection broken before execute")
	}

	if _, err := f.svc.Execute(plan.ID, f.owner); err != nil {
		t.Fatalf("execute: %v", err)
	}
	p, _, _ = f.cab.GetNetworkPort(liveA.ID, "eth0", nil)
	if p.ConnectedPortID != nil {
		t.Fatal("staged disconnect not replayed")
	}
	p, _, _ = f.cab.GetNetworkPort(liveB.ID, "eth0", nil)
	if p.ConnectedPortID != nil {
		t.Fatal("peer side survived staged disconnect")
	}
}

func TestExecuteDecommission(t *testing.T) {
	f := newFixture(t)
	live := f.newLive(t, "web1", 3)
	peer := f.newLive(t, "web2", 10)
	if err := f.cab.ApplyNetworkConnections(live.ID, []cabling.NetworkConnection{
		{SourcePort: "eth0", DestinationHostname: peer.Hostname, DestinationPort: strPtr("eth0")},
	}, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	plan := f.newPlan(t, "retire")
	cp, err := f.svc.StageAsset(live.ID, plan)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := f.svc.MarkDecommission(cp.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}

	res, err := f.svc.Execute(plan.ID, f.owner)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Decommissioned != 1 {
		t.Fatalf("wrong counts: %+v", res)
	}

	if _, err := f.inv.GetAsset(live.ID); !faults.IsKind(err, faults.NotFound) {
		t.Fatalf("live asset survived decommission: %v", err)
	}

	archive, err := f.svc.ListDecommissioned()
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(archive) != 1 {
		t.Fatalf("expected 1 archived asset, got %d", len(archive))
	}
	da := archive[0]
	if da.Hostname == nil || *da.Hostname != "web1" || da.AssetNumber != live.AssetNumber {
		t.Fatalf("snapshot scalars wrong: %+v", da)
	}
	if da.DecommissioningUser != f.owner.Username {
		t.Fatal("decommissioning user not recorded")
	}
	if len(da.NetworkConnections) == 0 || string(da.NetworkConnections) == "[]" {
		t.Fatal("network connection snapshot empty")
	}

	// у соседа соединение порвано
	p, _, err := f.cab.GetNetworkPort(peer.ID, "eth0", nil)
	if err != nil || p == nil {
		t.Fatalf("peer port: %v", err)
	}
	if p.ConnectedPortID != nil {
		t.Fatal("peer port still connected to removed asset")
	}
}

func TestExecuteBlockedByConflictLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	live := f.newLive(t, "web1", 3)
	plan := f.newPlan(t, "move")
	cp, err := f.svc.StageAsset(live.ID, plan)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	cp.RackPosition = 10
	if err := f.svc.SaveShadow(cp, plan); err != nil {
		t.Fatalf("edit shadow: %v", err)
	}

	// внеплановая живая правка -> resolvable-конфликт
	live.Comment = "touched"
	if err := f.inv.SaveAsset(live); err != nil {
		t.Fatalf("live write: %v", err)
	}

	_, err = f.svc.Execute(plan.ID, f.owner)
	if !faults.IsKind(err, faults.ConflictUnresolved) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// всё на месте: план открыт, тень жива, живой ассет не тронут
	plan, err = f.svc.GetPlan(plan.ID)
	if err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	if plan.Executed() {
		t.Fatal("failed execute left the plan stamped")
	}
	got, err := f.inv.GetAsset(live.ID)
	if err != nil {
		t.Fatalf("live asset: %v", err)
	}
	if got.RackPosition != 3 {
		t.Fatal("live asset modified by failed execute")
	}
	var n int64
	f.db.Model(&models.AssetCP{}).Where("change_plan_id = ?", plan.ID).Count(&n)
	if n != 1 {
		t.Fatal("shadow lost by failed execute")
	}
}

func TestExecuteTwiceRejected(t *testing.T) {
	f := newFixture(t)
	live := f.newLive(t, "web1", 3)
	plan := f.newPlan(t, "move")
	if _, err := f.svc.StageAsset(live.ID, plan); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := f.svc.Execute(plan.ID, f.owner); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := f.svc.Execute(plan.ID, f.owner); !faults.IsKind(err, faults.AlreadyExecuted) {
		t.Fatalf("expected already-executed error, got %v", err)
	}
}

func TestExecutePermissions(t *testing.T) {
	f := newFixture(t)
	live := f.newLive(t, "web1", 3)
	plan := f.newPlan(t, "move")
	if _, err := f.svc.StageAsset(live.ID, plan); err != nil {
		t.Fatalf("stage: %v", err)
	}

	stranger := &models.User{Username: "guest", Email: "g@example.com"}
	if err := f.inv.CreateUser(stranger); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := f.svc.Execute(plan.ID, stranger); !faults.IsKind(err, faults.Permission) {
		t.Fatalf("expected permission error, got %v", err)
	}

	// админ может выполнить чужой план
	if _, err := f.svc.Execute(plan.ID, f.admin); err != nil {
		t.Fatalf("admin execute: %v", err)
	}
}

func TestExecuteAfterRemovingConnectedShadow(t *testing.T) {
	f := newFixture(t)
	plan := f.newPlan(t, "rollout")

	for i, h := range []string{"boxa", "boxb"} {
		host := h
		cp := &models.AssetCP{Hostname: &host, ModelID: &f.model.ID, RackID: &f.rack.ID, RackPosition: 1 + i*4, ChangePlanID: plan.ID}
		if err := f.svc.SaveShadow(cp, plan); err != nil {
			t.Fatalf("shadow %s: %v", h, err)
		}
	}
	cpA, err := f.svc.GetOrCreateShadow("boxa", plan)
	if err != nil {
		t.Fatalf("shadow a: %v", err)
	}
	cpB, err := f.svc.GetOrCreateShadow("boxb", plan)
	if err != nil {
		t.Fatalf("shadow b: %v", err)
	}

	dst := "boxb"
	dstPort := "eth1"
	if err := f.cab.ApplyNetworkConnections(cpA.ID, []cabling.NetworkConnection{
		{SourcePort: "eth0", DestinationHostname: &dst, DestinationPort: &dstPort},
	}, plan); err != nil {
		t.Fatalf("staged connect: %v", err)
	}

	// выброс соединённой тени из плана: связь соседа должна обнулиться,
	// а не остаться ссылкой на удалённый порт
	if err := f.svc.RemoveAssetFromPlan(cpB.ID); err != nil {
		t.Fatalf("remove boxb: %v", err)
	}
	var port models.NetworkPortCP
	if err := f.db.Where("asset_id = ? AND port_name = ?", cpA.ID, "eth0").First(&port).Error; err != nil {
		t.Fatalf("boxa:eth0: %v", err)
	}
	if port.ConnectedPortID != nil {
		t.Fatal("dangling connected_port_id after shadow removal")
	}
	if port.Disconnect {
		t.Fatal("shadow removal must not stage a live disconnect")
	}

	if _, err := f.svc.Execute(plan.ID, f.owner); err != nil {
		t.Fatalf("execute: %v", err)
	}

	liveA, err := f.inv.GetAssetByHostname("boxa")
	if err != nil {
		t.Fatalf("boxa: %v", err)
	}
	livePort, _, err := f.cab.GetNetworkPort(liveA.ID, "eth0", nil)
	if err != nil || livePort == nil {
		t.Fatalf("boxa:eth0 live: %v", err)
	}
	if livePort.ConnectedPortID != nil {
		t.Fatal("boxa:eth0 connected after peer was removed from plan")
	}
	if _, err := f.inv.GetAssetByHostname("boxb"); err == nil {
		t.Fatal("boxb created despite removal from plan")
	}
}

func strPtr(s string) *string { return &s }

package faults

import (
	"strings"
	"testing"
)

func TestAggregateErr(t *testing.T) {
	agg := NewAggregate(NetworkConnection)
	if err := agg.Err(); err != nil {
		t.Fatalf("empty aggregate: %v", err)
	}

	agg.Addf("Port name '%s' is not valid. ", "eth9")
	agg.Addf("Asset with hostname '%s' does not exist. ", "ghost")
	err := agg.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Port name 'eth9' is not valid. Asset with hostname 'ghost' does not exist. "
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if strings.Contains(err.Error(), "  ") {
		t.Errorf("doubled space in %q", err.Error())
	}
	if !IsKind(err, NetworkConnection) {
		t.Errorf("kind = %v, want %v", KindOf(err), NetworkConnection)
	}
}

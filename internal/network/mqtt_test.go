package network

import "testing"

func TestParseLeaseEvent(t *testing.T) {
	ev, ok := parseLeaseEvent("REQUEST 52:CB:02:AA:BB:CC 172.16.0.42 RELEASED")
	if !ok {
		t.Fatal("expected valid lease event")
	}
	if ev.MsgType != "REQUEST" || ev.HWAddr != "52:CB:02:AA:BB:CC" || ev.IP != "172.16.0.42" || ev.State != "RELEASED" {
		t.Fatalf("unexpected parse result: %+v", ev)
	}
}

func TestParseLeaseEventTooFewFields(t *testing.T) {
	if _, ok := parseLeaseEvent("REQUEST 52:CB:02:AA:BB:CC"); ok {
		t.Fatal("expected parse failure for truncated payload")
	}
}

func TestParseLeaseEventExtraWhitespace(t *testing.T) {
	ev, ok := parseLeaseEvent("  RELEASE   52:CB:02:AA:BB:CC   172.16.0.7  EXPIRED  ")
	if !ok {
		t.Fatal("expected valid lease event")
	}
	if ev.MsgType != "RELEASE" || ev.IP != "172.16.0.7" {
		t.Fatalf("unexpected parse result: %+v", ev)
	}
}

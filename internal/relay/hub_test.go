package relay

import "testing"

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub()

	hub.Add(DirectKey("1"), nil, ConnInfo{})
	if hub.Len() != 1 {
		t.Fatalf("expected direct client to be registered")
	}

	hub.Add(GroupKey("G", "1"), nil, ConnInfo{})
	if hub.Len() != 2 {
		t.Fatalf("expected group client to be registered separately")
	}

	hub.Remove(DirectKey("1"), nil)
	hub.Remove(GroupKey("G", "1"), nil)
	if hub.Len() != 0 {
		t.Fatalf("expected hub to be empty")
	}
}

func TestForwardSkipsUnknownKeys(t *testing.T) {
	hub := NewHub()
	if n := hub.Forward([]string{"7", GroupKey("G", "7")}, []byte(`{}`)); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestParseRoute(t *testing.T) {
	rt, ok := parseRoute("1", "2", "")
	if !ok || rt.kind != kindDirect || rt.key != "1" || len(rt.targets) != 1 || rt.targets[0] != "2" {
		t.Fatalf("unexpected direct route %+v", rt)
	}

	rt, ok = parseRoute("1", "", "G,3,1,2")
	if !ok || rt.kind != kindGroup || rt.key != "G-1" {
		t.Fatalf("unexpected group route %+v", rt)
	}
	if len(rt.targets) != 2 || rt.targets[0] != "G-3" || rt.targets[1] != "G-2" {
		t.Fatalf("unexpected group targets %v", rt.targets)
	}

	if _, ok = parseRoute("1", "", ""); ok {
		t.Fatalf("expected missing address to be rejected")
	}
	if _, ok = parseRoute("1", "", ",2"); ok {
		t.Fatalf("expected empty group id to be rejected")
	}
}

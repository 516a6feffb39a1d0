package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("desk", Service, Domain)
	entry.Port = 8787
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.Text = []string{"v=dev", "x"}

	relay, ok := fromEntry(entry)
	if !ok {
		t.Fatalf("fromEntry() ok = false")
	}
	if relay.URL() != "ws://192.168.1.20:8787" || relay.Version != "dev" || relay.Instance != "desk" {
		t.Fatalf("fromEntry() = %+v", relay)
	}

	entry.AddrIPv4 = nil
	entry.HostName = "desk.local."
	relay, _ = fromEntry(entry)
	if relay.Host != "desk.local" {
		t.Fatalf("host = %q", relay.Host)
	}

	entry.HostName = ""
	if _, ok := fromEntry(entry); ok {
		t.Fatalf("entry without address accepted")
	}
}

func TestPortOf(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":8787", 8787, false},
		{"127.0.0.1:9000", 9000, false},
		{"localhost", 0, true},
		{":http", 0, true},
	}
	for _, tt := range tests {
		got, err := PortOf(tt.addr)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("PortOf(%q) = %d, %v", tt.addr, got, err)
		}
	}
}

func TestAnnounceRejectsBadPort(t *testing.T) {
	if _, err := Announce("x", 0, "dev"); err == nil {
		t.Fatalf("Announce() error = nil")
	}
}

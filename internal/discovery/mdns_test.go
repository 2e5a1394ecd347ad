// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests entry conversion and browse cancellation
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "relay", Port: 8930})
	if mgr.config.StreamPath != "/stream" || mgr.config.APIPrefix != "/telehealth" {
		t.Errorf("defaults = %+v", mgr.config)
	}
	if err := mgr.Stop(); err != nil {
		t.Errorf("Stop without Advertise: %v", err)
	}
}

func TestRelayFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "studio." + ServiceType + ".local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8930,
		InfoFields: []string{"path=/live", "api=/bots", "junk"},
	}

	info := relayFromEntry(entry)
	if info == nil {
		t.Fatal("relayFromEntry returned nil")
	}
	if info.Name != "studio" || info.Host != "192.168.1.20" || info.Port != 8930 {
		t.Errorf("info = %+v", info)
	}
	if info.StreamPath != "/live" || info.APIPrefix != "/bots" {
		t.Errorf("txt fields = %+v", info)
	}
	if info.BaseURL() != "http://192.168.1.20:8930" {
		t.Errorf("BaseURL() = %q", info.BaseURL())
	}
}

func TestRelayFromEntryRejects(t *testing.T) {
	tests := map[string]*mdns.ServiceEntry{
		"nil":           nil,
		"no address":    {Name: "x." + ServiceType + ".local.", Port: 1},
		"other service": {Name: "x._http._tcp.local.", AddrV4: net.ParseIP("10.0.0.1")},
	}
	for name, entry := range tests {
		if relayFromEntry(entry) != nil {
			t.Errorf("%s: expected nil", name)
		}
	}
}

func TestTXTRecords(t *testing.T) {
	got := txtRecords(Config{StreamPath: "/stream", APIPrefix: "/telehealth"})
	if len(got) != 2 || got[0] != "path=/stream" || got[1] != "api=/telehealth" {
		t.Errorf("txtRecords() = %v", got)
	}
}

func TestBrowseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr := NewManager(Config{})
	if _, err := mgr.Browse(ctx, 10*time.Millisecond); err == nil {
		t.Error("expected error from cancelled browse")
	}
}

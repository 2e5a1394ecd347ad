// ABOUTME: mDNS discovery for streamtap relays
// ABOUTME: Relays advertise themselves; players browse for the first one
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service relays advertise
const ServiceType = "_streamtap-relay._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	StreamPath  string // websocket path, default /stream
	APIPrefix   string // bot-control prefix, default /telehealth
	Logger      *zap.SugaredLogger
}

// RelayInfo describes a discovered relay
type RelayInfo struct {
	Name       string
	Host       string
	Port       int
	StreamPath string
	APIPrefix  string
}

// BaseURL returns the relay's HTTP base URL
func (r RelayInfo) BaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(r.Host, fmt.Sprint(r.Port)))
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger *zap.SugaredLogger
	server *mdns.Server
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.StreamPath == "" {
		config.StreamPath = "/stream"
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/telehealth"
	}
	return &Manager{config: config, logger: config.Logger}
}

// Advertise announces this relay until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	m.logger.Infow("advertising relay",
		"name", m.config.ServiceName,
		"port", m.config.Port,
		"type", ServiceType)
	return nil
}

// Stop withdraws the advertisement
func (m *Manager) Stop() error {
	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown()
	m.server = nil
	return err
}

// Browse queries until a relay answers or ctx ends. Each query waits up to
// timeout for answers.
func (m *Manager) Browse(ctx context.Context, timeout time.Duration) (*RelayInfo, error) {
	for {
		entries := make(chan *mdns.ServiceEntry, 10)
		found := make(chan *RelayInfo, 1)

		go func() {
			for entry := range entries {
				if info := relayFromEntry(entry); info != nil {
					select {
					case found <- info:
					default:
					}
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = timeout
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.logger.Debugw("mdns query failed", "error", err)
		}
		close(entries)

		select {
		case info := <-found:
			m.logger.Infow("discovered relay", "name", info.Name, "host", info.Host, "port", info.Port)
			return info, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

func txtRecords(cfg Config) []string {
	return []string{
		"path=" + cfg.StreamPath,
		"api=" + cfg.APIPrefix,
	}
}

func relayFromEntry(entry *mdns.ServiceEntry) *RelayInfo {
	if entry == nil || entry.AddrV4 == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	info := &RelayInfo{
		Name:       strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host:       entry.AddrV4.String(),
		Port:       entry.Port,
		StreamPath: "/stream",
		APIPrefix:  "/telehealth",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.StreamPath = value
		case "api":
			info.APIPrefix = value
		}
	}
	return info
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

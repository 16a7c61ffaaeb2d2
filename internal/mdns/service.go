// Package mdns handles both sides of zero-config networking: the
// daemon advertises its control API for companion apps, and browses
// the local network for media servers.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the service type companion apps browse for.
	ServiceType = "_storyline._tcp"

	// MediaServerType is the media-server service type we browse for.
	MediaServerType = "_storyserve._tcp"

	// APIVersion is the control API version advertised in TXT records.
	APIVersion = "v1"

	// DaemonVersion is advertised in TXT records.
	DaemonVersion = "1.0.0"
)

// Service advertises the control API on the local network so
// companion apps find the daemon without manual configuration.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates an advertisement service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Start begins advertising. Call after the control API is listening.
// Failures are typically non-fatal (multicast is often unavailable in
// containers).
func (s *Service) Start(instanceID, name string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop an existing server first so Start doubles as restart.
	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "storyline-daemon"
	}

	txtRecords := []string{
		fmt.Sprintf("id=%s", instanceID),
		fmt.Sprintf("name=%s", name),
		fmt.Sprintf("version=%s", DaemonVersion),
		fmt.Sprintf("api=%s", APIVersion),
	}

	service, err := mdns.NewMDNSService(
		host,        // Instance name
		ServiceType, // _storyline._tcp
		"",          // Domain (empty = .local)
		"",          // Host (empty = system hostname)
		port,
		nil, // IPs (nil = all interfaces)
		txtRecords,
	)
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{
		Zone: service,
	})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}

	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", name,
		"id", instanceID,
	)

	return nil
}

// Stop stops advertising. Safe to call repeatedly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

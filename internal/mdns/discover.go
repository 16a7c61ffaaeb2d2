package mdns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/storylineapp/storyline-core/internal/domain"
)

// defaultBrowseTimeout bounds a discovery pass.
const defaultBrowseTimeout = 3 * time.Second

// Discover browses the local network for media servers and returns
// whatever answered within the timeout. A zero timeout picks the
// default. An empty result is not an error.
func Discover(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]domain.ServerInfo, error) {
	if timeout <= 0 {
		timeout = defaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var servers []domain.ServerInfo

	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for entry := range entries {
			info := entryToServerInfo(entry)
			logger.Debug("discovered media server",
				"name", info.Name,
				"host", info.Host,
				"port", info.Port,
			)
			servers = append(servers, info)
		}
	}()

	params := &mdns.QueryParam{
		Service:     MediaServerType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	queryErr := make(chan error, 1)
	go func() {
		defer close(entries)
		queryErr <- mdns.Query(params)
	}()

	select {
	case err := <-queryErr:
		<-collectDone
		if err != nil {
			return nil, fmt.Errorf("mdns query: %w", err)
		}
		return servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// entryToServerInfo maps a discovery answer onto ServerInfo, reading
// the TXT fields the media server advertises.
func entryToServerInfo(entry *mdns.ServiceEntry) domain.ServerInfo {
	info := domain.ServerInfo{
		Host: entry.Host,
		Port: entry.Port,
	}
	if entry.AddrV4 != nil {
		info.Host = entry.AddrV4.String()
	}

	for _, field := range entry.InfoFields {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "id":
			info.InstanceID = value
		case "name":
			info.Name = value
		case "version":
			info.Version = value
		case "api":
			info.APIVersion = value
		}
	}

	if info.Name == "" {
		info.Name = strings.TrimSuffix(entry.Name, "."+MediaServerType+".local.")
	}

	return info
}

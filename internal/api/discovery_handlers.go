package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/mdns"
)

func (s *Server) registerDiscoveryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "discoverServers",
		Method:      http.MethodGet,
		Path:        "/api/v1/servers/discover",
		Summary:     "Discover reading servers on the local network",
		Description: "Browses mDNS for advertised servers and returns everything found within the timeout",
		Tags:        []string{"Discovery"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDiscoverServers)
}

// DiscoverInput bounds the mDNS browse.
type DiscoverInput struct {
	Authorization  string `header:"Authorization"`
	TimeoutSeconds int    `query:"timeout" minimum:"1" maximum:"30" default:"3" doc:"How long to browse, in seconds"`
}

// DiscoverOutput lists discovered servers.
type DiscoverOutput struct {
	Body struct {
		Servers []domain.ServerInfo `json:"servers"`
	}
}

func (s *Server) handleDiscoverServers(ctx context.Context, input *DiscoverInput) (*DiscoverOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	servers, err := mdns.Discover(ctx, time.Duration(input.TimeoutSeconds)*time.Second, s.logger)
	if err != nil {
		return nil, err
	}

	resp := &DiscoverOutput{}
	resp.Body.Servers = servers
	return resp, nil
}

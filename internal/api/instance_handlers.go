package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/mdns"
)

func (s *Server) registerInstanceRoutes() {
	// Unauthenticated so companions can identify the daemon before pairing.
	huma.Register(s.api, huma.Operation{
		OperationID: "getInstance",
		Method:      http.MethodGet,
		Path:        "/api/v1/instance",
		Summary:     "Identify this daemon",
		Tags:        []string{"Instance"},
	}, s.handleGetInstance)
}

// InstanceResponse identifies the daemon to companions.
type InstanceResponse struct {
	Body struct {
		InstanceID string                  `json:"instance_id"`
		Name       string                  `json:"name"`
		Version    string                  `json:"version"`
		APIVersion string                  `json:"api_version"`
		Connection domain.ConnectionStatus `json:"connection"`
	}
}

func (s *Server) handleGetInstance(ctx context.Context, _ *struct{}) (*InstanceResponse, error) {
	resp := &InstanceResponse{}
	resp.Body.InstanceID = s.instanceID
	resp.Body.Name = s.instanceName
	resp.Body.Version = mdns.DaemonVersion
	resp.Body.APIVersion = mdns.APIVersion
	resp.Body.Connection = s.services.Remote.Status()
	return resp, nil
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/domain"
	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
	"github.com/storylineapp/storyline-core/internal/id"
	"github.com/storylineapp/storyline-core/internal/sse"
)

// Pairing is the only way a device gets a token: the companion begins
// a pairing, the daemon surfaces a 6-digit code on the already
// authenticated reading surface, the user relays it, and the
// companion completes with the code to receive a long-lived token.
func (s *Server) registerPairingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "beginPairing",
		Method:      http.MethodPost,
		Path:        "/api/v1/pair/begin",
		Summary:     "Begin pairing",
		Description: "Starts a pairing handshake; the code is shown on the reading device",
		Tags:        []string{"Pairing"},
	}, s.handleBeginPairing)

	huma.Register(s.api, huma.Operation{
		OperationID: "completePairing",
		Method:      http.MethodPost,
		Path:        "/api/v1/pair/complete",
		Summary:     "Complete pairing",
		Description: "Exchanges the relayed code for a device token",
		Tags:        []string{"Pairing"},
	}, s.handleCompletePairing)

	huma.Register(s.api, huma.Operation{
		OperationID: "listPairings",
		Method:      http.MethodGet,
		Path:        "/api/v1/pairings",
		Summary:     "List paired devices",
		Tags:        []string{"Pairing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListPairings)

	huma.Register(s.api, huma.Operation{
		OperationID: "revokePairing",
		Method:      http.MethodDelete,
		Path:        "/api/v1/pairings/{id}",
		Summary:     "Revoke a pairing",
		Description: "Removes the device from the pairing list; already issued tokens run out on their own expiry",
		Tags:        []string{"Pairing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRevokePairing)
}

// === DTOs ===

// BeginPairingInput names the device asking to pair.
type BeginPairingInput struct {
	Body struct {
		DeviceName string `json:"device_name" minLength:"1" maxLength:"64" doc:"Human-readable device name"`
	}
}

// BeginPairingOutput returns the handshake ID. The code travels over
// the reading surface, never this response.
type BeginPairingOutput struct {
	Body struct {
		PairingID string `json:"pairing_id" doc:"Handshake ID for the complete call"`
		ExpiresIn int    `json:"expires_in" doc:"Seconds before the code expires"`
	}
}

// CompletePairingInput carries the relayed code.
type CompletePairingInput struct {
	Body struct {
		PairingID string `json:"pairing_id" minLength:"1" doc:"Handshake ID from begin"`
		Code      string `json:"code" minLength:"6" maxLength:"6" doc:"The 6-digit code shown on the reading device"`
	}
}

// CompletePairingOutput returns the issued device token.
type CompletePairingOutput struct {
	Body struct {
		Token     string    `json:"token" doc:"Bearer token for subsequent requests"`
		DeviceID  string    `json:"device_id" doc:"Stable device ID"`
		ExpiresAt time.Time `json:"expires_at" doc:"Token expiry"`
	}
}

// PairingResponse is one paired device.
type PairingResponse struct {
	ID         string    `json:"id" doc:"Device ID"`
	DeviceName string    `json:"device_name" doc:"Device name"`
	CreatedAt  time.Time `json:"created_at" doc:"When pairing completed"`
	LastSeenAt time.Time `json:"last_seen_at" doc:"Last authenticated request"`
}

// PairingListOutput wraps the paired devices for huma.
type PairingListOutput struct {
	Body struct {
		Pairings []PairingResponse `json:"pairings" doc:"Paired devices"`
	}
}

// PairingIDInput addresses one pairing.
type PairingIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Pairing ID"`
}

// pairingCodeTTL bounds how long a relayed code stays redeemable.
const pairingCodeTTL = 5 * time.Minute

// === Handlers ===

func (s *Server) handleBeginPairing(ctx context.Context, input *BeginPairingInput) (*BeginPairingOutput, error) {
	if !s.pairLimiter.Allow("begin") {
		return nil, huma.Error429TooManyRequests("Too many pairing attempts")
	}

	code, err := auth.GeneratePairingCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := auth.HashCode(code)
	if err != nil {
		return nil, err
	}

	pairing := &domain.Pairing{
		ID:         id.MustGenerate("pair"),
		DeviceName: input.Body.DeviceName,
		CodeHash:   codeHash,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreatePairing(ctx, pairing); err != nil {
		return nil, err
	}

	// Surface the code on the authenticated reading device.
	s.sseManager.Emit(sse.NewPairingRequestedEvent(pairing.ID, pairing.DeviceName, code))
	s.logger.Info("pairing requested", "id", pairing.ID, "device", pairing.DeviceName)

	out := &BeginPairingOutput{}
	out.Body.PairingID = pairing.ID
	out.Body.ExpiresIn = int(pairingCodeTTL.Seconds())
	return out, nil
}

func (s *Server) handleCompletePairing(ctx context.Context, input *CompletePairingInput) (*CompletePairingOutput, error) {
	if !s.pairLimiter.Allow("complete:" + input.Body.PairingID) {
		return nil, huma.Error429TooManyRequests("Too many pairing attempts")
	}

	pairing, err := s.store.GetPairing(ctx, input.Body.PairingID)
	if err != nil {
		return nil, err
	}

	if pairing.CodeHash == "" {
		return nil, domainerrors.Conflict("pairing already completed")
	}
	if time.Since(pairing.CreatedAt) > pairingCodeTTL {
		_ = s.store.DeletePairing(ctx, pairing.ID)
		return nil, domainerrors.Unauthorized("pairing code expired")
	}

	ok, err := auth.VerifyCode(pairing.CodeHash, input.Body.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.Unauthorized("incorrect pairing code")
	}

	token, err := s.services.Tokens.GenerateDeviceToken(pairing)
	if err != nil {
		return nil, err
	}

	// Completed pairings drop the code hash; the code is single-use.
	pairing.CodeHash = ""
	pairing.LastSeenAt = time.Now()
	if err := s.store.DeletePairing(ctx, pairing.ID); err != nil {
		return nil, err
	}
	if err := s.store.CreatePairing(ctx, pairing); err != nil {
		return nil, err
	}

	out := &CompletePairingOutput{}
	out.Body.Token = token
	out.Body.DeviceID = pairing.ID
	out.Body.ExpiresAt = time.Now().Add(s.services.Tokens.TokenDuration())
	return out, nil
}

func (s *Server) handleListPairings(ctx context.Context, _ *AuthOnlyInput) (*PairingListOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	pairings, err := s.store.ListPairings(ctx)
	if err != nil {
		return nil, err
	}

	out := &PairingListOutput{}
	out.Body.Pairings = make([]PairingResponse, 0, len(pairings))
	for _, p := range pairings {
		// Handshakes still waiting on their code are not devices yet.
		if p.CodeHash != "" {
			continue
		}
		out.Body.Pairings = append(out.Body.Pairings, PairingResponse{
			ID:         p.ID,
			DeviceName: p.DeviceName,
			CreatedAt:  p.CreatedAt,
			LastSeenAt: p.LastSeenAt,
		})
	}
	return out, nil
}

func (s *Server) handleRevokePairing(ctx context.Context, input *PairingIDInput) (*AcceptedOutput, error) {
	if _, err := GetDevice(ctx); err != nil {
		return nil, err
	}

	if err := s.store.DeletePairing(ctx, input.ID); err != nil {
		return nil, err
	}
	return accepted(), nil
}

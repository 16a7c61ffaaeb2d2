package providers

import (
	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/logger"
)

// AuthKey wraps the pairing-token key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the PASETO symmetric key kept in
// the data directory.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}

	log.Info("Pairing key loaded", "token_duration", auth.DefaultTokenDuration)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	authKey := do.MustInvoke[AuthKey](i)
	return auth.NewTokenService([]byte(authKey), auth.DefaultTokenDuration)
}

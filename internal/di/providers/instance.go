package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/do/v2"

	"github.com/storylineapp/storyline-core/internal/config"
	"github.com/storylineapp/storyline-core/internal/id"
	"github.com/storylineapp/storyline-core/internal/logger"
)

// Identity is the daemon's stable identity: the instance ID survives
// restarts so companion apps recognize a previously paired daemon,
// and the name is what discovery and the instance endpoint report.
type Identity struct {
	ID   string
	Name string
}

// ProvideIdentity loads the persisted instance ID, generating one on
// first run.
func ProvideIdentity(i do.Injector) (*Identity, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	idPath := filepath.Join(cfg.Data.Dir, "instance_id")

	var instanceID string
	//#nosec G304 -- Path is derived from the validated data dir.
	if raw, err := os.ReadFile(idPath); err == nil {
		instanceID = strings.TrimSpace(string(raw))
	}

	if instanceID == "" {
		generated, err := id.Generate("inst")
		if err != nil {
			return nil, fmt.Errorf("generate instance id: %w", err)
		}
		if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		if err := os.WriteFile(idPath, []byte(generated+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("persist instance id: %w", err)
		}
		instanceID = generated
		log.Info("Generated new instance identity", "instance_id", instanceID)
	}

	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "storyline"
	}

	return &Identity{ID: instanceID, Name: name}, nil
}

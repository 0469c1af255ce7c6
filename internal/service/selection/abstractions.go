package selection

import (
	"context"

	"github.com/ashita-ai/haken/internal/model"
)

// resolvedAbstractions maps raw id keys to the resolved label key and the
// registry that names them.
var resolvedAbstractions = map[string]struct {
	key  string
	kind model.EntityKind
}{
	model.AbstractionAppID:     {model.SetupApplication, model.EntityApplication},
	model.AbstractionServiceID: {model.SetupService, model.EntityService},
	model.AbstractionEnvID:     {model.SetupEnvironment, model.EntityEnvironment},
}

// ProcessSetupAbstractions turns a task's raw scope abstractions into display
// labels. Application, service and environment ids become their names under
// APPLICATION, SERVICE and ENVIRONMENT; envType is kept as ENVIRONMENT_TYPE;
// any other key passes through unchanged. An id that cannot be resolved is
// omitted rather than failing the whole mapping. Returns nil for nil input.
func (s *Service) ProcessSetupAbstractions(ctx context.Context, accountID string, raw map[string]string) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if r, ok := resolvedAbstractions[k]; ok {
			name, found, err := s.registry.EntityName(ctx, r.kind, accountID, v)
			switch {
			case err != nil:
				s.logger.Warn("selection: resolve setup abstraction",
					"account_id", accountID, "kind", r.kind, "id", v, "error", err)
			case !found:
				s.logger.Debug("selection: setup entity not found",
					"account_id", accountID, "kind", r.kind, "id", v)
			default:
				out[r.key] = name
			}
			continue
		}
		if k == model.AbstractionEnvType {
			out[model.SetupEnvironmentType] = v
			continue
		}
		out[k] = v
	}
	return out
}

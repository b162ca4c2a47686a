package runtimeconfig

import "sort"

// ModelCatalog satisfies internal/handler.ModelCatalog by flattening the
// config document's models map into a flat list of "provider/modelID"
// references, the way the teacher's provider registry flattens per-provider
// model catalogs for the /models command.
type ModelCatalog struct {
	bridge *Bridge
}

// NewModelCatalog wraps bridge.
func NewModelCatalog(bridge *Bridge) *ModelCatalog {
	return &ModelCatalog{bridge: bridge}
}

// Models returns every "provider/modelID" reference across every
// configured provider, sorted for stable display.
func (m *ModelCatalog) Models() []string {
	cfg := m.bridge.current()
	var refs []string
	for providerID, provider := range cfg.Models {
		for _, spec := range provider.Models {
			refs = append(refs, providerID+"/"+spec.ID)
		}
	}
	sort.Strings(refs)
	return refs
}

// ModalityCapable returns the first model reference whose declared Input
// list contains modality, or "" if none qualifies.
func (m *ModelCatalog) ModalityCapable(modality string) string {
	cfg := m.bridge.current()
	providerIDs := make([]string, 0, len(cfg.Models))
	for id := range cfg.Models {
		providerIDs = append(providerIDs, id)
	}
	sort.Strings(providerIDs)
	for _, providerID := range providerIDs {
		for _, spec := range cfg.Models[providerID].Models {
			for _, in := range spec.Input {
				if in == modality {
					return providerID + "/" + spec.ID
				}
			}
		}
	}
	return ""
}

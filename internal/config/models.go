package config

const (
	activatedModelsFile = "activated_models.json"
	fetchedModelsFile   = "fetched_models.json"
)

// Model is one entry of the relay's model catalog.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// LoadActivatedModels returns the model ids the user has switched on.
// A missing file yields an empty list.
func (m *Manager) LoadActivatedModels() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := []string{}
	if _, err := m.readJSON(activatedModelsFile, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveActivatedModels persists the activated model ids.
func (m *Manager) SaveActivatedModels(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ids == nil {
		ids = []string{}
	}
	return m.writeJSON(activatedModelsFile, ids)
}

// LoadFetchedModels returns the last model catalog fetched from the relay.
// A missing file yields an empty list.
func (m *Manager) LoadFetchedModels() ([]Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	models := []Model{}
	if _, err := m.readJSON(fetchedModelsFile, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// SaveFetchedModels caches the relay's model catalog.
func (m *Manager) SaveFetchedModels(models []Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if models == nil {
		models = []Model{}
	}
	return m.writeJSON(fetchedModelsFile, models)
}

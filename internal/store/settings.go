package store

// Durable-store keys for the two free-text settings consulted by the model
// list fetch. They are not part of any cache invariants.
const (
	baseURLKey = "settings_base_url"
	apiKeyKey  = "settings_api_key"
)

// DefaultModelBaseURL is the model endpoint used when none is configured.
const DefaultModelBaseURL = "http://localhost:11434"

// Settings exposes the model endpoint settings on top of a Store.
type Settings struct {
	store *Store
}

func NewSettings(s *Store) *Settings {
	return &Settings{store: s}
}

func (s *Settings) BaseURL() (string, error) {
	return s.store.GetString(baseURLKey)
}

func (s *Settings) SetBaseURL(v string) error {
	return s.store.PutString(baseURLKey, v)
}

func (s *Settings) APIKey() (string, error) {
	return s.store.GetString(apiKeyKey)
}

func (s *Settings) SetAPIKey(v string) error {
	return s.store.PutString(apiKeyKey, v)
}

// Reset restores the defaults: a local model endpoint and no key.
func (s *Settings) Reset() error {
	if err := s.SetBaseURL(DefaultModelBaseURL); err != nil {
		return err
	}
	return s.SetAPIKey("")
}

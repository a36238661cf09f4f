// ABOUTME: Typed user settings record and the Registry that owns it
// ABOUTME: Explicit per-group setters replace the original path-based deep update

package settings

import (
	"fmt"
	"log/slog"
	"sync"
)

// Theme values
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"
)

// Known completion models, smallest to largest
var Models = []string{
	"llama-3.1-sonar-small-128k-online",
	"llama-3.1-sonar-large-128k-online",
	"llama-3.1-sonar-huge-128k-online",
}

// Profile holds the user-facing identity shown in the chat header
type Profile struct {
	Name       string `json:"name" yaml:"name"`
	AvatarRef  string `json:"avatar_ref" yaml:"avatar_ref"`
	StatusText string `json:"status_text" yaml:"status_text"`
}

// AI holds completion and speech-synthesis credentials and tuning
type AI struct {
	APIKey           string  `json:"api_key" yaml:"api_key"`
	ElevenLabsAPIKey string  `json:"eleven_labs_api_key" yaml:"eleven_labs_api_key"`
	Model            string  `json:"model" yaml:"model"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	SystemPrompt     string  `json:"system_prompt" yaml:"system_prompt"`
}

// Preferences holds display and behavior toggles
type Preferences struct {
	Theme         string `json:"theme" yaml:"theme"`
	Notifications bool   `json:"notifications" yaml:"notifications"`
	SoundEffects  bool   `json:"sound_effects" yaml:"sound_effects"`
	VoiceInput    bool   `json:"voice_input" yaml:"voice_input"`
	AutoSpeech    bool   `json:"auto_speech" yaml:"auto_speech"`
}

// Settings is the complete user settings record
type Settings struct {
	Profile     Profile     `json:"profile" yaml:"profile"`
	AI          AI          `json:"ai" yaml:"ai"`
	Preferences Preferences `json:"preferences" yaml:"preferences"`
}

// Defaults returns the settings a fresh installation starts with
func Defaults() Settings {
	return Settings{
		Profile: Profile{
			Name:       "Utilisateur",
			StatusText: "En ligne",
		},
		AI: AI{
			Model:        Models[0],
			Temperature:  0.2,
			SystemPrompt: "Vous êtes Bechir AI, un assistant intelligent et serviable. Répondez de manière concise et utile en français.",
		},
		Preferences: Preferences{
			Theme:         ThemeAuto,
			Notifications: true,
			SoundEffects:  true,
			VoiceInput:    true,
			AutoSpeech:    false,
		},
	}
}

// Validate checks enum and range constraints on the record
func (s Settings) Validate() error {
	if s.AI.Temperature < 0 || s.AI.Temperature > 1 {
		return fmt.Errorf("ai.temperature must be within [0, 1], got %g", s.AI.Temperature)
	}
	switch s.Preferences.Theme {
	case ThemeLight, ThemeDark, ThemeAuto:
	default:
		return fmt.Errorf("preferences.theme must be one of light, dark, auto, got %q", s.Preferences.Theme)
	}
	if s.AI.Model != "" && !knownModel(s.AI.Model) {
		return fmt.Errorf("ai.model %q is not a recognized model", s.AI.Model)
	}
	return nil
}

func knownModel(model string) bool {
	for _, m := range Models {
		if m == model {
			return true
		}
	}
	return false
}

// Listener is notified with the full record after every successful save
type Listener func(Settings)

// Registry owns the settings singleton. Saves are atomic whole-group
// replacements; reads return copies. Last writer wins.
type Registry struct {
	mu        sync.RWMutex
	current   Settings
	listeners []Listener
	logger    *slog.Logger
}

// NewRegistry creates a registry starting from the given record.
// Pass nil logger for default.
func NewRegistry(initial Settings, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial settings: %w", err)
	}
	return &Registry{
		current: initial,
		logger:  logger.With("component", "settings"),
	}, nil
}

// Current returns a copy of the settings record
func (r *Registry) Current() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers a listener called after every successful save.
// Listeners are invoked outside the registry lock.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Save replaces the whole record. In-flight operations keep whatever
// values they captured before the save.
func (r *Registry) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.apply(func(cur *Settings) { *cur = s })
	return nil
}

// SaveProfile replaces the profile group only
func (r *Registry) SaveProfile(p Profile) error {
	r.apply(func(cur *Settings) { cur.Profile = p })
	return nil
}

// SaveAI replaces the AI group only
func (r *Registry) SaveAI(ai AI) error {
	next := r.Current()
	next.AI = ai
	if err := next.Validate(); err != nil {
		return err
	}
	r.apply(func(cur *Settings) { cur.AI = ai })
	return nil
}

// SavePreferences replaces the preferences group only
func (r *Registry) SavePreferences(p Preferences) error {
	next := r.Current()
	next.Preferences = p
	if err := next.Validate(); err != nil {
		return err
	}
	r.apply(func(cur *Settings) { cur.Preferences = p })
	return nil
}

// apply mutates the record under lock and notifies listeners after release
func (r *Registry) apply(mutate func(*Settings)) {
	r.mu.Lock()
	mutate(&r.current)
	snapshot := r.current
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Debug("settings saved")
	for _, l := range listeners {
		l(snapshot)
	}
}

// ABOUTME: Tests for the settings registry
// ABOUTME: Verifies validation, atomic group saves, and listener notification

package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidate_TemperatureRange(t *testing.T) {
	s := Defaults()
	s.AI.Temperature = 1.5
	assert.Error(t, s.Validate())

	s.AI.Temperature = -0.1
	assert.Error(t, s.Validate())

	s.AI.Temperature = 0
	assert.NoError(t, s.Validate())
	s.AI.Temperature = 1
	assert.NoError(t, s.Validate())
}

func TestValidate_ThemeEnum(t *testing.T) {
	s := Defaults()
	s.Preferences.Theme = "sepia"
	assert.Error(t, s.Validate())

	for _, theme := range []string{ThemeLight, ThemeDark, ThemeAuto} {
		s.Preferences.Theme = theme
		assert.NoError(t, s.Validate())
	}
}

func TestValidate_ModelEnum(t *testing.T) {
	s := Defaults()
	s.AI.Model = "gpt-99"
	assert.Error(t, s.Validate())

	s.AI.Model = Models[2]
	assert.NoError(t, s.Validate())
}

func TestRegistry_SaveReplacesRecord(t *testing.T) {
	r, err := NewRegistry(Defaults(), nil)
	require.NoError(t, err)

	next := Defaults()
	next.Profile.Name = "Bechir"
	next.AI.APIKey = "pplx-123"
	require.NoError(t, r.Save(next))

	got := r.Current()
	assert.Equal(t, "Bechir", got.Profile.Name)
	assert.Equal(t, "pplx-123", got.AI.APIKey)
}

func TestRegistry_SaveRejectsInvalid(t *testing.T) {
	r, err := NewRegistry(Defaults(), nil)
	require.NoError(t, err)

	bad := Defaults()
	bad.AI.Temperature = 2
	require.Error(t, r.Save(bad))

	// Unchanged after a rejected save
	assert.Equal(t, Defaults().AI.Temperature, r.Current().AI.Temperature)
}

func TestRegistry_GroupSavesAreIndependent(t *testing.T) {
	r, err := NewRegistry(Defaults(), nil)
	require.NoError(t, err)

	require.NoError(t, r.SaveProfile(Profile{Name: "Bechir", StatusText: "Occupé"}))
	require.NoError(t, r.SaveAI(AI{APIKey: "key", Model: Models[1], Temperature: 0.7}))

	got := r.Current()
	assert.Equal(t, "Bechir", got.Profile.Name)
	assert.Equal(t, Models[1], got.AI.Model)
	// Preferences untouched
	assert.Equal(t, Defaults().Preferences, got.Preferences)
}

func TestRegistry_SaveAIValidates(t *testing.T) {
	r, err := NewRegistry(Defaults(), nil)
	require.NoError(t, err)

	err = r.SaveAI(AI{Model: Models[0], Temperature: 3})
	require.Error(t, err)
}

func TestRegistry_ListenersNotifiedAfterSave(t *testing.T) {
	r, err := NewRegistry(Defaults(), nil)
	require.NoError(t, err)

	var seen []string
	r.Subscribe(func(s Settings) {
		seen = append(seen, s.AI.APIKey)
	})

	next := Defaults()
	next.AI.APIKey = "first"
	require.NoError(t, r.Save(next))
	next.AI.APIKey = "second"
	require.NoError(t, r.Save(next))

	assert.Equal(t, []string{"first", "second"}, seen)
}

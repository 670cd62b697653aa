package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PersonaInfo identifies one persona preset file.
type PersonaInfo struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
}

// PersonaConfig is the persona section of a preset file.
type PersonaConfig struct {
	Name        string `yaml:"name"`
	VoiceStyle  string `yaml:"voice_style"`
	Description string `yaml:"description"`
}

type personaFilePayload struct {
	Persona PersonaConfig `yaml:"persona"`
}

// ScanPersonaFiles lists the persona presets available under personasDir.
// Unreadable files fall back to their filename.
func ScanPersonaFiles(personasDir string) []PersonaInfo {
	personas := []PersonaInfo{}
	if personasDir == "" {
		return personas
	}

	_ = filepath.WalkDir(personasDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		name := d.Name()
		if persona, err := ReadPersonaConfig(path); err == nil && persona.Name != "" {
			name = persona.Name
		}
		personas = append(personas, PersonaInfo{Filename: d.Name(), Name: name})
		return nil
	})

	return personas
}

// ReadPersonaConfig parses one persona preset file.
func ReadPersonaConfig(path string) (PersonaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PersonaConfig{}, err
	}
	var payload personaFilePayload
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return PersonaConfig{}, err
	}
	if payload.Persona.Name == "" {
		payload.Persona.Name = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	return payload.Persona, nil
}

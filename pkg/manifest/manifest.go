// Package manifest reads and writes bot definitions as YAML files so a fleet
// can be seeded from disk.
//
//	name: Echo
//	language: javascript
//	token: 123456:ABC
//	code_file: echo.js
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"botsim/pkg/engine"
	"botsim/pkg/fleet"

	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Name     string `yaml:"name,omitempty"`
	Language string `yaml:"language"`
	Token    string `yaml:"token"`
	Code     string `yaml:"code,omitempty"`
	// CodeFile is read relative to the manifest when Code is empty.
	CodeFile string `yaml:"code_file,omitempty"`
}

// Parse decodes one manifest. baseDir resolves a relative code_file.
func Parse(data []byte, baseDir string) (fleet.Spec, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fleet.Spec{}, fmt.Errorf("yaml parse failed: %w", err)
	}
	if strings.TrimSpace(m.Language) == "" {
		return fleet.Spec{}, fmt.Errorf("language is required")
	}
	lang, err := engine.NormalizeLanguage(m.Language)
	if err != nil {
		return fleet.Spec{}, err
	}
	if m.Code != "" && m.CodeFile != "" {
		return fleet.Spec{}, fmt.Errorf("code and code_file are mutually exclusive")
	}

	code := m.Code
	if m.CodeFile != "" {
		path := m.CodeFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fleet.Spec{}, fmt.Errorf("read code_file: %w", err)
		}
		code = string(data)
	}

	return fleet.Spec{Name: m.Name, Language: lang, Token: m.Token, Code: code}, nil
}

func Load(path string) (fleet.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fleet.Spec{}, err
	}
	spec, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return fleet.Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
// A missing directory yields no manifests.
func LoadDir(dir string) ([]fleet.Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	specs := make([]fleet.Spec, 0, len(names))
	for _, name := range names {
		spec, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Save writes bot as a manifest with its code inlined.
func Save(path string, bot fleet.Bot) error {
	out, err := yaml.Marshal(Manifest{
		Name:     bot.Name,
		Language: bot.Language,
		Token:    bot.Token,
		Code:     bot.Code,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir manifest dir: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

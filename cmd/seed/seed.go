package main

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	promptdomain "praxis-pilot/backend/internal/prompt/domain"
	"praxis-pilot/backend/internal/tenancy"
)

//go:embed data.yaml
var seedYAML []byte

type seedData struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	Users []struct {
		ID      string `yaml:"id"`
		Subject string `yaml:"subject"`
		Email   string `yaml:"email"`
		Role    string `yaml:"role"`
	} `yaml:"users"`
	Prompts []struct {
		Key  string `yaml:"key"`
		Body string `yaml:"body"`
	} `yaml:"prompts"`
	Interventions []struct {
		Category      string   `yaml:"category"`
		Title         string   `yaml:"title"`
		Description   string   `yaml:"description"`
		EvidenceLevel string   `yaml:"evidence_level"`
		References    []string `yaml:"references"`
	} `yaml:"interventions"`
}

// loadSeed parses raw and checks that it names a valid tenant and only registry prompt keys.
func loadSeed(raw []byte) (*seedData, error) {
	var d seedData
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	id, err := tenancy.ParseTenantID(d.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("seed: tenant id: %w", err)
	}
	d.Tenant.ID = id
	for _, p := range d.Prompts {
		if !promptdomain.IsAssistKey(p.Key) {
			return nil, fmt.Errorf("seed: unknown prompt key %q", p.Key)
		}
		if p.Body == "" {
			return nil, fmt.Errorf("seed: prompt %s has an empty body", p.Key)
		}
	}
	for _, in := range d.Interventions {
		if in.Category == "" || in.Title == "" {
			return nil, errors.New("seed: interventions need a category and a title")
		}
	}
	return &d, nil
}

package redteam

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AttackTemplate is one exploit shape tried against a vulnerability.
type AttackTemplate struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Categories used to pick template lists.
const (
	categoryBOLA    = "BOLA"
	categoryPrivEsc = "privilege_escalation"
	categoryAuthN   = "authentication"
	categoryAuthZ   = "authorization"
	categoryDefault = "default"
)

// defaultTemplates is the built-in template library.
var defaultTemplates = map[string][]AttackTemplate{
	categoryBOLA: {
		{Name: "IDOR User Enumeration", Description: "Attempt to access other users' resources by manipulating IDs"},
		{Name: "Horizontal Privilege Escalation", Description: "Access resources belonging to same-level users"},
		{Name: "Object Reference Manipulation", Description: "Modify object references to access unauthorized data"},
	},
	categoryPrivEsc: {
		{Name: "Vertical Privilege Escalation", Description: "Attempt to elevate to admin/higher role"},
		{Name: "Role Bypass Attack", Description: "Bypass role checks to access privileged functions"},
		{Name: "Token Manipulation", Description: "Modify JWT/session tokens to gain elevated access"},
	},
	categoryAuthN: {
		{Name: "Session Fixation", Description: "Force victim to use attacker-controlled session"},
		{Name: "Credential Stuffing Simulation", Description: "Test rate limiting on login endpoints"},
		{Name: "Token Replay Attack", Description: "Reuse captured authentication tokens"},
	},
	categoryAuthZ: {
		{Name: "Missing Function Level Access Control", Description: "Access admin functions without proper authorization"},
		{Name: "Forced Browsing", Description: "Access restricted endpoints directly"},
		{Name: "Parameter Tampering", Description: "Modify request parameters to bypass authorization"},
	},
	categoryDefault: {
		{Name: "Generic Security Probe", Description: "General security testing of the endpoint"},
		{Name: "Input Validation Test", Description: "Test input handling and validation"},
	},
}

// LoadTemplates returns the built-in template library, with categories
// overridden from the given YAML file when one is configured.
func LoadTemplates(path string) (map[string][]AttackTemplate, error) {
	templates := make(map[string][]AttackTemplate, len(defaultTemplates))
	for k, v := range defaultTemplates {
		templates[k] = v
	}
	if path == "" {
		return templates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	var overrides map[string][]AttackTemplate
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}
	for category, list := range overrides {
		if len(list) > 0 {
			templates[category] = list
		}
	}
	return templates, nil
}

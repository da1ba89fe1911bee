// Package prompts loads the YAML prompt catalogue used by the
// model-assisted debate and explainability paths.
package prompts

import (
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed es/*.yml
var catalogue embed.FS

// ErrPromptNotFound is returned when a prompt template is missing.
var ErrPromptNotFound = fmt.Errorf("prompt not found")

// ErrPromptValidation is returned when template variables are missing.
var ErrPromptValidation = fmt.Errorf("prompt validation failed")

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// promptEntry is one named prompt with its system and user templates.
type promptEntry struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Loader loads and formats prompts from the embedded YAML catalogue.
// Prompt files are per-language; variables use {name} placeholders and
// every placeholder must be supplied.
type Loader struct {
	language string

	mu    sync.RWMutex
	cache map[string]map[string]promptEntry
	base  map[string]string
}

// NewLoader creates a loader for the given language (default "es").
func NewLoader(language string) (*Loader, error) {
	if language == "" {
		language = "es"
	}

	l := &Loader{
		language: language,
		cache:    make(map[string]map[string]promptEntry),
		base:     make(map[string]string),
	}

	// Base config carries shared variables like the system context
	if data, err := catalogue.ReadFile(language + "/base.yml"); err == nil {
		if err := yaml.Unmarshal(data, &l.base); err != nil {
			return nil, fmt.Errorf("failed to parse base prompt config: %w", err)
		}
	}

	return l, nil
}

func (l *Loader) loadFile(file string) (map[string]promptEntry, error) {
	l.mu.RLock()
	if prompts, ok := l.cache[file]; ok {
		l.mu.RUnlock()
		return prompts, nil
	}
	l.mu.RUnlock()

	data, err := catalogue.ReadFile(l.language + "/" + file + ".yml")
	if err != nil {
		return nil, fmt.Errorf("%w: file %s/%s.yml", ErrPromptNotFound, l.language, file)
	}

	prompts := map[string]promptEntry{}
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", file, err)
	}

	l.mu.Lock()
	l.cache[file] = prompts
	l.mu.Unlock()
	return prompts, nil
}

func (l *Loader) format(template string, vars map[string]string) (string, error) {
	out := template
	for k, v := range l.base {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}

	if match := placeholderPattern.FindString(out); match != "" {
		return "", fmt.Errorf("%w: missing variable %s", ErrPromptValidation, match)
	}
	return out, nil
}

// Get returns the formatted system and user prompts for a named template.
func (l *Loader) Get(file, name string, vars map[string]string) (system, user string, err error) {
	prompts, err := l.loadFile(file)
	if err != nil {
		return "", "", err
	}

	entry, ok := prompts[name]
	if !ok {
		return "", "", fmt.Errorf("%w: prompt %q in %s.yml", ErrPromptNotFound, name, file)
	}

	system, err = l.format(entry.System, vars)
	if err != nil {
		return "", "", err
	}
	user, err = l.format(entry.User, vars)
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

// DebateProFraud returns the pro-fraud debate prompts.
func (l *Loader) DebateProFraud(vars map[string]string) (system, user string, err error) {
	return l.Get("debate", "pro_fraud", vars)
}

// DebateProCustomer returns the pro-customer debate prompts.
func (l *Loader) DebateProCustomer(vars map[string]string) (system, user string, err error) {
	return l.Get("debate", "pro_customer", vars)
}

// CustomerExplanation returns the customer-facing explanation prompts.
func (l *Loader) CustomerExplanation(vars map[string]string) (system, user string, err error) {
	return l.Get("explain", "customer", vars)
}

// AuditExplanation returns the audit-report prompts.
func (l *Loader) AuditExplanation(vars map[string]string) (system, user string, err error) {
	return l.Get("explain", "audit", vars)
}

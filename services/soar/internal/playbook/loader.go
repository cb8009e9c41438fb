package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LoaderConfig holds loader configuration.
type LoaderConfig struct {
	// File-based loading, mainly useful for seeding playbooks at startup.
	PlaybooksDirectory string
	FileExtensions     []string

	// Database-based loading.
	UseDatabase bool
	TenantID    string
}

// PlaybookRepository defines the interface for playbook storage.
type PlaybookRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*Playbook, error)
	ListEnabled(ctx context.Context, tenantID string) ([]*Playbook, error)
	Save(ctx context.Context, pb *Playbook) error
	Delete(ctx context.Context, tenantID, id string) error
}

// Loader loads playbooks from the database and/or a directory of YAML/JSON
// files, validating each before it becomes eligible for execution.
type Loader struct {
	config     LoaderConfig
	repository PlaybookRepository
	validator  *Validator
	logger     *slog.Logger

	mu        sync.RWMutex
	playbooks map[string]*Playbook
}

// NewLoader creates a new playbook loader.
func NewLoader(cfg LoaderConfig, repo PlaybookRepository, logger *slog.Logger) *Loader {
	return &Loader{
		config:     cfg,
		repository: repo,
		validator:  NewValidator(),
		logger:     logger.With("component", "playbook-loader"),
		playbooks:  make(map[string]*Playbook),
	}
}

// LoadAll loads every enabled playbook from the configured sources.
func (l *Loader) LoadAll(ctx context.Context) ([]*Playbook, error) {
	var playbooks []*Playbook

	if l.config.UseDatabase && l.repository != nil {
		dbPlaybooks, err := l.repository.ListEnabled(ctx, l.config.TenantID)
		if err != nil {
			return nil, fmt.Errorf("load playbooks from database: %w", err)
		}
		playbooks = append(playbooks, dbPlaybooks...)
	}

	if l.config.PlaybooksDirectory != "" {
		filePlaybooks, err := l.loadFromDirectory(l.config.PlaybooksDirectory)
		if err != nil {
			return nil, fmt.Errorf("load playbooks from directory: %w", err)
		}
		playbooks = append(playbooks, filePlaybooks...)
	}

	valid := make([]*Playbook, 0, len(playbooks))
	for _, pb := range playbooks {
		if err := l.validator.Validate(pb); err != nil {
			l.logger.Warn("playbook validation failed", "playbook", pb.Name, "error", err)
			continue
		}
		valid = append(valid, pb)
	}

	l.mu.Lock()
	l.playbooks = make(map[string]*Playbook, len(valid))
	for _, pb := range valid {
		l.playbooks[pb.ID] = pb
	}
	l.mu.Unlock()

	l.logger.Info("playbooks loaded", "total", len(playbooks), "valid", len(valid))
	return valid, nil
}

// Cached returns the currently cached playbooks without reloading them.
func (l *Loader) Cached() []*Playbook {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Playbook, 0, len(l.playbooks))
	for _, pb := range l.playbooks {
		out = append(out, pb)
	}
	return out
}

// LoadByID loads a single playbook, checking the cache before the repository.
func (l *Loader) LoadByID(ctx context.Context, id string) (*Playbook, error) {
	l.mu.RLock()
	if pb, ok := l.playbooks[id]; ok {
		l.mu.RUnlock()
		return pb, nil
	}
	l.mu.RUnlock()

	if l.repository != nil {
		pb, err := l.repository.GetByID(ctx, l.config.TenantID, id)
		if err != nil {
			return nil, err
		}
		if pb != nil {
			return pb, nil
		}
	}

	return nil, fmt.Errorf("playbook not found: %s", id)
}

// LoadFromYAML parses a playbook definition from YAML content.
func (l *Loader) LoadFromYAML(content string) (*Playbook, error) {
	return l.loadFromReader(strings.NewReader(content))
}

// LoadFromJSON parses a playbook definition from JSON content.
func (l *Loader) LoadFromJSON(content string) (*Playbook, error) {
	var pb Playbook
	if err := json.Unmarshal([]byte(content), &pb); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return &pb, nil
}

func (l *Loader) loadFromDirectory(dir string) ([]*Playbook, error) {
	var playbooks []*Playbook

	extensions := l.config.FileExtensions
	if len(extensions) == 0 {
		extensions = []string{".yml", ".yaml", ".json"}
	}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		valid := false
		for _, e := range extensions {
			if ext == e {
				valid = true
				break
			}
		}
		if !valid {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			l.logger.Warn("failed to open playbook file", "path", path, "error", err)
			return nil
		}
		defer file.Close()

		pb, err := l.loadFromReader(file)
		if err != nil {
			l.logger.Warn("failed to load playbook file", "path", path, "error", err)
			return nil
		}

		playbooks = append(playbooks, pb)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return playbooks, nil
}

func (l *Loader) loadFromReader(reader io.Reader) (*Playbook, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	var pb Playbook
	if err := yaml.Unmarshal(content, &pb); err != nil {
		if jsonErr := json.Unmarshal(content, &pb); jsonErr != nil {
			return nil, fmt.Errorf("parse playbook (tried YAML and JSON): %w", err)
		}
	}

	return &pb, nil
}

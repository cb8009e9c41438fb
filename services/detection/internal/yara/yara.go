// Package yara wraps libyara to scan event content against compiled YARA
// rule sources embedded in a detection rule.
package yara

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	goyara "github.com/hillu/go-yara/v4"
)

// ScanResult is the outcome of scanning one blob of content.
type ScanResult struct {
	Matched      bool
	MatchedRules []string
}

// Scanner compiles and caches YARA rulesets keyed by rule ID, so a rule's
// source is compiled once and reused across every event it is evaluated
// against.
type Scanner struct {
	mu      sync.RWMutex
	compiled map[string]*goyara.Rules
	timeout time.Duration
}

func NewScanner(timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Scanner{
		compiled: make(map[string]*goyara.Rules),
		timeout:  timeout,
	}
}

// Compile parses and compiles a rule's source, caching it under ruleID.
// Recompiling with the same ruleID replaces the cached entry, so a rule
// edit takes effect on the next reload without restarting the scanner.
func (s *Scanner) Compile(ruleID, source string) error {
	compiler, err := goyara.NewCompiler()
	if err != nil {
		return fmt.Errorf("yara: new compiler: %w", err)
	}
	defer compiler.Destroy()

	if err := compiler.AddString(source, ruleID); err != nil {
		return fmt.Errorf("yara: compile rule %s: %w", ruleID, err)
	}

	rules, err := compiler.GetRules()
	if err != nil {
		return fmt.Errorf("yara: get rules for %s: %w", ruleID, err)
	}

	s.mu.Lock()
	s.compiled[ruleID] = rules
	s.mu.Unlock()

	return nil
}

// Forget drops a cached ruleset, e.g. when a rule is disabled or deleted.
func (s *Scanner) Forget(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.compiled, ruleID)
}

// ScanBytes scans raw content against a compiled ruleset.
func (s *Scanner) ScanBytes(ruleID string, content []byte) (*ScanResult, error) {
	s.mu.RLock()
	rules, ok := s.compiled[ruleID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("yara: no compiled rules for %s", ruleID)
	}

	var matches goyara.MatchRules
	if err := rules.ScanMem(content, 0, s.timeout, &matches); err != nil {
		return nil, fmt.Errorf("yara: scan: %w", err)
	}

	result := &ScanResult{Matched: len(matches) > 0}
	for _, m := range matches {
		result.MatchedRules = append(result.MatchedRules, m.Rule)
	}
	return result, nil
}

// ScanFile scans the file at path against a compiled ruleset.
func (s *Scanner) ScanFile(ruleID, path string) (*ScanResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yara: read %s: %w", path, err)
	}
	return s.ScanBytes(ruleID, content)
}

// ExtractContent pulls the scannable bytes out of a field value: a base64
// string, a raw string, or (when isPath is set) a filesystem path read at
// scan time.
func ExtractContent(value interface{}, isPath bool) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		if b, ok := value.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("yara: content field is not a string or []byte")
	}

	if isPath {
		return os.ReadFile(s)
	}

	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return []byte(s), nil
}

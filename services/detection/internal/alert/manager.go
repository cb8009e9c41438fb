// Package alert provides alert management functionality.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	pkgevent "github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/engine"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/mitre"
)

// Severity levels for alerts.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AlertStatus represents the status of an alert.
type AlertStatus string

const (
	StatusNew        AlertStatus = "new"
	StatusOpen       AlertStatus = "open"
	StatusInProgress AlertStatus = "in_progress"
	StatusResolved   AlertStatus = "resolved"
	StatusClosed     AlertStatus = "closed"
	StatusFalsePos   AlertStatus = "false_positive"
)

// Alert represents a security alert.
type Alert struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenant_id"`
	RuleID        string                 `json:"rule_id"`
	RuleName      string                 `json:"rule_name"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Severity      Severity               `json:"severity"`
	Confidence    float64                `json:"confidence"`
	Status        AlertStatus            `json:"status"`
	Events        []*pkgevent.Event      `json:"events"`
	MatchedFields map[string]interface{} `json:"matched_fields,omitempty"`
	ATTACKMapping *mitre.ATTACKMapping   `json:"attack_mapping,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Assignee      string                 `json:"assignee,omitempty"`
	Source        AlertSource            `json:"source"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// AlertSource represents the source of an alert.
type AlertSource struct {
	Type     string   `json:"type"` // "detection" for alerts built by Manager
	Engine   string   `json:"engine"`
	Hostname string   `json:"hostname,omitempty"`
	IPs      []string `json:"ips,omitempty"`
	Users    []string `json:"users,omitempty"`
}

// ManagerConfig holds alert manager configuration.
type ManagerConfig struct {
	MaxEventsPerAlert int `json:"max_events_per_alert"`
}

// DefaultManagerConfig returns default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{MaxEventsPerAlert: 100}
}

// AlertProducer publishes a created alert onto the alerts bus topic.
type AlertProducer interface {
	Publish(ctx context.Context, alert *Alert) error
}

// Manager turns detection results into persisted, published alerts.
// Deduplication of repeat matches happens upstream, at the rule throttle in
// the detection engine's executor — by the time a DetectionResult reaches
// the Manager it is meant to become an alert.
type Manager struct {
	config      ManagerConfig
	mitreMapper *mitre.Mapper
	alerts      repository.AlertRepository
	producer    AlertProducer
	logger      *slog.Logger

	alertsCreated   atomic.Uint64
	alertsPublished atomic.Uint64
	errors          atomic.Uint64
}

// NewManager creates a new alert manager.
func NewManager(cfg ManagerConfig, alerts repository.AlertRepository, producer AlertProducer, logger *slog.Logger) *Manager {
	return &Manager{
		config:      cfg,
		mitreMapper: mitre.NewMapper(),
		alerts:      alerts,
		producer:    producer,
		logger:      logger.With("component", "alert-manager"),
	}
}

// CreateAlert creates, persists and publishes an alert from a detection
// result.
func (m *Manager) CreateAlert(ctx context.Context, result *engine.DetectionResult, events []*pkgevent.Event) (*Alert, error) {
	a := &Alert{
		ID:            uuid.New().String(),
		RuleID:        result.RuleID,
		RuleName:      result.RuleName,
		Title:         m.generateTitle(result),
		Description:   m.generateDescription(result, events),
		Severity:      m.mapSeverity(result.Severity),
		Confidence:    m.calculateConfidence(result, events),
		Status:        StatusNew,
		Events:        m.limitEvents(events),
		MatchedFields: m.extractMatchedFields(result),
		Tags:          m.generateTags(result),
		Source:        m.extractSource(events),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		Metadata:      result.Context,
	}

	if len(result.MITRETechniques) > 0 || len(result.MITRETactics) > 0 {
		a.ATTACKMapping = m.mitreMapper.MapToATTACK(result.MITRETechniques, result.MITRETactics)
	}

	if len(events) > 0 {
		a.TenantID = events[0].TenantID
	}

	m.alertsCreated.Add(1)

	if m.alerts != nil {
		if err := m.persist(ctx, a); err != nil {
			m.errors.Add(1)
			m.logger.Error("failed to persist alert", "error", err)
			return a, fmt.Errorf("persist alert: %w", err)
		}
	}

	if m.producer != nil {
		if err := m.producer.Publish(ctx, a); err != nil {
			m.errors.Add(1)
			m.logger.Error("failed to publish alert", "error", err)
			return a, fmt.Errorf("publish alert: %w", err)
		}
		m.alertsPublished.Add(1)
	}

	return a, nil
}

func (m *Manager) persist(ctx context.Context, a *Alert) error {
	return m.alerts.Insert(ctx, []*repository.Alert{{
		AlertID:    a.ID,
		TenantID:   a.TenantID,
		CreatedAt:  a.CreatedAt,
		AlertName:  a.Title,
		AlertType:  a.Source.Type,
		Severity:   string(a.Severity),
		Status:     string(a.Status),
		RuleID:     a.RuleID,
		RuleName:   a.RuleName,
		EventCount: int64(len(a.Events)),
	}})
}

// Stats returns manager statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"alerts_created":   m.alertsCreated.Load(),
		"alerts_published": m.alertsPublished.Load(),
		"errors":           m.errors.Load(),
	}
}

func (m *Manager) generateTitle(result *engine.DetectionResult) string {
	if result.RuleName != "" {
		return fmt.Sprintf("Detection: %s", result.RuleName)
	}
	return fmt.Sprintf("Detection: Rule %s", result.RuleID)
}

func (m *Manager) generateDescription(result *engine.DetectionResult, events []*pkgevent.Event) string {
	desc := fmt.Sprintf("Rule %s triggered", result.RuleID)

	if len(events) > 0 {
		desc += fmt.Sprintf(" with %d event(s)", len(events))
	}
	if len(result.MITRETechniques) > 0 {
		desc += fmt.Sprintf(". MITRE ATT&CK: %v", result.MITRETechniques)
	}

	return desc
}

func (m *Manager) mapSeverity(severity string) Severity {
	switch severity {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info", "informational":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

func (m *Manager) calculateConfidence(result *engine.DetectionResult, events []*pkgevent.Event) float64 {
	confidence := 0.5

	if len(events) > 5 {
		confidence += 0.2
	} else if len(events) > 2 {
		confidence += 0.1
	}
	if len(result.MITRETechniques) > 0 {
		confidence += 0.1
	}
	if len(result.MITRETactics) > 1 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return confidence
}

func (m *Manager) extractMatchedFields(result *engine.DetectionResult) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, matched := range result.MatchedEvents {
		for k, v := range matched.MatchedFields {
			fields[k] = v
		}
	}
	return fields
}

func (m *Manager) generateTags(result *engine.DetectionResult) []string {
	var tags []string

	tags = append(tags, "severity:"+result.Severity)
	for _, tactic := range result.MITRETactics {
		tags = append(tags, "attack."+tactic)
	}
	for _, tech := range result.MITRETechniques {
		tags = append(tags, "attack."+tech)
	}

	return tags
}

func (m *Manager) extractSource(events []*pkgevent.Event) AlertSource {
	source := AlertSource{Type: "detection", Engine: "detection-engine"}

	ipSet := make(map[string]bool)
	userSet := make(map[string]bool)

	for _, ev := range events {
		if ip, ok := ev.Data["source_ip"].(string); ok {
			ipSet[ip] = true
		}
		if user, ok := ev.Data["user_name"].(string); ok {
			userSet[user] = true
		}
		if host, ok := ev.Data["host_name"].(string); ok && source.Hostname == "" {
			source.Hostname = host
		}
	}

	for ip := range ipSet {
		source.IPs = append(source.IPs, ip)
	}
	for user := range userSet {
		source.Users = append(source.Users, user)
	}

	return source
}

func (m *Manager) limitEvents(events []*pkgevent.Event) []*pkgevent.Event {
	if len(events) <= m.config.MaxEventsPerAlert {
		return events
	}
	return events[:m.config.MaxEventsPerAlert]
}

// AlertJSON returns the alert as JSON bytes.
func (a *Alert) AlertJSON() ([]byte, error) {
	return json.Marshal(a)
}

// UpdateStatus updates the alert status.
func (a *Alert) UpdateStatus(status AlertStatus) {
	a.Status = status
	a.UpdatedAt = time.Now()

	if status == StatusResolved || status == StatusClosed {
		now := time.Now()
		a.ResolvedAt = &now
	}
}

// AddTag adds a tag to the alert.
func (a *Alert) AddTag(tag string) {
	for _, t := range a.Tags {
		if t == tag {
			return
		}
	}
	a.Tags = append(a.Tags, tag)
}

// HasTechnique checks if the alert involves a specific MITRE technique.
func (a *Alert) HasTechnique(techniqueID string) bool {
	if a.ATTACKMapping == nil {
		return false
	}
	for _, tech := range a.ATTACKMapping.Techniques {
		if tech.ID == techniqueID {
			return true
		}
	}
	return false
}

// HasTactic checks if the alert involves a specific MITRE tactic.
func (a *Alert) HasTactic(tacticName string) bool {
	if a.ATTACKMapping == nil {
		return false
	}
	for _, tactic := range a.ATTACKMapping.Tactics {
		if tactic.ShortName == tacticName || tactic.Name == tacticName {
			return true
		}
	}
	return false
}

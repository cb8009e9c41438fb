package rule

import (
	"context"
	"fmt"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"gopkg.in/yaml.v3"
)

// PostgresRepository adapts repository.DetectionRuleRepository, whose rows
// carry rule definitions as an opaque RuleContent string, onto the Loader's
// RuleRepository interface, which operates on parsed *Rule values.
type PostgresRepository struct {
	rules repository.DetectionRuleRepository
}

func NewPostgresRepository(rules repository.DetectionRuleRepository) *PostgresRepository {
	return &PostgresRepository{rules: rules}
}

func (p *PostgresRepository) GetByID(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	dr, err := p.rules.GetByRuleID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if dr == nil {
		return nil, nil
	}
	return fromDetectionRule(dr)
}

func (p *PostgresRepository) ListEnabled(ctx context.Context, tenantID string) ([]*Rule, error) {
	rows, err := p.rules.ListEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*Rule, 0, len(rows))
	for _, dr := range rows {
		r, err := fromDetectionRule(dr)
		if err != nil {
			return nil, fmt.Errorf("parse stored rule %s: %w", dr.RuleID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *PostgresRepository) Save(ctx context.Context, r *Rule) error {
	dr, err := toDetectionRule(r)
	if err != nil {
		return err
	}
	existing, err := p.rules.GetByRuleID(ctx, r.TenantID, r.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return p.rules.Create(ctx, dr)
	}
	dr.BaseEntity = existing.BaseEntity
	return p.rules.Update(ctx, dr)
}

func (p *PostgresRepository) Delete(ctx context.Context, tenantID, ruleID string) error {
	dr, err := p.rules.GetByRuleID(ctx, tenantID, ruleID)
	if err != nil {
		return err
	}
	if dr == nil {
		return nil
	}
	return p.rules.Delete(ctx, dr.ID)
}

func fromDetectionRule(dr *repository.DetectionRule) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal([]byte(dr.RuleContent), &r); err != nil {
		return nil, fmt.Errorf("unmarshal rule_content: %w", err)
	}
	r.RawContent = dr.RuleContent
	r.ID = dr.RuleID
	r.TenantID = dr.TenantID
	r.Name = dr.Name
	r.Description = dr.Description
	r.Type = RuleType(dr.RuleType)
	r.Severity = dr.Severity
	r.Status = RuleStatus(dr.Status)
	r.IsEnabled = dr.IsEnabled
	r.MITRETactics = dr.MITRETactics
	r.MITRETechniques = dr.MITRETechniques
	r.Tags = dr.Tags
	r.Version = dr.Version
	r.CreatedAt = dr.CreatedAt
	r.UpdatedAt = dr.UpdatedAt
	return &r, nil
}

func toDetectionRule(r *Rule) (*repository.DetectionRule, error) {
	content, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal rule content: %w", err)
	}
	return &repository.DetectionRule{
		TenantEntity: repository.TenantEntity{
			BaseEntity: repository.BaseEntity{ID: r.ID},
			TenantID:   r.TenantID,
		},
		RuleID:          r.ID,
		Name:            r.Name,
		Description:     r.Description,
		RuleType:        string(r.Type),
		Severity:        r.Severity,
		RuleContent:     string(content),
		Status:          string(r.Status),
		IsEnabled:       r.IsEnabled,
		MITRETactics:    r.MITRETactics,
		MITRETechniques: r.MITRETechniques,
		Tags:            r.Tags,
		Version:         r.Version,
	}, nil
}

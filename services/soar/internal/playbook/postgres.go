package playbook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

// PostgresRepository adapts repository.PlaybookRepository, whose rows carry
// a playbook's triggers and actions as an opaque Definition JSON blob, onto
// the Loader's PlaybookRepository interface, which operates on parsed
// *Playbook values.
type PostgresRepository struct {
	playbooks repository.PlaybookRepository
}

func NewPostgresRepository(playbooks repository.PlaybookRepository) *PostgresRepository {
	return &PostgresRepository{playbooks: playbooks}
}

func (p *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*Playbook, error) {
	pb, err := p.playbooks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pb == nil || pb.TenantID != tenantID {
		return nil, nil
	}
	return fromStoredPlaybook(pb)
}

func (p *PostgresRepository) ListEnabled(ctx context.Context, tenantID string) ([]*Playbook, error) {
	rows, err := p.playbooks.ListEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*Playbook, 0, len(rows))
	for _, pb := range rows {
		parsed, err := fromStoredPlaybook(pb)
		if err != nil {
			return nil, fmt.Errorf("parse stored playbook %s: %w", pb.Name, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (p *PostgresRepository) Save(ctx context.Context, pb *Playbook) error {
	stored, err := toStoredPlaybook(pb)
	if err != nil {
		return err
	}
	existing, err := p.playbooks.GetByName(ctx, pb.TenantID, pb.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return p.playbooks.Create(ctx, stored)
	}
	stored.BaseEntity = existing.BaseEntity
	return p.playbooks.Update(ctx, stored)
}

func (p *PostgresRepository) Delete(ctx context.Context, tenantID, id string) error {
	pb, err := p.playbooks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pb == nil || pb.TenantID != tenantID {
		return nil
	}
	return p.playbooks.Delete(ctx, pb.ID)
}

// playbookDefinition is the JSON shape stored in repository.Playbook.Definition.
type playbookDefinition struct {
	Triggers []Condition `json:"triggers"`
	Actions  []Action    `json:"actions"`
}

func fromStoredPlaybook(pb *repository.Playbook) (*Playbook, error) {
	var def playbookDefinition
	raw, err := json.Marshal(pb.Definition)
	if err != nil {
		return nil, fmt.Errorf("re-marshal definition: %w", err)
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}

	return &Playbook{
		ID:          pb.ID,
		Name:        pb.Name,
		DisplayName: pb.DisplayName,
		Description: pb.Description,
		Version:     pb.Version,
		Tags:        pb.Tags,
		Enabled:     pb.IsEnabled,
		TenantID:    pb.TenantID,
		CreatedAt:   pb.CreatedAt,
		UpdatedAt:   pb.UpdatedAt,
		Triggers:    def.Triggers,
		Actions:     def.Actions,
	}, nil
}

func toStoredPlaybook(pb *Playbook) (*repository.Playbook, error) {
	def := playbookDefinition{Triggers: pb.Triggers, Actions: pb.Actions}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	var definition map[string]interface{}
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}

	return &repository.Playbook{
		TenantEntity: repository.TenantEntity{
			BaseEntity: repository.BaseEntity{ID: pb.ID},
			TenantID:   pb.TenantID,
		},
		Name:        pb.Name,
		DisplayName: pb.DisplayName,
		Description: pb.Description,
		Category:    "response",
		Definition:  definition,
		TriggerType: "alert",
		Status:      "ENABLED",
		IsEnabled:   pb.Enabled,
		Version:     pb.Version,
		Tags:        pb.Tags,
	}, nil
}

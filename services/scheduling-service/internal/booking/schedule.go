package booking

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

const (
	changeCreated = "created"
	changeUpdated = "updated"
	changeDeleted = "deleted"
)

type availabilityChangedData struct {
	ProfessionalID string `json:"professional_id"`
	Kind           string `json:"kind"`
	Action         string `json:"action"`
	ID             string `json:"id"`
	Item           any    `json:"item,omitempty"`
}

func (s *Service) availabilityEvent(aggregateType, professionalID, id, action string, item any) (outbox.Event, error) {
	evt, err := outbox.NewEvent(outbox.TypeAvailabilityChanged, aggregateType, id, availabilityChangedData{
		ProfessionalID: professionalID,
		Kind:           aggregateType,
		Action:         action,
		ID:             id,
		Item:           item,
	}, s.now())
	if err != nil {
		return outbox.Event{}, fmt.Errorf("build availability event: %w", err)
	}
	return evt, nil
}

// rejectCollisions enforces that active templates of one professional never
// overlap on the same weekday within intersecting validity periods.
func rejectCollisions(t model.Template) func([]model.Template) error {
	return func(existing []model.Template) error {
		for _, o := range existing {
			if t.Collides(o) {
				return model.Invalid("start_time", fmt.Sprintf("overlaps template %s (%s-%s)", o.ID, o.StartTime, o.EndTime))
			}
		}
		return nil
	}
}

func (s *Service) CreateTemplate(ctx context.Context, t model.Template) (model.Template, error) {
	now := s.now()
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return model.Template{}, err
	}
	evt, err := s.availabilityEvent(outbox.AggregateTemplate, t.ProfessionalID, t.ID, changeCreated, t)
	if err != nil {
		return model.Template{}, err
	}
	if err := s.store.SaveTemplate(ctx, t, rejectCollisions(t), evt); err != nil {
		return model.Template{}, err
	}
	s.invalidate(ctx, t.ProfessionalID)
	s.logger.Info("schedule template created", "template_id", t.ID, "professional_id", t.ProfessionalID)
	return t, nil
}

// UpdateTemplate replaces the editable fields of template id. The owner and
// creation time are kept from the stored row.
func (s *Service) UpdateTemplate(ctx context.Context, id string, t model.Template) (model.Template, error) {
	cur, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return model.Template{}, err
	}
	t.ID = cur.ID
	t.ProfessionalID = cur.ProfessionalID
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now()
	if err := t.Validate(); err != nil {
		return model.Template{}, err
	}
	evt, err := s.availabilityEvent(outbox.AggregateTemplate, t.ProfessionalID, t.ID, changeUpdated, t)
	if err != nil {
		return model.Template{}, err
	}
	if err := s.store.SaveTemplate(ctx, t, rejectCollisions(t), evt); err != nil {
		return model.Template{}, err
	}
	s.invalidate(ctx, t.ProfessionalID)
	s.logger.Info("schedule template updated", "template_id", t.ID, "professional_id", t.ProfessionalID)
	return t, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	cur, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	evt, err := s.availabilityEvent(outbox.AggregateTemplate, cur.ProfessionalID, cur.ID, changeDeleted, nil)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, id, evt); err != nil {
		return err
	}
	s.invalidate(ctx, cur.ProfessionalID)
	s.logger.Info("schedule template deleted", "template_id", id, "professional_id", cur.ProfessionalID)
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (model.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, professionalID string) ([]model.Template, error) {
	if professionalID == "" {
		return nil, model.Invalid("professional_id", "is required")
	}
	return s.store.ListTemplates(ctx, professionalID)
}

func (s *Service) CreateBlock(ctx context.Context, b model.Block) (model.Block, error) {
	b.ID = newID()
	b.CreatedAt = s.now()
	if err := b.Validate(); err != nil {
		return model.Block{}, err
	}
	evt, err := s.availabilityEvent(outbox.AggregateBlock, b.ProfessionalID, b.ID, changeCreated, b)
	if err != nil {
		return model.Block{}, err
	}
	if err := s.store.CreateBlock(ctx, b, evt); err != nil {
		return model.Block{}, err
	}
	s.invalidate(ctx, b.ProfessionalID)
	s.logger.Info("schedule block created",
		"block_id", b.ID,
		"professional_id", b.ProfessionalID,
		"date", b.Date.String(),
		"full_day", b.IsFullDay(),
	)
	return b, nil
}

func (s *Service) DeleteBlock(ctx context.Context, id string) error {
	cur, err := s.store.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	evt, err := s.availabilityEvent(outbox.AggregateBlock, cur.ProfessionalID, cur.ID, changeDeleted, nil)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBlock(ctx, id, evt); err != nil {
		return err
	}
	s.invalidate(ctx, cur.ProfessionalID)
	s.logger.Info("schedule block deleted", "block_id", id, "professional_id", cur.ProfessionalID)
	return nil
}

func (s *Service) GetBlock(ctx context.Context, id string) (model.Block, error) {
	return s.store.GetBlock(ctx, id)
}

// ListBlocks returns the blocks that cover at least one date in [from, to].
func (s *Service) ListBlocks(ctx context.Context, professionalID string, from, to civil.Date) ([]model.Block, error) {
	if professionalID == "" {
		return nil, model.Invalid("professional_id", "is required")
	}
	if to.Before(from) {
		return nil, model.Invalid("to", "must not be before from")
	}
	blocks, err := s.store.ListBlocks(ctx, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	out := blocks[:0]
	for _, b := range blocks {
		if b.CoversAny(from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

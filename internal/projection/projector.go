package projection

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/libs/kafkax"
)

// Upstream event types this service projects into local read tables.
const (
	EventProviderUpserted    = "providers.provider.upserted.v1"
	EventAvailabilityUpdated = "providers.availability.updated.v1"
	EventServiceTypeUpserted = "catalog.service_type.upserted.v1"
)

// Store is the slice of the storage layer the projector writes through.
type Store interface {
	UpsertProvider(ctx context.Context, p model.Provider) error
	ReplaceAvailability(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error
	UpsertServiceType(ctx context.Context, st model.ServiceType) error
}

// Projector applies provider and catalog events to the local projection
// tables. Malformed payloads are logged and dropped; they would fail the
// same way on every redelivery.
type Projector struct {
	repo   Store
	logger *slog.Logger
}

func New(repo Store, logger *slog.Logger) *Projector {
	return &Projector{repo: repo, logger: logger}
}

type providerPayload struct {
	ID                  string   `json:"id"`
	TenantID            string   `json:"tenant_id"`
	Name                string   `json:"name"`
	Kind                string   `json:"kind"`
	SkillTags           []string `json:"skill_tags"`
	AreaTags            []string `json:"area_tags"`
	MaxConcurrent       int      `json:"max_concurrent"`
	TravelBufferMinutes int      `json:"travel_buffer_minutes"`
	Timezone            string   `json:"timezone"`
	Active              bool     `json:"active"`
}

type availabilityPayload struct {
	ProviderID string `json:"provider_id"`
	Windows    []struct {
		Weekday         int  `json:"weekday"`
		StartMinute     int  `json:"start_minute"`
		EndMinute       int  `json:"end_minute"`
		Available       bool `json:"available"`
		MaxAppointments int  `json:"max_appointments"`
	} `json:"windows"`
}

type serviceTypePayload struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	Name            string   `json:"name"`
	DurationMinutes int      `json:"duration_minutes"`
	BufferMinutes   int      `json:"buffer_minutes"`
	RequiresOrder   bool     `json:"requires_order"`
	SkillTags       []string `json:"skill_tags"`
	Active          bool     `json:"active"`
}

// Handle routes a consumed message by its event_type header.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	switch meta.EventType {
	case EventProviderUpserted:
		return p.applyProvider(ctx, msg.Value)
	case EventAvailabilityUpdated:
		return p.applyAvailability(ctx, msg.Value)
	case EventServiceTypeUpserted:
		return p.applyServiceType(ctx, msg.Value)
	default:
		p.logger.Info("ignoring unknown event type", "event_type", meta.EventType)
		return nil
	}
}

func (p *Projector) applyProvider(ctx context.Context, raw []byte) error {
	var payload providerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.Error("invalid provider payload", "err", err)
		return nil
	}
	if payload.ID == "" || payload.TenantID == "" {
		p.logger.Error("provider payload missing id or tenant_id")
		return nil
	}

	return p.repo.UpsertProvider(ctx, model.Provider{
		ID:                  payload.ID,
		TenantID:            payload.TenantID,
		Name:                payload.Name,
		Kind:                model.ProviderKind(payload.Kind),
		SkillTags:           payload.SkillTags,
		AreaTags:            payload.AreaTags,
		MaxConcurrent:       payload.MaxConcurrent,
		TravelBufferMinutes: payload.TravelBufferMinutes,
		Timezone:            payload.Timezone,
		Active:              payload.Active,
	})
}

func (p *Projector) applyAvailability(ctx context.Context, raw []byte) error {
	var payload availabilityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.Error("invalid availability payload", "err", err)
		return nil
	}
	if payload.ProviderID == "" {
		p.logger.Error("availability payload missing provider_id")
		return nil
	}

	windows := make([]model.AvailabilityWindow, 0, len(payload.Windows))
	for _, w := range payload.Windows {
		if w.Weekday < 0 || w.Weekday > 6 {
			p.logger.Error("availability window has invalid weekday", "weekday", w.Weekday, "provider_id", payload.ProviderID)
			continue
		}
		windows = append(windows, model.AvailabilityWindow{
			ProviderID:      payload.ProviderID,
			Weekday:         w.Weekday,
			StartMinute:     w.StartMinute,
			EndMinute:       w.EndMinute,
			Available:       w.Available,
			MaxAppointments: w.MaxAppointments,
		})
	}

	return p.repo.ReplaceAvailability(ctx, payload.ProviderID, windows)
}

func (p *Projector) applyServiceType(ctx context.Context, raw []byte) error {
	var payload serviceTypePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.Error("invalid service type payload", "err", err)
		return nil
	}
	if payload.ID == "" || payload.TenantID == "" {
		p.logger.Error("service type payload missing id or tenant_id")
		return nil
	}
	if payload.DurationMinutes <= 0 {
		p.logger.Error("service type payload has non-positive duration", "id", payload.ID)
		return nil
	}

	return p.repo.UpsertServiceType(ctx, model.ServiceType{
		ID:              payload.ID,
		TenantID:        payload.TenantID,
		Name:            payload.Name,
		DurationMinutes: payload.DurationMinutes,
		BufferMinutes:   payload.BufferMinutes,
		RequiresOrder:   payload.RequiresOrder,
		SkillTags:       payload.SkillTags,
		Active:          payload.Active,
	})
}

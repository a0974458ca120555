package repository

import (
	"context"
	"encoding/json"
	"fmt"

	rabbitpublisher "github.com/newsdesk/notifyd/internal/rabbitProducer"

	"github.com/newsdesk/notifyd/internal/dto"
)

// RabbitRepository is the outbound email transport: jobs go onto the mail
// exchange, routed by purpose. Actual SMTP delivery happens elsewhere.
type RabbitRepository struct {
	publisher *rabbitpublisher.Publisher
}

func NewRabbitRepository(publisher *rabbitpublisher.Publisher) *RabbitRepository {
	return &RabbitRepository{
		publisher: publisher,
	}
}

func (p *RabbitRepository) PublishEmail(ctx context.Context, job *dto.EmailJob) error {
	return p.publish(ctx, job, "email")
}

func (p *RabbitRepository) PublishAuthorNote(ctx context.Context, job *dto.EmailJob) error {
	return p.publish(ctx, job, "author")
}

func (p *RabbitRepository) publish(ctx context.Context, job *dto.EmailJob, routingKey string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("could not marshal email job: %w", err)
	}
	return p.publisher.PublishWithRetry(ctx, body, routingKey)
}

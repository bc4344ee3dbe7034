package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nguthrie/ucp-agent/internal/domain"
	pkgkafka "github.com/nguthrie/ucp-agent/pkg/kafka"
)

// Kafka topics for checkout lifecycle events.
var (
	TopicCheckoutCreated   = pkgkafka.Topic(AggregateTypeCheckout, "created")
	TopicCheckoutCompleted = pkgkafka.Topic(AggregateTypeCheckout, "completed")
)

// Aggregate type constant.
const AggregateTypeCheckout = "checkout"

// Source identifier for events originating from this agent.
const SourceUCPAgent = "ucp-agent"

// CheckoutCreatedData is the payload for a checkout.created event.
type CheckoutCreatedData struct {
	CheckoutID  string            `json:"checkout_id"`
	MerchantURL string            `json:"merchant_url"`
	Currency    string            `json:"currency"`
	LineItems   []domain.LineItem `json:"line_items"`
	Subtotal    int64             `json:"subtotal"`
	Total       int64             `json:"total"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
// Payment details never appear here; only the merchant's order artifact.
type CheckoutCompletedData struct {
	CheckoutID  string `json:"checkout_id"`
	MerchantURL string `json:"merchant_url"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	OrderURL    string `json:"order_url,omitempty"`
	FinalTotal  int64  `json:"final_total"`
}

// Producer publishes checkout lifecycle events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new lifecycle event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutCreated publishes a checkout.created event.
func (p *Producer) PublishCheckoutCreated(ctx context.Context, merchantURL string, session *domain.CheckoutSession) error {
	data := CheckoutCreatedData{
		CheckoutID:  session.CheckoutID,
		MerchantURL: merchantURL,
		Currency:    session.Currency,
		LineItems:   session.LineItems,
		Subtotal:    session.Subtotal,
		Total:       session.Total,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutCreated, session.CheckoutID, AggregateTypeCheckout, SourceUCPAgent, data)
	if err != nil {
		return fmt.Errorf("create checkout.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutCreated, event); err != nil {
		return fmt.Errorf("publish checkout.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.created event",
		slog.String("checkout_id", session.CheckoutID),
		slog.String("merchant_url", merchantURL),
	)

	return nil
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, merchantURL string, session *domain.CheckoutSession) error {
	data := CheckoutCompletedData{
		CheckoutID:  session.CheckoutID,
		MerchantURL: merchantURL,
		Currency:    session.Currency,
		FinalTotal:  session.Total,
	}
	if session.Order != nil {
		data.OrderID = session.Order.OrderID
		data.OrderURL = session.Order.OrderURL
		data.FinalTotal = session.Order.FinalTotal
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutCompleted, session.CheckoutID, AggregateTypeCheckout, SourceUCPAgent, data)
	if err != nil {
		return fmt.Errorf("create checkout.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutCompleted, event); err != nil {
		return fmt.Errorf("publish checkout.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.completed event",
		slog.String("checkout_id", session.CheckoutID),
		slog.String("order_id", data.OrderID),
	)

	return nil
}

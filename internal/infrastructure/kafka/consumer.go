package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// LedgerExecutor is the subset of the ledger service the callback
// consumer drives. Confirmed payment callbacks become deposits.
type LedgerExecutor interface {
	ExecuteDeposit(ctx context.Context, chamaID int64, amount decimal.Decimal, phone, initiator string, status models.StatusType) (*models.Transaction, error)
}

type Consumer struct {
	reader *kafka.Reader
	ledger LedgerExecutor
}

func NewConsumer(brokers []string, topic, groupID string, ledger LedgerExecutor) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		ledger: ledger,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "value", string(msg.Value))

		var event struct {
			ChamaID     int64  `json:"chama_id"`
			Amount      string `json:"amount"`
			PhoneNumber string `json:"phone_number"`
			CheckoutID  string `json:"checkout_id"`
			Status      string `json:"status"`
		}
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal payment callback", "error", err)
			continue
		}

		if event.Status != "Success" {
			slog.Info("skipping unsuccessful payment callback", "checkout_id", event.CheckoutID, "status", event.Status)
			continue
		}

		amount, err := decimal.NewFromString(event.Amount)
		if err != nil {
			slog.Error("invalid amount in payment callback", "amount", event.Amount, "error", err)
			continue
		}

		txn, err := c.ledger.ExecuteDeposit(ctx, event.ChamaID, amount, event.PhoneNumber, "mpesa:"+event.PhoneNumber, models.StatusSimulated)
		if err != nil {
			slog.Error("failed to record callback deposit", "chama_id", event.ChamaID, "checkout_id", event.CheckoutID, "error", err)
			continue
		}

		slog.Info("callback deposit recorded", "chama_id", event.ChamaID, "transaction_id", txn.ID, "provider_ref", txn.ProviderRef)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

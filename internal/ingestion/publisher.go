package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"MarginCore/internal/ledger"
)

// OutboundPublisher publishes settled journals to NATS for downstream
// consumers (risk dashboards, reconciliation). Journals are published after
// persistence is confirmed, under margin.core.journals.{type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan ledger.Journal
}

// journalWire is the outbound JSON shape. Fixed-point amounts are published
// as decimal strings to keep full precision.
type journalWire struct {
	JournalID      string `json:"journal_id"`
	EventRef       string `json:"event_ref"`
	Sequence       int64  `json:"sequence"`
	JournalType    string `json:"journal_type"`
	AccountID      string `json:"account_id"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Asset          uint16 `json:"asset"`
	Market         uint16 `json:"market"`
	Amount         string `json:"amount"`
	Secondary      string `json:"secondary"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan ledger.Journal) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case j, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, j); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", j.Sequence, err)
				// Non-fatal: downstream consumers can read the journal table.
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, j ledger.Journal) error {
	wire := journalWire{
		JournalID:   j.JournalID.String(),
		EventRef:    j.EventRef,
		Sequence:    j.Sequence,
		JournalType: j.JournalType.String(),
		AccountID:   j.AccountID.String(),
		Asset:       uint16(j.Asset),
		Market:      uint16(j.Market),
		Amount:      j.Amount.DecimalString(),
		Secondary:   j.Secondary.DecimalString(),
		TimestampUs: j.Timestamp,
	}
	if j.CounterpartyID != uuid.Nil {
		wire.CounterpartyID = j.CounterpartyID.String()
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	subject := fmt.Sprintf("margin.core.journals.%s", j.JournalType)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound journal stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "MARGIN_CORE_JOURNALS",
		Subjects:  []string{"margin.core.journals.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream MARGIN_CORE_JOURNALS")
	return nil
}

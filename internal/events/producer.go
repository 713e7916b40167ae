package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	OrderDispatchedTopic = "order.dispatched"
)

// OrderDispatchedEvent is the audit record published after a notification
// is successfully handed to the email transport. It intentionally omits
// attachment bytes and contact details beyond the name.
type OrderDispatchedEvent struct {
	OrderNumber  string    `json:"order_number"`
	CustomerName string    `json:"customer_name"`
	ItemCount    int       `json:"item_count"`
	TotalAmount  string    `json:"total_amount"`
	Currency     string    `json:"currency"`
	DispatchedAt time.Time `json:"dispatched_at"`
	EventTime    time.Time `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer([]string{brokers}, config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}, nil
}

func (p *KafkaProducer) PublishOrderDispatched(event OrderDispatchedEvent) error {
	event.EventTime = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: OrderDispatchedTopic,
		Key:   sarama.StringEncoder(event.OrderNumber),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":        OrderDispatchedTopic,
		"partition":    partition,
		"offset":       offset,
		"order_number": event.OrderNumber,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

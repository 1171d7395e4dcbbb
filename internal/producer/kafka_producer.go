package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type StockAlertProducer struct {
	writer *kafka.Writer
}

func NewStockAlertProducer(brokers []string, topic string) *StockAlertProducer {
	return &StockAlertProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type LowStockMessage struct {
	ItemID     int64 `json:"item_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int64 `json:"quantity"`
}

func (p *StockAlertProducer) NotifyLowStock(ctx context.Context, itemID, locationID, quantity int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(LowStockMessage{
		ItemID:     itemID,
		LocationID: locationID,
		Quantity:   quantity,
	})
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%d:%d", itemID, locationID)
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *StockAlertProducer) Close() error {
	return p.writer.Close()
}

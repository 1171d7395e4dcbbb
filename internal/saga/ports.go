package saga

import "context"

// LowStockThreshold — порог, ниже которого после списания уходит алерт.
const LowStockThreshold = 10

// Notifier — fire-and-forget уведомления. Ошибки логируются,
// корректность саги от них не зависит.
type Notifier interface {
	NotifyLowStock(ctx context.Context, itemID, locationID, quantity int64) error
}

// NopNotifier используется, когда kafka не сконфигурирована.
type NopNotifier struct{}

func (NopNotifier) NotifyLowStock(ctx context.Context, itemID, locationID, quantity int64) error {
	return nil
}

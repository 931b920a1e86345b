package metrics

import "github.com/snapvault/vaultkeeper/internal/events"

// SubscribeBroker drives the chain/reclaim counters off a running
// events.Broker, so the registered counters reflect lifecycle activity without
// every caller threading a counter increment through by hand.
func SubscribeBroker(b *events.Broker) {
	sub := b.Subscribe()
	go func() {
		for ev := range sub {
			switch ev.Type {
			case events.ChainAcquired:
				ChainAcquireTotal.WithLabelValues(ev.Detail, "ok").Inc()
			case events.StorageRecycled:
				ReclaimWorkItemsTotal.WithLabelValues("delete", "ok").Inc()
			case events.StorageMerged:
				ReclaimWorkItemsTotal.WithLabelValues("merge", "ok").Inc()
			}
		}
	}()
}

package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCartCreated        = "cart.created"
	TopicCartItemAdded      = "cart.item_added"
	TopicCartItemUpdated    = "cart.item_updated"
	TopicCartItemRemoved    = "cart.item_removed"
	TopicCartCleared        = "cart.cleared"
	TopicCartMethodsChanged = "cart.methods_changed"
	TopicCartVoucherApplied = "cart.voucher_applied"
	TopicCartVoucherRemoved = "cart.voucher_removed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicCartCreated,
		TopicCartItemAdded,
		TopicCartItemUpdated,
		TopicCartItemRemoved,
		TopicCartCleared,
		TopicCartMethodsChanged,
		TopicCartVoucherApplied,
		TopicCartVoucherRemoved,
	}
}

package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	// EventUserActivated fires when a user's balance crosses the minimum
	// trading balance upward.
	EventUserActivated Event = "user.activated"
	// EventUserDeactivated fires when a user's balance crosses the minimum
	// trading balance downward.
	EventUserDeactivated Event = "user.deactivated"
	// EventTradeSucceeded fires when a trade is submitted and confirmed.
	EventTradeSucceeded Event = "trade.succeeded"
	// EventTradeFailed fires when a trade submission, signing, or
	// confirmation step fails.
	EventTradeFailed Event = "trade.failed"
	// EventUserError fires when the scheduler recovers a panic while
	// processing one user. Strategy errors and RPC errors are logged, not
	// published on this topic.
	EventUserError Event = "user.error"
	// EventRateLimitBackoff fires when the RPC gate signals the scheduler
	// to widen its cycle interval.
	EventRateLimitBackoff Event = "ratelimit.backoff"
)

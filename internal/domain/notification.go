package domain

import "time"

// Notification types emitted by this module. Delivery is handled by an
// external collaborator; this module only produces the payload.
const (
	NotificationBidAccepted            = "bid.accepted"
	NotificationBidOutbid              = "bid.outbid"
	NotificationAuctionSold            = "auction.sold"
	NotificationEscrowUpdated          = "escrow.updated"
	NotificationSharesPurchased        = "shares.purchased"
	NotificationSubscriptionRenewed    = "subscription.renewed"
	NotificationSubscriptionDowngraded = "subscription.downgraded"
)

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

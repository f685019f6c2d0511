package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

// SeedDemo fills the catalog with a few fixed-price and auction items for
// local runs with STORE_DRIVER=memory.
func SeedDemo(s *Store, now time.Time) []market.Item {
	endSoon := now.Add(2 * time.Hour)
	endLater := now.Add(72 * time.Hour)
	items := []market.Item{
		{Name: "Vintage Desk Lamp", Price: decimal.RequireFromString("10.00"), Quantity: 12, Active: true, Seller: "lumen-co",
			Images: []string{"https://images.example.com/lamp.jpg"}},
		{Name: "Ceramic Mug Set", Price: decimal.RequireFromString("5.50"), Quantity: 40, Active: true, Seller: "kiln-house",
			Images: []string{"https://images.example.com/mugs.jpg"}},
		{Name: "Mechanical Keyboard", Price: decimal.RequireFromString("89.99"), Quantity: 3, Active: true, Seller: "clack"},
		{Name: "1967 Rangefinder Camera", Price: decimal.RequireFromString("150.00"), Quantity: 1, Active: true, Seller: "oldglass",
			IsAuction: true, AuctionEndsAt: &endSoon},
		{Name: "Signed Vinyl Record", Price: decimal.RequireFromString("40.00"), Quantity: 1, Active: true, Seller: "grooves",
			IsAuction: true, AuctionEndsAt: &endLater},
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
		s.PutItem(items[i])
	}
	return items
}

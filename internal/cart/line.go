package cart

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// KeyPrefix namespaces persisted carts by owning identity.
const KeyPrefix = "cart"

// Item is the menu item a customer adds. Descriptive fields are snapshotted
// into the line on first add.
type Item struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Category  string          `json:"category,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	ShopID    string          `json:"shopId,omitempty"`
}

// Line is one entry of a cart.
type Line struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	ShopID    string          `json:"shopId,omitempty"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func lineFromItem(item Item) Line {
	return Line{
		ItemID:    item.ItemID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  1,
		Category:  item.Category,
		ImageURL:  item.ImageURL,
		ShopID:    item.ShopID,
	}
}

func identityKey(userID string) string {
	return KeyPrefix + ":" + userID
}

func encodeLines(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeLines parses a persisted cart. ok is false when the record is
// malformed and must be treated as empty.
func decodeLines(raw string) ([]Line, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, false
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.ItemID == "" || l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return nil, false
		}
		if _, dup := seen[l.ItemID]; dup {
			return nil, false
		}
		seen[l.ItemID] = struct{}{}
	}
	return lines, true
}

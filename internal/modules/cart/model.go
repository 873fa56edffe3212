package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single cart row.
const MaxQuantity = 99

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrInvalidSession  = errors.New("invalid cart session")
	ErrItemNotFound    = errors.New("item not in cart")
	ErrUnavailable     = errors.New("drug is not available for purchase")
	ErrEmptyCart       = errors.New("cart is empty")
)

// Item is one cart row. Quantity is always between 1 and MaxQuantity.
type Item struct {
	DrugID    int64           `json:"drug_id"`
	Name      string          `json:"name"`
	Batch     string          `json:"batch,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a session's shopping cart. Prices are in USD.
type Cart struct {
	SessionID string    `json:"session_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Add appends item, or increments the quantity of an existing row. The
// resulting row may not exceed MaxQuantity.
func (c *Cart) Add(item Item) error {
	if item.Quantity < 1 || item.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].DrugID == item.DrugID {
			if item.Quantity > MaxQuantity-c.Items[i].Quantity {
				return ErrInvalidQuantity
			}
			c.Items[i].Quantity += item.Quantity
			c.touch()
			return nil
		}
	}
	c.Items = append(c.Items, item)
	c.touch()
	return nil
}

// SetQuantity sets a row's quantity; anything below 1 removes the row.
func (c *Cart) SetQuantity(drugID int64, qty int) error {
	if qty < 1 {
		return c.Remove(drugID)
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].DrugID == drugID {
			c.Items[i].Quantity = qty
			c.touch()
			return nil
		}
	}
	return ErrItemNotFound
}

func (c *Cart) Remove(drugID int64) error {
	for i := range c.Items {
		if c.Items[i].DrugID == drugID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch()
			return nil
		}
	}
	return ErrItemNotFound
}

// Deduct subtracts paid quantities per drug, dropping rows that reach zero.
// Rows added or raised after payment keep the unpaid remainder.
func (c *Cart) Deduct(paid map[int64]int) {
	kept := c.Items[:0]
	for _, it := range c.Items {
		it.Quantity -= paid[it.DrugID]
		if it.Quantity > 0 {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	c.touch()
}

func (c *Cart) Clear() {
	c.Items = nil
	c.touch()
}

// Total is the sum of unit price times quantity over all rows.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) touch() { c.UpdatedAt = time.Now().UTC() }

// View is the JSON shape returned to clients, with derived totals.
type View struct {
	SessionID string          `json:"session_id"`
	Items     []ItemView      `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ItemView struct {
	Item
	LineTotal decimal.Decimal `json:"line_total"`
}

func (c *Cart) View() View {
	items := make([]ItemView, len(c.Items))
	for i, it := range c.Items {
		items[i] = ItemView{Item: it, LineTotal: it.LineTotal()}
	}
	return View{
		SessionID: c.SessionID,
		Items:     items,
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}

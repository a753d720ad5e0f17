// Package notify is the presentation bridge: it turns board mutations
// into render events for the host display layer. Delivery is
// fire-and-forget; a failed render never reaches the transaction engine.
package notify

import (
	"fmt"

	"github.com/zooml/survmarket/internal/domain"
)

// SignText renders the sign copy for a listing. The displayed quantity
// is the real listed quantity, never a placeholder.
func SignText(l *domain.Listing) string {
	name := fmt.Sprintf("Item #%d", l.Item.TypeID)
	if l.Item.Prefix > 0 {
		name = fmt.Sprintf("%s (prefix %d)", name, l.Item.Prefix)
	}
	if l.Item.Stack > 1 {
		name = fmt.Sprintf("%s ×%d", name, l.Item.Stack)
	}
	return fmt.Sprintf("%s\nPrice %s\nSeller %s\n______________________\nTap the sign to buy.",
		name, domain.FormatCoins(l.Price), l.OwnerID)
}

// EmptySignText is shown on slots with nothing for sale.
const EmptySignText = "Not for sale."

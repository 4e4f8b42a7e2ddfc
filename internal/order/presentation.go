package order

import "github.com/Skotchmaster/storefront/internal/models"

// Presentation is how a status is shown to people. Color is an ANSI SGR
// foreground code.
type Presentation struct {
	Label string
	Color string
	Icon  string
}

var presentations = [...]Presentation{
	models.StatusPendingPayment: {Label: "Pending payment", Color: "33", Icon: "⏳"},
	models.StatusConfirmed:      {Label: "Confirmed", Color: "36", Icon: "✔"},
	models.StatusShipping:       {Label: "Shipping", Color: "34", Icon: "🚚"},
	models.StatusDelivered:      {Label: "Delivered", Color: "32", Icon: "📦"},
	models.StatusCancelled:      {Label: "Cancelled", Color: "31", Icon: "✖"},
}

var _ = [1]struct{}{}[len(presentations)-models.NumStatuses]

func Present(s models.OrderStatus) Presentation {
	if !s.Valid() {
		return Presentation{Label: s.String(), Color: "37", Icon: "?"}
	}
	return presentations[s]
}

// Colorize wraps text in the status color.
func (p Presentation) Colorize(text string) string {
	return "\x1b[" + p.Color + "m" + text + "\x1b[0m"
}

package order

import (
	"slices"

	"github.com/Skotchmaster/storefront/internal/models"
)

// nextStatuses lists the targets offered to an admin for each current status.
// The backend enforces its own table; this one only shapes what is offered.
var nextStatuses = [...][]models.OrderStatus{
	models.StatusPendingPayment: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:      {models.StatusShipping, models.StatusCancelled},
	models.StatusShipping:       {models.StatusDelivered},
	models.StatusDelivered:      {},
	models.StatusCancelled:      {},
}

var _ = [1]struct{}{}[len(nextStatuses)-models.NumStatuses]

// NextStatuses returns the statuses an order in s may be moved to.
func NextStatuses(s models.OrderStatus) []models.OrderStatus {
	if !s.Valid() {
		return nil
	}
	return slices.Clone(nextStatuses[s])
}

func CanTransition(from, to models.OrderStatus) bool {
	if !from.Valid() {
		return false
	}
	return slices.Contains(nextStatuses[from], to)
}

package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

// OrderToResponse leaves out the customer document and the full address.
func OrderToResponse(item *entity.Order, items []entity.OrderItem) *types.Order {
	if item == nil {
		return nil
	}

	out := &types.Order{
		ID:                 item.ID,
		ClientID:           item.ClientID,
		GatewayID:          item.GatewayID,
		AmountCents:        item.AmountCents,
		PaymentStatus:      item.PaymentStatus,
		Status:             item.Status,
		CustomerName:       item.CustomerName,
		CustomerEmail:      item.CustomerEmail,
		City:               item.City,
		HasShippingAddress: item.HasShippingAddress,
		EmailSent:          item.EmailSent,
		CreatedAt:          item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          item.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if item.PaymentID != nil {
		out.PaymentID = *item.PaymentID
	}
	if item.TrackingCode != nil {
		out.TrackingCode = *item.TrackingCode
	}
	if item.FulfillmentNote != nil {
		out.FulfillmentNote = *item.FulfillmentNote
	}
	for _, it := range items {
		out.Items = append(out.Items, types.OrderItem{
			Name:        it.Name,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			WeightGrams: it.WeightGrams,
		})
	}
	return out
}

func OrdersToResponse(items []*entity.Order) []*types.Order {
	result := make([]*types.Order, 0, len(items))
	for _, item := range items {
		result = append(result, OrderToResponse(item, nil))
	}
	return result
}

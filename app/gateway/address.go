package gateway

import (
	"math"
	"strings"
)

type Address struct {
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
	Country      string `json:"country,omitempty"`
}

// IsComplete reports whether the address can receive a shipment.
func (a *Address) IsComplete() bool {
	return a != nil && strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != ""
}

func (a *Address) String() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	street := strings.TrimSpace(a.Street)
	if a.Number != "" {
		street += ", " + a.Number
	}
	for _, p := range []string{street, a.Complement, a.Neighborhood, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}

// NormalizeAddress reads an address block written with any of the known
// provider aliases. Country defaults to BR.
func NormalizeAddress(raw map[string]any) *Address {
	if raw == nil {
		return nil
	}
	country := firstString(raw, "country", "country_code", "pais")
	if country == "" {
		country = "BR"
	}
	return &Address{
		Street:       firstString(raw, "street", "street_name", "logradouro", "address_line_1", "address1"),
		Number:       firstStringOrNumber(raw, "number", "street_number", "streetNumber", "numero"),
		Complement:   firstString(raw, "complement", "complemento", "address_line_2", "address2"),
		Neighborhood: firstString(raw, "neighborhood", "district", "bairro"),
		City:         firstString(raw, "city", "cidade"),
		State:        firstString(raw, "state", "state_code", "estado", "uf", "province"),
		ZipCode:      firstStringOrNumber(raw, "zip_code", "postal_code", "cep", "zipCode", "zip"),
		Country:      country,
	}
}

func firstStringOrNumber(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(m[k]); s != "" {
			return s
		}
	}
	return ""
}

const (
	defaultItemName     = "Serviço de Transporte"
	defaultItemCategory = "logistica"
)

// NormalizeItems collects order items from any of the known product arrays.
// When no item carries a price, totalCents is spread across items by
// quantity with the rounding remainder added to the first item. When no
// items exist a single logistics item worth totalCents is returned.
func NormalizeItems(payload map[string]any, totalCents int64) []Item {
	items := make([]Item, 0)
	arrays := [][]any{
		asSlice(payload["products"]),
		asSlice(payload["items"]),
		asSlice(payload["order_products"]),
		asSlice(payload["line_items"]),
		asSlice(asMap(payload["cart"])["items"]),
	}
	for _, arr := range arrays {
		for _, raw := range arr {
			m := asMap(raw)
			if m == nil {
				continue
			}
			name := firstString(m, "name", "product_title", "nome", "title")
			if name == "" {
				name = "Produto"
			}
			qty := int(firstNumber(m, "quantity", "qty", "quantidade"))
			if qty <= 0 {
				qty = 1
			}
			items = append(items, Item{
				Name:        name,
				Description: firstString(m, "description", "product_description", "descricao"),
				SKU:         firstStringOrNumber(m, "sku", "code", "codigo_produto", "product_code"),
				Brand:       firstString(m, "brand", "marca"),
				Category:    firstString(m, "category", "categoria", "product_category"),
				Quantity:    qty,
				UnitPrice: int64(math.Round(firstNumber(m, "price", "unit_value", "valor_unitario", "unit_price",
					"valor", "preco", "amount", "value"))),
				WeightGrams: int(firstNumber(m, "weight", "peso_gramas", "weight_grams", "grams")),
			})
		}
	}

	if len(items) == 0 {
		return []Item{{
			Name:        defaultItemName,
			Description: "Serviço de entrega e logística",
			Category:    defaultItemCategory,
			Quantity:    1,
			UnitPrice:   totalCents,
		}}
	}

	var priced int64
	var totalQty int
	for _, it := range items {
		priced += it.UnitPrice * int64(it.Quantity)
		totalQty += it.Quantity
	}
	if priced != 0 || totalCents <= 0 || totalQty <= 0 {
		return items
	}

	var distributed int64
	for i := range items {
		share := float64(totalCents) * float64(items[i].Quantity) / float64(totalQty)
		items[i].UnitPrice = int64(math.Round(share / float64(items[i].Quantity)))
		distributed += items[i].UnitPrice * int64(items[i].Quantity)
	}
	if diff := totalCents - distributed; diff != 0 {
		i := singleUnitLine(items)
		if i < 0 {
			// every line has several units: split one off to carry the remainder
			split := items[0]
			split.Quantity = 1
			items[0].Quantity--
			items = append(items, split)
			i = len(items) - 1
		}
		items[i].UnitPrice += diff
	}
	return items
}

func singleUnitLine(items []Item) int {
	for i, it := range items {
		if it.Quantity == 1 {
			return i
		}
	}
	return -1
}

// ItemsTotal sums unit price times quantity.
func ItemsTotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}

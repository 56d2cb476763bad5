package api

import (
	"net/http"
	"net/url"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// InventoryFilter narrows inventory listings. Not every field applies to every list.
type InventoryFilter struct {
	Item     int    `json:"item,omitempty"`
	Location int    `json:"location,omitempty"`
	Property int    `json:"property,omitempty"`
	Category string `json:"category,omitempty"`
	LowStock *bool  `json:"low_stock,omitempty"`
	Search   string `json:"search,omitempty"`
	Page     int    `json:"page,omitempty"`
}

func (f InventoryFilter) values() url.Values {
	return transport.Values(
		"item", itoa(f.Item),
		"location", itoa(f.Location),
		"property", itoa(f.Property),
		"category", f.Category,
		"low_stock", boolParam(f.LowStock),
		"search", f.Search,
		"page", itoa(f.Page),
	)
}

// StockAdjustment sets a stock record to a counted quantity.
type StockAdjustment struct {
	StockID  int    `json:"-"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

var (
	Locations = crud[domain.Location, InventoryFilter, domain.Location](
		"Locations", "/inventory/locations/", TagLocation,
		InventoryFilter.values,
		func(l domain.Location) int { return l.ID },
	)
	Items = crud[domain.Item, InventoryFilter, domain.Item](
		"Items", "/inventory/items/", TagItem,
		InventoryFilter.values,
		func(i domain.Item) int { return i.ID },
	)
	Stock = crud[domain.Stock, InventoryFilter, domain.Stock](
		"Stock", "/inventory/stock/", TagStock,
		InventoryFilter.values,
		func(s domain.Stock) int { return s.ID },
	)
	PropertyInventory = crud[domain.PropertyInventory, InventoryFilter, domain.PropertyInventory](
		"PropertyInventory", "/inventory/property-inventory/", TagPropertyInventory,
		InventoryFilter.values,
		func(p domain.PropertyInventory) int { return p.ID },
	)
	Movements = func() CRUD[domain.StockMovement, InventoryFilter, domain.StockMovement] {
		r := crud[domain.StockMovement, InventoryFilter, domain.StockMovement](
			"Movements", "/inventory/movements/", TagMovement,
			InventoryFilter.values,
			func(m domain.StockMovement) int { return m.ID },
		)
		// A movement changes quantities wherever it lands.
		r.Create = also(r.Create, cache.List(TagStock), cache.List(TagPropertyInventory))
		return r
	}()

	AdjustStock = Mutation[StockAdjustment, domain.Stock]{
		Name: "adjustStock",
		Request: func(a StockAdjustment) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: itemPath("/inventory/stock/", a.StockID) + "adjust/", Body: a}
		},
		Invalidates: func(a StockAdjustment, _ domain.Stock) []cache.Tag {
			return []cache.Tag{cache.List(TagStock), idTag(TagStock, a.StockID), cache.List(TagMovement)}
		},
	}
)

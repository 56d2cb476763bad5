package domain

import "time"

// Location is a storage place for inventory (store room, property closet, ...).
type Location struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Property    *int   `json:"property,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item is a catalog entry of consumables or equipment.
type Item struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	SKU          string `json:"sku,omitempty"`
	Category     string `json:"category,omitempty"`
	Unit         string `json:"unit,omitempty"`
	ReorderLevel int    `json:"reorder_level"`
	UnitCost     Amount `json:"unit_cost,omitempty"`
}

// Stock is the quantity of an item held at a location.
type Stock struct {
	ID       int    `json:"id"`
	Item     int    `json:"item"`
	ItemName string `json:"item_name,omitempty"`
	Location int    `json:"location"`
	Quantity int    `json:"quantity"`
	LowStock bool   `json:"low_stock"`
}

// PropertyInventory is an item assigned to a property.
type PropertyInventory struct {
	ID        int    `json:"id"`
	Property  int    `json:"property"`
	Item      int    `json:"item"`
	ItemName  string `json:"item_name,omitempty"`
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition,omitempty"`
}

// MovementKind is the direction of a stock movement.
type MovementKind string

const (
	MovementIn       MovementKind = "in"
	MovementOut      MovementKind = "out"
	MovementTransfer MovementKind = "transfer"
	MovementAdjust   MovementKind = "adjustment"
)

// StockMovement records a quantity change between locations or properties.
type StockMovement struct {
	ID           int          `json:"id"`
	Item         int          `json:"item"`
	Kind         MovementKind `json:"movement_type"`
	Quantity     int          `json:"quantity"`
	FromLocation *int         `json:"from_location,omitempty"`
	ToLocation   *int         `json:"to_location,omitempty"`
	Property     *int         `json:"property,omitempty"`
	Note         string       `json:"note,omitempty"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
}

package fakeapi

import (
	"fmt"
	"net/http"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
)

// collection is a loosely typed resource kept as JSON objects. Hooks and
// actions run with s.mu held.
type collection struct {
	prefix       string
	kind         string
	perm         string
	publicCreate bool
	required     []string
	defaults     map[string]any
	// refs maps a field to the collection (or "bookings", "properties") its id must exist in.
	refs    map[string]string
	prepare func(s *Server, rec map[string]any)
	created func(s *Server, rec map[string]any) string
	actions map[string]actionFunc
	records map[int]map[string]any
}

// actionFunc returns the response body, or a non-empty problem for a 400.
type actionFunc func(s *Server, rec map[string]any, body map[string]any) (any, string)

const (
	prefixContact   = "/inquiries/contact/"
	prefixInquiry   = "/inquiries/property/"
	prefixLocations = "/inventory/locations/"
	prefixItems     = "/inventory/items/"
	prefixStock     = "/inventory/stock/"
	prefixPropInv   = "/inventory/property-inventory/"
	prefixMovements = "/inventory/movements/"
	prefixDisputes  = "/disputes/"
	prefixCalendars = "/external-calendars/"
)

func (s *Server) registerCollections() {
	inquiryActions := map[string]actionFunc{
		"mark_read": func(s *Server, rec, _ map[string]any) (any, string) {
			rec["is_read"] = true
			return rec, ""
		},
		"mark_responded": func(s *Server, rec, _ map[string]any) (any, string) {
			rec["is_read"] = true
			rec["is_responded"] = true
			rec["responded_at"] = s.now().UTC()
			return rec, ""
		},
	}
	add := func(c *collection) {
		c.records = make(map[int]map[string]any)
		s.collections[c.prefix] = c
	}

	add(&collection{
		prefix: prefixContact, kind: "contact_inquiry", perm: auth.PermManageInquiries, publicCreate: true,
		required: []string{"name", "email", "message"},
		defaults: map[string]any{"is_read": false, "is_responded": false},
		actions:  inquiryActions,
	})
	add(&collection{
		prefix: prefixInquiry, kind: "property_inquiry", perm: auth.PermManageInquiries, publicCreate: true,
		required: []string{"property", "name", "email", "message"},
		defaults: map[string]any{"is_read": false, "is_responded": false},
		refs:     map[string]string{"property": "properties"},
		actions:  inquiryActions,
	})
	add(&collection{
		prefix: prefixLocations, kind: "location", perm: auth.PermManageInventory,
		required: []string{"name"},
	})
	add(&collection{
		prefix: prefixItems, kind: "item", perm: auth.PermManageInventory,
		required: []string{"name"},
		defaults: map[string]any{"reorder_level": 0},
	})
	add(&collection{
		prefix: prefixStock, kind: "stock", perm: auth.PermManageInventory,
		required: []string{"item", "location"},
		defaults: map[string]any{"quantity": 0},
		refs:     map[string]string{"item": prefixItems, "location": prefixLocations},
		prepare:  (*Server).prepareStock,
		actions:  map[string]actionFunc{"adjust": (*Server).adjustStock},
	})
	add(&collection{
		prefix: prefixPropInv, kind: "property_inventory", perm: auth.PermManageInventory,
		required: []string{"property", "item"},
		defaults: map[string]any{"quantity": 0},
		refs:     map[string]string{"property": "properties", "item": prefixItems},
		prepare: func(s *Server, rec map[string]any) {
			rec["item_name"] = s.itemName(intField(rec, "item"))
		},
	})
	add(&collection{
		prefix: prefixMovements, kind: "stock_movement", perm: auth.PermManageInventory,
		required: []string{"item", "movement_type", "quantity"},
		refs:     map[string]string{"item": prefixItems},
		created:  (*Server).applyMovement,
	})
	add(&collection{
		prefix: prefixDisputes, kind: "dispute", perm: auth.PermManageDisputes,
		required: []string{"booking", "reason"},
		defaults: map[string]any{"status": "open"},
		refs:     map[string]string{"booking": "bookings"},
		actions: map[string]actionFunc{
			"resolve": func(s *Server, rec, body map[string]any) (any, string) {
				res, _ := body["resolution"].(string)
				if strings.TrimSpace(res) == "" {
					return nil, "A resolution is required."
				}
				if rec["status"] == "resolved" {
					return nil, "Dispute is already resolved."
				}
				rec["status"] = "resolved"
				rec["resolution"] = res
				rec["resolved_at"] = s.now().UTC()
				return rec, ""
			},
		},
	})
	add(&collection{
		prefix: prefixCalendars, kind: "external_calendar", perm: auth.PermManageCalendars,
		required: []string{"property", "name", "url"},
		defaults: map[string]any{"is_active": true, "sync_status": "never"},
		refs:     map[string]string{"property": "properties"},
		actions:  map[string]actionFunc{"sync": (*Server).syncCalendar},
	})
}

func (s *Server) collectionHandler(c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api"+c.prefix)
		if !(rest == "" && r.Method == http.MethodPost && c.publicCreate) && !s.require(w, r, c.perm) {
			return
		}
		if rest == "" {
			switch r.Method {
			case http.MethodGet:
				s.listCollection(w, r, c)
			case http.MethodPost:
				s.createInCollection(w, r, c)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
			return
		}
		id, action, ok := splitID(rest)
		if !ok {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		switch {
		case action != "":
			fn, found := c.actions[action]
			if !found {
				writeError(w, http.StatusNotFound, "Not found.")
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			s.runAction(w, r, c, id, action, fn)
		case r.Method == http.MethodGet:
			s.mu.Lock()
			rec, found := c.records[id]
			s.mu.Unlock()
			if !found {
				writeError(w, http.StatusNotFound, "Not found.")
				return
			}
			writeJSON(w, http.StatusOK, rec)
		case r.Method == http.MethodPatch || r.Method == http.MethodPut:
			s.patchInCollection(w, r, c, id)
		case r.Method == http.MethodDelete:
			s.deleteRecord(w, r, id, c.kind, func() bool {
				_, found := c.records[id]
				delete(c.records, id)
				return found
			})
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	}
}

func (s *Server) listCollection(w http.ResponseWriter, r *http.Request, c *collection) {
	s.mu.Lock()
	var results []any
	for _, id := range sortedIDs(c.records) {
		rec := c.records[id]
		if matches(rec, r.URL.Query()) {
			results = append(results, rec)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}

func (s *Server) createInCollection(w http.ResponseWriter, r *http.Request, c *collection) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delete(body, "id")

	s.mu.Lock()
	errs := fieldErrors{}
	for _, field := range c.required {
		if v, ok := body[field]; !ok || v == nil || v == "" {
			errs.add(field, "This field is required.")
		}
	}
	s.checkRefs(errs, c, body)
	if len(errs) > 0 {
		s.mu.Unlock()
		errs.write(w)
		return
	}
	for k, v := range c.defaults {
		if _, ok := body[k]; !ok {
			body[k] = v
		}
	}
	id := s.nextID()
	body["id"] = id
	body["created_at"] = s.now().UTC()
	if c.prepare != nil {
		c.prepare(s, body)
	}
	problem := ""
	if c.created != nil {
		problem = c.created(s, body)
	}
	if problem == "" {
		c.records[id] = body
	}
	s.mu.Unlock()

	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	s.recordRequest(r, "create", c.kind, id, "")
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) patchInCollection(w http.ResponseWriter, r *http.Request, c *collection, id int) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delete(body, "id")
	delete(body, "created_at")

	s.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	errs := fieldErrors{}
	s.checkRefs(errs, c, body)
	if len(errs) > 0 {
		s.mu.Unlock()
		errs.write(w)
		return
	}
	for k, v := range body {
		rec[k] = v
	}
	if c.prepare != nil {
		c.prepare(s, rec)
	}
	s.mu.Unlock()

	s.recordRequest(r, "update", c.kind, id, "")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request, c *collection, id int, action string, fn actionFunc) {
	body := map[string]any{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	out, problem := fn(s, rec, body)
	s.mu.Unlock()

	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	s.recordRequest(r, action, c.kind, id, "")
	writeJSON(w, http.StatusOK, out)
}

// checkRefs requires s.mu.
func (s *Server) checkRefs(errs fieldErrors, c *collection, body map[string]any) {
	for field, target := range c.refs {
		v, ok := body[field]
		if !ok || v == nil {
			continue
		}
		id := intField(body, field)
		if !s.exists(target, id) {
			errs.add(field, fmt.Sprintf("Invalid pk \"%v\" - object does not exist.", v))
		}
	}
}

// exists requires s.mu.
func (s *Server) exists(target string, id int) bool {
	switch target {
	case "bookings":
		_, ok := s.bookings[id]
		return ok
	case "properties":
		_, ok := s.properties[id]
		return ok
	}
	c, ok := s.collections[target]
	if !ok {
		return false
	}
	_, ok = c.records[id]
	return ok
}

func intField(rec map[string]any, key string) int {
	switch v := rec[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// --- inventory hooks ---

func (s *Server) itemName(id int) string {
	if item, ok := s.collections[prefixItems].records[id]; ok {
		name, _ := item["name"].(string)
		return name
	}
	return ""
}

func (s *Server) prepareStock(rec map[string]any) {
	item := intField(rec, "item")
	rec["item_name"] = s.itemName(item)
	reorder := 0
	if it, ok := s.collections[prefixItems].records[item]; ok {
		reorder = intField(it, "reorder_level")
	}
	rec["low_stock"] = intField(rec, "quantity") <= reorder
}

// stockAt finds the stock record for item at location, creating an empty one.
func (s *Server) stockAt(item, location int) map[string]any {
	stock := s.collections[prefixStock]
	for _, id := range sortedIDs(stock.records) {
		rec := stock.records[id]
		if intField(rec, "item") == item && intField(rec, "location") == location {
			return rec
		}
	}
	id := s.nextID()
	rec := map[string]any{"id": id, "item": item, "location": location, "quantity": 0, "created_at": s.now().UTC()}
	stock.records[id] = rec
	return rec
}

func (s *Server) moveStock(rec map[string]any, delta int) {
	rec["quantity"] = intField(rec, "quantity") + delta
	s.prepareStock(rec)
}

// applyMovement books a new movement against stock levels.
func (s *Server) applyMovement(m map[string]any) string {
	item := intField(m, "item")
	qty := intField(m, "quantity")
	if qty <= 0 {
		return "Quantity must be positive."
	}
	from, to := intField(m, "from_location"), intField(m, "to_location")
	for _, loc := range []int{from, to} {
		if loc != 0 && !s.exists(prefixLocations, loc) {
			return fmt.Sprintf("Location %d does not exist.", loc)
		}
	}
	kind := domain.MovementKind(fmt.Sprint(m["movement_type"]))
	switch kind {
	case domain.MovementIn:
		if to == 0 {
			return "to_location is required for stock in."
		}
		s.moveStock(s.stockAt(item, to), qty)
	case domain.MovementOut:
		if from == 0 {
			return "from_location is required for stock out."
		}
		src := s.stockAt(item, from)
		if intField(src, "quantity") < qty {
			return "Insufficient stock."
		}
		s.moveStock(src, -qty)
	case domain.MovementTransfer:
		if from == 0 || to == 0 {
			return "Transfers need both from_location and to_location."
		}
		src := s.stockAt(item, from)
		if intField(src, "quantity") < qty {
			return "Insufficient stock."
		}
		s.moveStock(src, -qty)
		s.moveStock(s.stockAt(item, to), qty)
	case domain.MovementAdjust:
	default:
		return fmt.Sprintf("\"%s\" is not a valid movement_type.", kind)
	}
	return ""
}

// adjustStock sets a counted quantity and logs the difference as a movement.
func (s *Server) adjustStock(rec, body map[string]any) (any, string) {
	v, ok := body["quantity"].(float64)
	if !ok || v < 0 {
		return nil, "A non-negative quantity is required."
	}
	diff := int(v) - intField(rec, "quantity")
	s.moveStock(rec, diff)
	if diff != 0 {
		movements := s.collections[prefixMovements]
		id := s.nextID()
		qty := diff
		if qty < 0 {
			qty = -qty
		}
		location := intField(rec, "location")
		movements.records[id] = map[string]any{
			"id":            id,
			"item":          intField(rec, "item"),
			"movement_type": string(domain.MovementAdjust),
			"quantity":      qty,
			"to_location":   location,
			"note":          body["note"],
			"created_at":    s.now().UTC(),
		}
	}
	return rec, ""
}

// syncCalendar pretends to import the feed: every live booking on the
// property counts as an event.
func (s *Server) syncCalendar(rec, _ map[string]any) (any, string) {
	if active, _ := rec["is_active"].(bool); !active {
		return nil, "Calendar is inactive."
	}
	property := intField(rec, "property")
	events := 0
	for _, b := range s.bookings {
		if b.Property == property && b.Status != domain.BookingCancelled {
			events++
		}
	}
	now := s.now().UTC()
	rec["last_synced"] = now
	rec["sync_status"] = "success"
	return domain.CalendarSyncResult{
		Calendar:    intField(rec, "id"),
		EventsFound: events,
		Status:      "success",
		Message:     fmt.Sprintf("Synced %d events.", events),
	}, ""
}

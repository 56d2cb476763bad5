package fakeapi

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
)

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/properties/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			s.listProperties(w, r)
		case http.MethodPost:
			if s.require(w, r, auth.PermManageProperties) {
				s.createProperty(w, r)
			}
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
	case action == "availability" && r.Method == http.MethodGet:
		s.availability(w, r, id)
	case action != "":
		writeError(w, http.StatusNotFound, "Not found.")
	case r.Method == http.MethodGet:
		s.mu.Lock()
		p, found := s.properties[id]
		var out domain.Property
		if found {
			out = *p
		}
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, out)
	case r.Method == http.MethodPatch || r.Method == http.MethodPut:
		if s.require(w, r, auth.PermManageProperties) {
			s.patchRecord(w, r, id, "property", func() (any, bool) { p, ok := s.properties[id]; return p, ok })
		}
	case r.Method == http.MethodDelete:
		if s.require(w, r, auth.PermManageProperties) {
			s.deleteRecord(w, r, id, "property", func() bool {
				_, ok := s.properties[id]
				delete(s.properties, id)
				return ok
			})
		}
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guests, _ := strconv.Atoi(q.Get("guests"))
	minPrice, hasMin := parseDecimal(q.Get("min_price"))
	maxPrice, hasMax := parseDecimal(q.Get("max_price"))

	s.mu.Lock()
	var results []any
	for _, id := range sortedIDs(s.properties) {
		p := *s.properties[id]
		if guests > 0 && p.MaxGuests < guests {
			continue
		}
		price, _ := parseDecimal(string(p.PricePerNight))
		if hasMin && price.Cmp(minPrice) < 0 {
			continue
		}
		if hasMax && price.Cmp(maxPrice) > 0 {
			continue
		}
		if !matches(toMap(p), q, "guests", "min_price", "max_price") {
			continue
		}
		results = append(results, p)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}

func (s *Server) createProperty(w http.ResponseWriter, r *http.Request) {
	var p domain.Property
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	if strings.TrimSpace(p.Title) == "" {
		errs.add("title", "This field is required.")
	}
	if _, ok := parseDecimal(string(p.PricePerNight)); !ok {
		errs.add("price_per_night", "A valid number is required.")
	}
	if errs.write(w) {
		return
	}
	p.IsActive = true
	created := s.AddProperty(p)
	s.recordRequest(r, "create", "property", created.ID, created.Title)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request, id int) {
	errs := fieldErrors{}
	checkIn, err := domain.ParseDate(r.URL.Query().Get("check_in"))
	if err != nil {
		errs.add("check_in", "Date has wrong format. Use YYYY-MM-DD.")
	}
	checkOut, err := domain.ParseDate(r.URL.Query().Get("check_out"))
	if err != nil {
		errs.add("check_out", "Date has wrong format. Use YYYY-MM-DD.")
	}
	if errs.write(w) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	nights := nightsBetween(checkIn, checkOut)
	if nights <= 0 {
		writeJSON(w, http.StatusOK, domain.Availability{Message: "Check-out must be after check-in."})
		return
	}
	res := domain.Availability{Available: !s.overlaps(id, checkIn, checkOut), Nights: nights, TotalAmount: domain.Amount(stayTotal(*p, nights))}
	if !res.Available {
		res.Message = "Property is not available for the selected dates."
	}
	writeJSON(w, http.StatusOK, res)
}

// overlaps requires s.mu.
func (s *Server) overlaps(propertyID int, in, out domain.Date) bool {
	for _, b := range s.bookings {
		if b.Property != propertyID || b.Status == domain.BookingCancelled {
			continue
		}
		if in.Before(b.CheckOut.Time) && b.CheckIn.Before(out.Time) {
			return true
		}
	}
	return false
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			if s.require(w, r, auth.PermViewBookings) {
				s.listBookings(w, r)
			}
		case http.MethodPost:
			s.createBooking(w, r)
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
	case action == "" && r.Method == http.MethodGet:
		if !s.require(w, r, auth.PermViewBookings) {
			return
		}
		b, found := s.Booking(id)
		if !found {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, b)
	case action == "" && r.Method == http.MethodPatch:
		if s.require(w, r, auth.PermManageBookings) {
			s.patchRecord(w, r, id, "booking", func() (any, bool) { b, ok := s.bookings[id]; return b, ok })
		}
	case action == "" && r.Method == http.MethodDelete:
		if s.require(w, r, auth.PermManageBookings) {
			s.deleteRecord(w, r, id, "booking", func() bool {
				_, ok := s.bookings[id]
				delete(s.bookings, id)
				return ok
			})
		}
	case action == "status" && r.Method == http.MethodPatch:
		if s.require(w, r, auth.PermManageBookings) {
			s.setBookingStatus(w, r, id)
		}
	case (action == "cancel" || action == "check_in" || action == "check_out") && r.Method == http.MethodPost:
		if s.require(w, r, auth.PermManageBookings) {
			s.bookingTransition(w, r, id, action)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found.")
	}
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	var results []any
	for _, id := range sortedIDs(s.bookings) {
		b := *s.bookings[id]
		if matches(toMap(b), q) {
			results = append(results, b)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var d domain.BookingDraft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	if strings.TrimSpace(d.FullName) == "" {
		errs.add("full_name", "This field is required.")
	}
	if !strings.Contains(d.Email, "@") {
		errs.add("email", "Enter a valid email address.")
	}
	if d.CheckIn.IsZero() {
		errs.add("check_in", "This field is required.")
	}
	if d.CheckOut.IsZero() {
		errs.add("check_out", "This field is required.")
	}
	if !d.CheckIn.IsZero() && !d.CheckOut.IsZero() && !d.CheckOut.After(d.CheckIn.Time) {
		errs.add("check_out", "Check-out date must be after check-in date.")
	}
	if d.Guests < 1 {
		errs.add("guests", "Ensure this value is greater than or equal to 1.")
	}

	s.mu.Lock()
	p, ok := s.properties[d.Property]
	if !ok {
		errs.add("property", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", d.Property))
	} else {
		if d.Guests > p.MaxGuests && p.MaxGuests > 0 {
			errs.add("guests", fmt.Sprintf("This property accepts at most %d guests.", p.MaxGuests))
		}
		if len(errs) == 0 && s.overlaps(p.ID, d.CheckIn, d.CheckOut) {
			errs.add("non_field_errors", "Property is not available for the selected dates.")
		}
	}
	if len(errs) > 0 {
		s.mu.Unlock()
		errs.write(w)
		return
	}

	nights := nightsBetween(d.CheckIn, d.CheckOut)
	b := &domain.Booking{
		ID:              s.nextID(),
		Property:        p.ID,
		PropertyTitle:   p.Title,
		FullName:        strings.TrimSpace(d.FullName),
		Email:           strings.ToLower(strings.TrimSpace(d.Email)),
		Phone:           d.Phone,
		CheckIn:         d.CheckIn,
		CheckOut:        d.CheckOut,
		Guests:          d.Guests,
		Nights:          nights,
		TotalAmount:     domain.Amount(stayTotal(*p, nights)),
		Status:          domain.BookingPending,
		PaymentStatus:   "unpaid",
		SpecialRequests: d.SpecialRequests,
		CreatedAt:       s.now().UTC(),
	}
	b.Reference = fmt.Sprintf("RD-%06d", b.ID)
	s.bookings[b.ID] = b
	out := *b
	s.mu.Unlock()

	s.recordRequest(r, "create", "booking", out.ID, out.Reference)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) setBookingStatus(w http.ResponseWriter, r *http.Request, id int) {
	var req struct {
		Status domain.BookingStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Status.Valid() {
		errs := fieldErrors{}
		errs.add("status", fmt.Sprintf("\"%s\" is not a valid choice.", req.Status))
		errs.write(w)
		return
	}
	s.mu.Lock()
	b, ok := s.bookings[id]
	if ok {
		b.Status = req.Status
	}
	var out domain.Booking
	if ok {
		out = *b
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	s.recordRequest(r, "update_status", "booking", id, string(req.Status))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) bookingTransition(w http.ResponseWriter, r *http.Request, id int, action string) {
	s.mu.Lock()
	b, ok := s.bookings[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	now := s.now().UTC()
	var problem string
	switch action {
	case "cancel":
		if b.Status == domain.BookingCompleted {
			problem = "Completed bookings cannot be cancelled."
		} else {
			b.Status = domain.BookingCancelled
		}
	case "check_in":
		if b.Status != domain.BookingConfirmed {
			problem = "Only confirmed bookings can be checked in."
		} else {
			b.CheckedInAt = &now
		}
	case "check_out":
		if b.CheckedInAt == nil {
			problem = "Guest has not checked in."
		} else {
			b.CheckedOutAt = &now
			b.Status = domain.BookingCompleted
		}
	}
	out := *b
	s.mu.Unlock()

	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	s.recordRequest(r, action, "booking", id, out.Reference)
	writeJSON(w, http.StatusOK, out)
}

// patchRecord merges the JSON body into the record returned by get.
func (s *Server) patchRecord(w http.ResponseWriter, r *http.Request, id int, kind string, get func() (any, bool)) {
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	rec, ok := get()
	var err error
	var out map[string]any
	if ok {
		err = mergePatch(rec, fields)
		out = toMap(rec)
	}
	s.mu.Unlock()
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "Not found.")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.recordRequest(r, "update", kind, id, "")
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, id int, kind string, remove func() bool) {
	s.mu.Lock()
	ok := remove()
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	s.recordRequest(r, "delete", kind, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func nightsBetween(in, out domain.Date) int {
	return int(out.Sub(in.Time) / (24 * time.Hour))
}

// stayTotal is nights * price + cleaning fee, rendered with two decimals.
func stayTotal(p domain.Property, nights int) string {
	price, _ := parseDecimal(string(p.PricePerNight))
	total := new(big.Rat).Mul(price, new(big.Rat).SetInt64(int64(nights)))
	if fee, ok := parseDecimal(string(p.CleaningFee)); ok {
		total.Add(total, fee)
	}
	return total.FloatString(2)
}

func parseDecimal(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Rat), false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return new(big.Rat), false
	}
	return r, true
}

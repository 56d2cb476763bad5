package domain

import "time"

// BookingStatus is the server-side lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Valid reports whether s is a status the backend understands.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Property is a rentable listing.
type Property struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug,omitempty"`
	Description   string    `json:"description,omitempty"`
	PropertyType  string    `json:"property_type,omitempty"`
	Address       string    `json:"address,omitempty"`
	City          string    `json:"city,omitempty"`
	State         string    `json:"state,omitempty"`
	Country       string    `json:"country,omitempty"`
	Bedrooms      int       `json:"bedrooms"`
	Bathrooms     int       `json:"bathrooms"`
	MaxGuests     int       `json:"max_guests"`
	PricePerNight Amount    `json:"price_per_night"`
	CleaningFee   Amount    `json:"cleaning_fee,omitempty"`
	Amenities     []string  `json:"amenities,omitempty"`
	Images        []string  `json:"images,omitempty"`
	IsFeatured    bool      `json:"is_featured"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Availability is the backend's answer to a date-range conflict check.
type Availability struct {
	Available   bool   `json:"available"`
	Nights      int    `json:"nights,omitempty"`
	TotalAmount Amount `json:"total_amount,omitempty"`
	Message     string `json:"message,omitempty"`
}

// BookingDraft is the guest-submitted booking request.
type BookingDraft struct {
	Property        int    `json:"property" validate:"required,gt=0"`
	FullName        string `json:"full_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required"`
	CheckIn         Date   `json:"check_in" validate:"required"`
	CheckOut        Date   `json:"check_out" validate:"required"`
	Guests          int    `json:"guests" validate:"required,gt=0"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// Booking is a stored booking. Nights and TotalAmount are computed server-side.
type Booking struct {
	ID              int           `json:"id"`
	Reference       string        `json:"booking_reference,omitempty"`
	Property        int           `json:"property"`
	PropertyTitle   string        `json:"property_title,omitempty"`
	FullName        string        `json:"full_name"`
	Email           string        `json:"email"`
	Phone           string        `json:"phone"`
	CheckIn         Date          `json:"check_in"`
	CheckOut        Date          `json:"check_out"`
	Guests          int           `json:"guests"`
	Nights          int           `json:"nights"`
	TotalAmount     Amount        `json:"total_amount"`
	Status          BookingStatus `json:"status"`
	PaymentStatus   string        `json:"payment_status,omitempty"`
	SpecialRequests string        `json:"special_requests,omitempty"`
	CheckedInAt     *time.Time    `json:"checked_in_at,omitempty"`
	CheckedOutAt    *time.Time    `json:"checked_out_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at,omitempty"`
}

// PaymentInit is the handle returned by payment initialization.
type PaymentInit struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Amount           Amount `json:"amount"`
	Email            string `json:"email,omitempty"`
	Booking          int    `json:"booking"`
	PublicKey        string `json:"public_key,omitempty"`
}

// Payment is a stored payment record.
type Payment struct {
	ID        int        `json:"id"`
	Booking   int        `json:"booking"`
	Reference string     `json:"reference"`
	Amount    Amount     `json:"amount"`
	Currency  string     `json:"currency,omitempty"`
	Status    string     `json:"status"`
	Channel   string     `json:"channel,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

// Inquiry covers both contact-form and property inquiries.
type Inquiry struct {
	ID          int        `json:"id"`
	Property    *int       `json:"property,omitempty"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Message     string     `json:"message"`
	IsRead      bool       `json:"is_read"`
	IsResponded bool       `json:"is_responded"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

// Dispute is a guest or host complaint attached to a booking.
type Dispute struct {
	ID         int        `json:"id"`
	Booking    int        `json:"booking"`
	Reason     string     `json:"reason"`
	Details    string     `json:"details,omitempty"`
	Status     string     `json:"status"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// ExternalCalendar is an iCal feed linked to a property (Airbnb, Booking.com, ...).
type ExternalCalendar struct {
	ID         int        `json:"id"`
	Property   int        `json:"property"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Source     string     `json:"source,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	SyncStatus string     `json:"sync_status,omitempty"`
	SyncError  string     `json:"sync_error,omitempty"`
}

// CalendarSyncResult summarizes one external calendar sync.
type CalendarSyncResult struct {
	Calendar      int    `json:"calendar"`
	EventsFound   int    `json:"events_found"`
	BlocksAdded   int    `json:"blocks_added"`
	BlocksRemoved int    `json:"blocks_removed"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// PaymentVerification is the server's verdict on a payment reference.
type PaymentVerification struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Booking   int    `json:"booking"`
	Amount    Amount `json:"amount,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Verified reports whether the gateway confirmed the charge.
func (v PaymentVerification) Verified() bool {
	return v.Status == "success"
}

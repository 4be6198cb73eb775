// Package model defines the core domain types for the feast seating system.
package model

import (
	"fmt"
	"time"
)

// Gender is the self-declared gender of an attendee. The zero value means
// the attendee did not answer.
type Gender string

const (
	GenderMale           Gender = "Male"
	GenderFemale         Gender = "Female"
	GenderOther          Gender = "Other"
	GenderPreferNotToSay Gender = "Prefer not to say"
)

// Genders lists every declared category, in a fixed order.
var Genders = []Gender{GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay}

// Valid reports whether g is one of the declared categories.
func (g Gender) Valid() bool {
	for _, d := range Genders {
		if g == d {
			return true
		}
	}
	return false
}

// TableNames are the themed base names of tables 1..9.
var TableNames = map[int]string{
	1: "Elohim - The Creator; Supreme God",
	2: "El Elyon - God Most High",
	3: "El Olam - The Everlasting God",
	4: "El Shaddai - God Almighty",
	5: "El Roi - The God Who Sees",
	6: "El Bethel - God of the House of God",
	7: "El Nora - The Awesome God",
	8: "El Shama - God Who Hears",
	9: "El Kadosh - The Holy God",
}

// TableName returns the display name of a table in a given tent.
func TableName(tableNumber, tent int) string {
	base, ok := TableNames[tableNumber]
	if !ok {
		base = fmt.Sprintf("Table %d", tableNumber)
	}
	return fmt.Sprintf("%s (Tent %d)", base, tent)
}

// TableID derives the document id of the table at (tableNumber, tent).
// At most one document exists per pair.
func TableID(tableNumber, tent int) string {
	return fmt.Sprintf("table_%d_tent_%d", tableNumber, tent)
}

// Layout is the fixed seating configuration of the venue.
type Layout struct {
	Tents         int `json:"tents"`
	TablesPerTent int `json:"tables_per_tent"`
	SeatsPerTable int `json:"seats_per_table"`
}

// DefaultLayout is 3 tents of 9 tables with 8 seats each.
var DefaultLayout = Layout{Tents: 3, TablesPerTent: 9, SeatsPerTable: 8}

// Capacity returns the total number of seats.
func (l Layout) Capacity() int {
	return l.Tents * l.TablesPerTent * l.SeatsPerTable
}

// Attendee is one registered person. Attendees only exist inside a Table.
type Attendee struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Gender       Gender     `json:"gender,omitempty"`
	Tent         int        `json:"tent"`
	RegisteredAt time.Time  `json:"registeredAt"`
	CheckedIn    bool       `json:"checkedIn"`
	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// Table is a physical table inside a tent. The seat number of an attendee
// is its 1-based position in Attendees.
type Table struct {
	ID          string     `json:"id"`
	TableNumber int        `json:"tableNumber"`
	Tent        int        `json:"tent"`
	TableName   string     `json:"tableName"`
	Attendees   []Attendee `json:"attendees"`
	SeatCount   int        `json:"seatCount"`
	MaxCapacity int        `json:"maxCapacity"`
	Version     int64      `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableOccupancy is the public view of a table: how full it is, never who
// sits there.
type TableOccupancy struct {
	ID          string `json:"id"`
	TableNumber int    `json:"tableNumber"`
	Tent        int    `json:"tent"`
	TableName   string `json:"tableName"`
	SeatCount   int    `json:"seatCount"`
	MaxCapacity int    `json:"maxCapacity"`
}

// Occupancy strips the attendee list from t.
func (t Table) Occupancy() TableOccupancy {
	return TableOccupancy{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Tent:        t.Tent,
		TableName:   t.TableName,
		SeatCount:   t.SeatCount,
		MaxCapacity: t.MaxCapacity,
	}
}

// HasFreeSeat reports whether another attendee can be appended.
func (t *Table) HasFreeSeat() bool {
	return t.SeatCount < t.MaxCapacity
}

// ActiveGenders returns the genders of attendees that are not soft-deleted.
func (t *Table) ActiveGenders() []Gender {
	out := make([]Gender, 0, len(t.Attendees))
	for _, a := range t.Attendees {
		if !a.Deleted {
			out = append(out, a.Gender)
		}
	}
	return out
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	c := t
	c.Attendees = make([]Attendee, len(t.Attendees))
	copy(c.Attendees, t.Attendees)
	return c
}

// Registration is the location of one attendee.
type Registration struct {
	TableID      string     `json:"tableId"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Gender       Gender     `json:"gender,omitempty"`
	TableNumber  int        `json:"tableNumber"`
	Tent         int        `json:"tent"`
	TableName    string     `json:"tableName"`
	SeatNumber   int        `json:"seatNumber"`
	RegisteredAt time.Time  `json:"registeredAt"`
	CheckedIn    bool       `json:"checkedIn"`
	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
}

// NewRegistration describes the attendee at seat (1-based) of table t.
func NewRegistration(t *Table, seat int) Registration {
	a := t.Attendees[seat-1]
	return Registration{
		TableID:      t.ID,
		Name:         a.Name,
		Email:        a.Email,
		Phone:        a.Phone,
		Gender:       a.Gender,
		TableNumber:  t.TableNumber,
		Tent:         t.Tent,
		TableName:    t.TableName,
		SeatNumber:   seat,
		RegisteredAt: a.RegisteredAt,
		CheckedIn:    a.CheckedIn,
		CheckedInAt:  a.CheckedInAt,
		Deleted:      a.Deleted,
	}
}

// CapacityWarning is attached to a registration result when the table is
// getting full.
type CapacityWarning struct {
	Level   string  `json:"level"`
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
}

// RegistrationResult is the outcome of a registration attempt.
type RegistrationResult struct {
	Registration
	IsExisting      bool             `json:"isExisting"`
	CapacityWarning *CapacityWarning `json:"capacityWarning,omitempty"`
	QRPayload       string           `json:"qrPayload"`
}

// QRPayload is the JSON body encoded in the attendee's QR code.
type QRPayload struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Table  int    `json:"table"`
	Tent   int    `json:"tent"`
	Seat   int    `json:"seat"`
	Phone  string `json:"phone,omitempty"`
	Gender string `json:"gender,omitempty"`
	Event  string `json:"event"`
}

// RegisterRequest is the payload for registering for the event.
type RegisterRequest struct {
	Name      string `json:"name" validate:"required_without=CheckOnly,max=200"`
	Email     string `json:"email" validate:"required,max=320"`
	Phone     string `json:"phone,omitempty" validate:"max=40"`
	Gender    string `json:"gender,omitempty"`
	CheckOnly bool   `json:"checkOnly,omitempty"`
}

// ExistsResponse answers a check-only registration lookup.
type ExistsResponse struct {
	Exists       bool                `json:"exists"`
	Registration *RegistrationResult `json:"registration,omitempty"`
}

// EmailRequest identifies an attendee by email, for check-in and for
// resending the confirmation.
type EmailRequest struct {
	Email string `json:"email" validate:"required,max=320"`
}

// CheckInResponse is returned by the check-in endpoints.
type CheckInResponse struct {
	Registration     *Registration `json:"registration"`
	AlreadyCheckedIn bool          `json:"alreadyCheckedIn"`
	Message          string        `json:"message,omitempty"`
}

// ResendResponse is returned after an admin resent a confirmation.
type ResendResponse struct {
	MessageID    string        `json:"messageId"`
	Registration *Registration `json:"registration"`
}

// ResetResponse reports how much data a reset removed.
type ResetResponse struct {
	Tables     int `json:"tablesDeleted"`
	Activities int `json:"activitiesDeleted"`
}

// AttendeePatch carries the fields an admin may change. Nil fields are left
// untouched.
type AttendeePatch struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email  *string `json:"email,omitempty" validate:"omitempty,max=320"`
	Phone  *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Gender *string `json:"gender,omitempty"`
}

// Stats summarises occupancy for the admin dashboard.
type Stats struct {
	TotalTables    int     `json:"totalTables"`
	TotalAttendees int     `json:"totalAttendees"`
	CheckedIn      int     `json:"checkedInCount"`
	FullTables     int     `json:"fullTables"`
	AvailableSeats int     `json:"availableSeats"`
	Capacity       int     `json:"capacity"`
	AverageFill    float64 `json:"averageTableFill"`
}

// ActivityAction identifies the kind of an activity log entry.
type ActivityAction string

const (
	ActionRegister  ActivityAction = "register"
	ActionEdit      ActivityAction = "edit"
	ActionDelete    ActivityAction = "delete"
	ActionRestore   ActivityAction = "restore"
	ActionCheckIn   ActivityAction = "check-in"
	ActionEmailSent ActivityAction = "email-sent"
)

// Activity is one entry of the admin activity log.
type Activity struct {
	ID            string         `json:"id"`
	Action        ActivityAction `json:"action"`
	PerformedBy   string         `json:"performedBy"`
	AttendeeName  string         `json:"attendeeName"`
	AttendeeEmail string         `json:"attendeeEmail"`
	TableNumber   int            `json:"tableNumber,omitempty"`
	Tent          int            `json:"tent,omitempty"`
	SeatNumber    int            `json:"seatNumber,omitempty"`
	Details       string         `json:"details"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind tags where a record came from.
type SourceKind string

const (
	SourceBrowser SourceKind = "browser"
	SourceBulk    SourceKind = "bulk"
)

// Event is the canonical representation of one public event listing.
// UID is assigned once by the normalizer and never regenerated.
type Event struct {
	UID string `json:"uid"`

	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Organizer   string   `json:"organizer,omitempty"`
	Pricing     string   `json:"pricing,omitempty"`
	Website     string   `json:"website,omitempty"`
	ImagePath   string   `json:"image_path,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	BeginDate *Date  `json:"begin_date,omitempty"`
	EndDate   *Date  `json:"end_date,omitempty"`
	StartTime string `json:"start_time,omitempty"` // HH:MM
	EndTime   string `json:"end_time,omitempty"`   // HH:MM

	LocationName string `json:"location_name,omitempty"`
	Address      string `json:"address,omitempty"`
	PostalCode   string `json:"zipcode,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`

	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	PlaceID     string   `json:"place_id,omitempty"`

	Source SourceKind      `json:"source"`
	Raw    json.RawMessage `json:"raw_json,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (e *Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Location returns the address components used for geocoding.
func (e *Event) Location() Address {
	return Address{
		Street:     e.Address,
		PostalCode: e.PostalCode,
		City:       e.City,
		Country:    e.Country,
	}
}

// ApplyGeocode copies coordinates and provider fields onto the event.
// Identity and descriptive fields are never touched.
func (e *Event) ApplyGeocode(r *GeocodeResult) {
	if r == nil {
		return
	}
	lat, lon := r.Latitude, r.Longitude
	e.Latitude = &lat
	e.Longitude = &lon
	e.DisplayName = r.DisplayName
	e.PlaceID = r.PlaceID
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes the components through time.Date and reports whether
// they named a real day (e.g. 31 February is rejected).
func NewDate(year int, month time.Month, day int) (Date, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseISODate parses a YYYY-MM-DD string.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day n days later (or earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysSince returns the number of whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()).Hours() / 24)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Value stores the day as an ISO string so both Postgres DATE and SQLite TEXT columns accept it.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

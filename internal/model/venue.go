package model

// Venue is a sports facility containing one or more courts.  Venues are
// reference data maintained outside the booking engine.
//
// Fields:
//  ID      – primary key identifier.
//  Name    – display name.
//  Address – street address shown in notifications.
//  Phone   – optional contact number.
type Venue struct {
    ID      uint64  `json:"id"`      // venues.id
    Name    string  `json:"name"`    // venues.name
    Address string  `json:"address"` // venues.address
    Phone   *string `json:"phone,omitempty"` // venues.phone (nullable)
}

// Court is a single bookable playing surface inside a venue.
//
// Fields:
//  ID        – primary key identifier.
//  VenueID   – venue owning the court.
//  Name      – court label, e.g. "Court 2".
//  CourtType – surface or indoor/outdoor description.
//  IsActive  – inactive courts cannot be booked.
type Court struct {
    ID        uint64 `json:"id"`         // courts.id
    VenueID   uint64 `json:"venue_id"`   // courts.venue_id
    Name      string `json:"name"`       // courts.name
    CourtType string `json:"court_type"` // courts.court_type
    IsActive  bool   `json:"is_active"`  // courts.is_active
}

// Package report defines the wire format for incoming crowd-sourced transit
// reports, as published to the report queue.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/transitwatch/transitwatch/internal/geo"
)

// Type enumerates the closed set of report kinds a user may submit.
type Type string

const (
	TypeDelay       Type = "Delay"
	TypeMaintenance Type = "Maintenance"
	TypeAccident    Type = "Accident"
	TypeSolved      Type = "Solved"
	TypeOther       Type = "Other"
)

// Types lists every valid report type, in seed order.
func Types() []Type {
	return []Type{TypeDelay, TypeMaintenance, TypeAccident, TypeSolved, TypeOther}
}

// TypeNames returns the closed set of report type names, in seed order —
// the list internal/store.SeedReportTypes expects at startup.
func TypeNames() []string {
	types := Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// Valid reports whether t is one of the closed set of report types.
func (t Type) Valid() bool {
	for _, v := range Types() {
		if v == t {
			return true
		}
	}
	return false
}

// coords is the wire representation of a latitude/longitude pair.
type coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is a single crowd-sourced report as received from a client, before
// any user/location ids have been resolved against the store.
type Message struct {
	UserName      string
	UserLocation  geo.Point
	LocationName  string
	LocationPos   geo.Point
	ReportType    Type
	DelayMinutes  *float64
}

type wireMessage struct {
	UserName     string  `json:"user_name"`
	UserLocation coords  `json:"user_location"`
	LocationName string  `json:"location_name"`
	LocationPos  coords  `json:"location_pos"`
	ReportType   string  `json:"report_type"`
	DelayMinutes *float64 `json:"delay_minutes,omitempty"`
}

// MarshalJSON implements json.Marshaler, producing the wire shape the HTTP
// ingress and the report queue carry: nested {latitude,longitude} coordinate
// objects and report_type written as the Type's own string (e.g. "Delay").
// The name is not upper-cased, and ParseJSON accepts only the exact names.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		UserName: m.UserName,
		UserLocation: coords{
			Latitude:  m.UserLocation.Lat,
			Longitude: m.UserLocation.Lon,
		},
		LocationName: m.LocationName,
		LocationPos: coords{
			Latitude:  m.LocationPos.Lat,
			Longitude: m.LocationPos.Lon,
		},
		ReportType:   string(m.ReportType),
		DelayMinutes: m.DelayMinutes,
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("report: decode message: %w", err)
	}

	t := Type(w.ReportType)
	m.UserName = w.UserName
	m.UserLocation = geo.Point{Lat: w.UserLocation.Latitude, Lon: w.UserLocation.Longitude}
	m.LocationName = w.LocationName
	m.LocationPos = geo.Point{Lat: w.LocationPos.Latitude, Lon: w.LocationPos.Longitude}
	m.ReportType = t
	m.DelayMinutes = w.DelayMinutes
	return nil
}

// ParseJSON decodes a single report message from raw JSON bytes.
func ParseJSON(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if !m.ReportType.Valid() {
		return Message{}, fmt.Errorf("report: unknown report_type %q", m.ReportType)
	}
	return m, nil
}

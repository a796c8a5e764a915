// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for taglink: instrument
// records, tag identifiers, and configuration.
package types

// InstrumentRecord is an instrument as stored by the service. TagID is the
// immutable key once paired; every other field is free text. Fields are
// plain strings, so an unset field is rendered as "" rather than null.
type InstrumentRecord struct {
	TagID           string `json:"tag_id" yaml:"tag_id"`
	Name            string `json:"name" yaml:"name"`
	Manufacturer    string `json:"manufacturer" yaml:"manufacturer"`
	Model           string `json:"model" yaml:"model"`
	Serial          string `json:"serial" yaml:"serial"`
	ManufactureDate string `json:"manufacture_date" yaml:"manufacture_date"`
}

// Field is one labelled value of a record, in display order.
type Field struct {
	Label string
	Value string
}

// Fields returns the record's displayable fields in their fixed order.
func (r InstrumentRecord) Fields() []Field {
	return []Field{
		{"Tag ID", r.TagID},
		{"Name", r.Name},
		{"Manufacturer", r.Manufacturer},
		{"Model", r.Model},
		{"Serial", r.Serial},
		{"Manufacture Date", r.ManufactureDate},
	}
}

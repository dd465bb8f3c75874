package models

import (
	"errors"
	"fmt"
)

// ===========================================
// TRAFFIC EVENT
// ===========================================

// Event is one ad-traffic record as delivered by the verification vendor.
// Nullable columns are normalized to the empty string when read from a store.
type Event struct {
	IP             string `json:"ip"`
	URL            string `json:"url"`
	ASN            string `json:"asn,omitempty"`
	UserAgent      string `json:"useragent,omitempty"`
	IPTimezone     string `json:"ip_timezone,omitempty"`
	DeviceTimezone string `json:"device_timezone,omitempty"`
	UTMSource      string `json:"utm_source,omitempty"`
	UTMCampaign    string `json:"utm_campaign,omitempty"`
	GCLID          string `json:"gclid,omitempty"`
	MSCLKID        string `json:"msclkid,omitempty"`
	ThreatGroup    string `json:"threat_group,omitempty"`
	ThreatType     string `json:"threat_type,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// ===========================================
// SCHEMA
// ===========================================

// Column maps an input CSV header to its storage column name.
type Column struct {
	Header   string
	DBName   string
	Nullable bool
}

// Columns lists the input schema in file order. The order is also the
// order of Event.Values.
var Columns = []Column{
	{Header: "IP", DBName: "ipv6_string"},
	{Header: "URL", DBName: "url_path"},
	{Header: "ASN", DBName: "asn", Nullable: true},
	{Header: "Useragent", DBName: "useragent", Nullable: true},
	{Header: "ip_timezone", DBName: "ip_timezone"},
	{Header: "device_timezone", DBName: "device_timezone"},
	{Header: "utm_source", DBName: "parsed_source"},
	{Header: "utm_campaign", DBName: "parsed_campaign"},
	{Header: "gclid", DBName: "gclid", Nullable: true},
	{Header: "msclkid", DBName: "msclkid", Nullable: true},
	{Header: "threat_group", DBName: "reason_threat_group", Nullable: true},
	{Header: "threat_type", DBName: "reason_threat_type", Nullable: true},
	{Header: "timestamp", DBName: "timestamp"},
}

// ExpectedColumns is the number of columns every store table must carry.
const ExpectedColumns = 13

// ErrFieldCount is returned when a record does not carry one value per column.
var ErrFieldCount = errors.New("wrong number of fields")

// DBColumnNames returns the storage column names in schema order.
func DBColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.DBName
	}
	return names
}

// Values returns the event fields in schema order.
func (e Event) Values() []string {
	return []string{
		e.IP, e.URL, e.ASN, e.UserAgent,
		e.IPTimezone, e.DeviceTimezone,
		e.UTMSource, e.UTMCampaign,
		e.GCLID, e.MSCLKID,
		e.ThreatGroup, e.ThreatType,
		e.Timestamp,
	}
}

// EventFromValues builds an event from values in schema order.
func EventFromValues(v []string) (Event, error) {
	if len(v) != ExpectedColumns {
		return Event{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(v), ExpectedColumns)
	}
	return Event{
		IP:             v[0],
		URL:            v[1],
		ASN:            v[2],
		UserAgent:      v[3],
		IPTimezone:     v[4],
		DeviceTimezone: v[5],
		UTMSource:      v[6],
		UTMCampaign:    v[7],
		GCLID:          v[8],
		MSCLKID:        v[9],
		ThreatGroup:    v[10],
		ThreatType:     v[11],
		Timestamp:      v[12],
	}, nil
}

// Deref returns the string behind a nullable column, or "" for NULL.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NullIfEmpty maps "" back to NULL for stores that keep the distinction.
func NullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

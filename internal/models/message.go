package models

import (
	"fmt"
	"strings"
	"time"
)

// ServiceType identifies the emergency service a message belongs to.
type ServiceType string

const (
	ServiceAmbulance ServiceType = "Ambulance"
	ServiceFire      ServiceType = "Fire"
	ServicePolice    ServiceType = "Police"
	ServiceOther     ServiceType = "Other"
)

// AllServiceTypes lists every service type in classification priority order.
var AllServiceTypes = []ServiceType{ServiceAmbulance, ServiceFire, ServicePolice, ServiceOther}

// ParseServiceType converts a configuration value into a ServiceType.
func ParseServiceType(s string) (ServiceType, error) {
	for _, st := range AllServiceTypes {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

// FilterConfig is the set of service types a user wants to see. An empty set
// means filtering is disabled and every message passes.
type FilterConfig map[ServiceType]bool

// NewFilterConfig builds a FilterConfig from the given service types.
func NewFilterConfig(types ...ServiceType) FilterConfig {
	f := make(FilterConfig, len(types))
	for _, t := range types {
		f[t] = true
	}
	return f
}

// Empty reports whether no filter is configured.
func (f FilterConfig) Empty() bool { return len(f) == 0 }

// Allows reports whether the given service type is enabled in the filter.
func (f FilterConfig) Allows(t ServiceType) bool { return f[t] }

// Types returns the enabled service types in priority order, for diagnostics.
func (f FilterConfig) Types() []ServiceType {
	out := make([]ServiceType, 0, len(f))
	for _, t := range AllServiceTypes {
		if f[t] {
			out = append(out, t)
		}
	}
	return out
}

// Attribute keys under which MessageRecord fields are published. These double
// as the configurable sensor names.
const (
	SensorPriorityCode = "priority_code"
	SensorTimestamp    = "timestamp"
	SensorRegion       = "region"
	SensorLocation     = "location"
	SensorStreet       = "street"
	SensorPostalCode   = "postal_code"
	SensorDescription  = "description"
	SensorLatitude     = "latitude"
	SensorLongitude    = "longitude"
	SensorServiceType  = "service_type"
	SensorRawTime      = "raw_time"
	SensorAbsoluteTime = "absolute_time"
)

// SensorKeys lists every attribute a record can expose.
var SensorKeys = []string{
	SensorPriorityCode,
	SensorTimestamp,
	SensorRegion,
	SensorLocation,
	SensorStreet,
	SensorPostalCode,
	SensorDescription,
	SensorLatitude,
	SensorLongitude,
	SensorServiceType,
	SensorRawTime,
	SensorAbsoluteTime,
}

// DefaultEnabledSensors is the attribute selection applied when an instance
// does not configure its own.
var DefaultEnabledSensors = []string{
	SensorPriorityCode,
	SensorTimestamp,
	SensorRegion,
	SensorLocation,
	SensorStreet,
	SensorDescription,
	SensorLatitude,
	SensorLongitude,
	SensorServiceType,
}

// KnownSensor reports whether key names a publishable attribute.
func KnownSensor(key string) bool {
	for _, k := range SensorKeys {
		if k == key {
			return true
		}
	}
	return false
}

// MessageRecord is one emergency message scraped from a region page.
type MessageRecord struct {
	PriorityCode string      `json:"priority_code"`
	Timestamp    time.Time   `json:"timestamp"`
	Region       string      `json:"region"`
	Location     string      `json:"location"`
	Street       string      `json:"street,omitempty"`
	PostalCode   string      `json:"postal_code,omitempty"`
	Description  string      `json:"description"`
	Latitude     *float64    `json:"latitude,omitempty"`
	Longitude    *float64    `json:"longitude,omitempty"`
	ServiceType  ServiceType `json:"service_type"`
	RawTime      string      `json:"raw_time,omitempty"`
	AbsoluteTime string      `json:"absolute_time,omitempty"`
}

// Equal reports whether two records carry the same content. Used to detect
// polls where the upstream page has not changed.
func (m MessageRecord) Equal(o MessageRecord) bool {
	return m.PriorityCode == o.PriorityCode &&
		m.Timestamp.Equal(o.Timestamp) &&
		m.Region == o.Region &&
		m.Location == o.Location &&
		m.Street == o.Street &&
		m.PostalCode == o.PostalCode &&
		m.Description == o.Description &&
		floatPtrEqual(m.Latitude, o.Latitude) &&
		floatPtrEqual(m.Longitude, o.Longitude) &&
		m.ServiceType == o.ServiceType
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Attributes flattens the record into key/value pairs restricted to the
// enabled sensor keys. The priority code is the published state itself and is
// never duplicated as an attribute. Optional fields absent from the source are
// omitted rather than published as empty values.
func (m *MessageRecord) Attributes(enabled []string) map[string]any {
	attrs := make(map[string]any, len(enabled))
	for _, key := range enabled {
		switch key {
		case SensorPriorityCode:
			continue
		case SensorTimestamp:
			if !m.Timestamp.IsZero() {
				attrs[key] = m.Timestamp
			}
		case SensorRegion:
			attrs[key] = m.Region
		case SensorLocation:
			attrs[key] = m.Location
		case SensorStreet:
			if m.Street != "" {
				attrs[key] = m.Street
			}
		case SensorPostalCode:
			if m.PostalCode != "" {
				attrs[key] = m.PostalCode
			}
		case SensorDescription:
			attrs[key] = m.Description
		case SensorLatitude:
			if m.Latitude != nil {
				attrs[key] = *m.Latitude
			}
		case SensorLongitude:
			if m.Longitude != nil {
				attrs[key] = *m.Longitude
			}
		case SensorServiceType:
			attrs[key] = m.ServiceType
		case SensorRawTime:
			if m.RawTime != "" {
				attrs[key] = m.RawTime
			}
		case SensorAbsoluteTime:
			if m.AbsoluteTime != "" {
				attrs[key] = m.AbsoluteTime
			}
		}
	}
	return attrs
}

package models

import "time"

// WeatherSnapshot is the internal representation of current conditions served by /weather.
// Values are never mutated after construction; share by value or read-only pointer.
type WeatherSnapshot struct {
	Conditions    []Condition    `json:"conditions"`
	Wind          Wind           `json:"wind"`
	CloudCoverage int            `json:"cloudCoverage"` // percent, 0-100
	Rain          *Precipitation `json:"rain,omitempty"`
	Snow          *Precipitation `json:"snow,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Sunrise       time.Time      `json:"sunrise"`
	Sunset        time.Time      `json:"sunset"`
	Visibility    float64        `json:"visibility"` // km
	Temperature   Temperature    `json:"temperature"`
	Humidity      int            `json:"humidity"` // percent, 0-100
	Pressure      int            `json:"pressure"` // hPa
}

// Condition is one reported weather condition, e.g. "Clouds" / "scattered clouds".
type Condition struct {
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

// Wind speeds are km/h.
type Wind struct {
	Speed   float64  `json:"speed"`
	Degrees int      `json:"degrees"`
	Gusts   *float64 `json:"gusts,omitempty"`
}

// Precipitation amounts are mm over the trailing window.
type Precipitation struct {
	OneHour    float64 `json:"1h"`
	ThreeHours float64 `json:"3h"`
}

// Temperature values are in Celsius.
type Temperature struct {
	Current   float64 `json:"current"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	FeelsLike float64 `json:"feelsLike"`
}

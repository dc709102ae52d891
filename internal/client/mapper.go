package client

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/current-weather-service/internal/models"
)

var validate = validator.New()

// ToSnapshot validates p and converts it to a WeatherSnapshot in °C, km/h and km.
// units must be the unit system the payload was requested in ("metric", "imperial", "standard").
// A structurally invalid payload returns an error wrapping ErrMalformedPayload.
func ToSnapshot(p Payload, units string) (models.WeatherSnapshot, error) {
	if err := validate.Struct(p); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	temp, speed, err := converters(units)
	if err != nil {
		return models.WeatherSnapshot{}, err
	}

	conditions := make([]models.Condition, 0, len(p.Weather))
	for _, w := range p.Weather {
		conditions = append(conditions, models.Condition{Summary: w.Main, Description: w.Description})
	}

	wind := models.Wind{
		Speed:   speed(p.Wind.Speed),
		Degrees: p.Wind.Deg,
	}
	if p.Wind.Gust != nil {
		g := speed(*p.Wind.Gust)
		wind.Gusts = &g
	}

	return models.WeatherSnapshot{
		Conditions:    conditions,
		Wind:          wind,
		CloudCoverage: p.Clouds.All,
		Rain:          precipitation(p.Rain),
		Snow:          precipitation(p.Snow),
		Timestamp:     time.Unix(p.Dt, 0).UTC(),
		Sunrise:       time.Unix(p.Sys.Sunrise, 0).UTC(),
		Sunset:        time.Unix(p.Sys.Sunset, 0).UTC(),
		Visibility:    float64(p.Visibility) / 1000,
		Temperature: models.Temperature{
			Current:   temp(p.Main.Temp),
			Min:       temp(p.Main.TempMin),
			Max:       temp(p.Main.TempMax),
			FeelsLike: temp(p.Main.FeelsLike),
		},
		Humidity: p.Main.Humidity,
		Pressure: p.Main.Pressure,
	}, nil
}

type convert func(float64) float64

// converters returns temperature (to °C) and speed (to km/h) conversions for units.
func converters(units string) (temp, speed convert, err error) {
	switch units {
	case "", "metric":
		return identity, msToKmh, nil
	case "imperial":
		return func(f float64) float64 { return (f - 32) * 5 / 9 }, func(v float64) float64 { return v * 1.609344 }, nil
	case "standard":
		return func(k float64) float64 { return k - 273.15 }, msToKmh, nil
	default:
		return nil, nil, fmt.Errorf("unsupported unit system %q", units)
	}
}

func identity(v float64) float64 { return v }

func msToKmh(v float64) float64 { return v * 3.6 }

func precipitation(p *Precipitation) *models.Precipitation {
	if p == nil {
		return nil
	}
	return &models.Precipitation{OneHour: p.OneHour, ThreeHours: p.ThreeHours}
}

package openmeteo

import (
	"fmt"
	"time"

	"github.com/breatheroute/envwatch/internal/environment"
)

// localTimeLayout is the ISO8601 form Open-Meteo uses with timezone=auto.
const localTimeLayout = "2006-01-02T15:04"

type airResponse struct {
	UTCOffsetSeconds     int    `json:"utc_offset_seconds"`
	TimezoneAbbreviation string `json:"timezone_abbreviation"`
	Hourly               *struct {
		Time            []string   `json:"time"`
		PM10            []*float64 `json:"pm10"`
		PM25            []*float64 `json:"pm2_5"`
		CarbonMonoxide  []*float64 `json:"carbon_monoxide"`
		NitrogenDioxide []*float64 `json:"nitrogen_dioxide"`
		Ozone           []*float64 `json:"ozone"`
	} `json:"hourly"`
}

type weatherResponse struct {
	UTCOffsetSeconds     int    `json:"utc_offset_seconds"`
	TimezoneAbbreviation string `json:"timezone_abbreviation"`
	CurrentWeather       *struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly *struct {
		Time               []string   `json:"time"`
		Temperature2m      []*float64 `json:"temperature_2m"`
		RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
		WindSpeed10m       []*float64 `json:"windspeed_10m"`
	} `json:"hourly"`
}

func (r *airResponse) toSeries() (environment.AirSeries, error) {
	if r.Hourly == nil || len(r.Hourly.Time) == 0 {
		return environment.AirSeries{}, fmt.Errorf("%w: missing hourly time axis", environment.ErrInvalidPayload)
	}
	times, err := parseTimes(r.Hourly.Time, zone(r.TimezoneAbbreviation, r.UTCOffsetSeconds))
	if err != nil {
		return environment.AirSeries{}, err
	}

	n := len(times)
	series := environment.AirSeries{
		Time: times,
		PM25: column(r.Hourly.PM25, n),
		PM10: column(r.Hourly.PM10, n),
		NO2:  column(r.Hourly.NitrogenDioxide, n),
		O3:   column(r.Hourly.Ozone, n),
		CO:   column(r.Hourly.CarbonMonoxide, n),
	}
	if err := series.Validate(); err != nil {
		return environment.AirSeries{}, err
	}
	return series, nil
}

func (r *weatherResponse) toSeries() (environment.WeatherSeries, error) {
	if r.Hourly == nil || len(r.Hourly.Time) == 0 {
		return environment.WeatherSeries{}, fmt.Errorf("%w: missing hourly time axis", environment.ErrInvalidPayload)
	}
	times, err := parseTimes(r.Hourly.Time, zone(r.TimezoneAbbreviation, r.UTCOffsetSeconds))
	if err != nil {
		return environment.WeatherSeries{}, err
	}

	n := len(times)
	series := environment.WeatherSeries{
		Time:        times,
		Temperature: column(r.Hourly.Temperature2m, n),
		Humidity:    column(r.Hourly.RelativeHumidity2m, n),
		WindSpeed:   column(r.Hourly.WindSpeed10m, n),
	}
	if err := series.Validate(); err != nil {
		return environment.WeatherSeries{}, err
	}
	return series, nil
}

// currentSnapshot prefers the current_weather block and falls back to the
// last hourly values when the upstream omits it.
func (r *weatherResponse) currentSnapshot(series environment.WeatherSeries) (environment.WeatherSnapshot, error) {
	loc := zone(r.TimezoneAbbreviation, r.UTCOffsetSeconds)
	if cw := r.CurrentWeather; cw != nil {
		ts, err := time.ParseInLocation(localTimeLayout, cw.Time, loc)
		if err != nil {
			return environment.WeatherSnapshot{}, fmt.Errorf("%w: current_weather time %q", environment.ErrInvalidPayload, cw.Time)
		}
		return environment.WeatherSnapshot{Temperature: cw.Temperature, WindSpeed: cw.WindSpeed, Time: ts}, nil
	}

	last := series.Len() - 1
	snap := environment.WeatherSnapshot{Time: series.Time[last]}
	if v := series.Temperature[last]; v != nil {
		snap.Temperature = *v
	}
	if v := series.WindSpeed[last]; v != nil {
		snap.WindSpeed = *v
	}
	return snap, nil
}

func zone(abbr string, offset int) *time.Location {
	if offset == 0 && (abbr == "" || abbr == "GMT" || abbr == "UTC") {
		return time.UTC
	}
	return time.FixedZone(abbr, offset)
}

func parseTimes(raw []string, loc *time.Location) ([]time.Time, error) {
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		t, err := time.ParseInLocation(localTimeLayout, s, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: hourly time %q", environment.ErrInvalidPayload, s)
		}
		out[i] = t
	}
	return out, nil
}

// column returns values, or n missing values when the upstream omitted the array.
func column(values []*float64, n int) []*float64 {
	if values == nil {
		return make([]*float64, n)
	}
	return values
}

package risk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField marks a payload lacking a required field.
var ErrMissingField = errors.New("missing required field")

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// ValidateState builds a SystemState from a received document. Aggregation
// and factor severity violations are *errors.InvalidAggregation; absent
// required fields wrap ErrMissingField. Nothing is returned unless the whole
// document is valid.
func ValidateState(raw RawState) (*SystemState, error) {
	if raw.Region == nil || strings.TrimSpace(*raw.Region) == "" {
		return nil, missing("region")
	}
	if raw.Timestamp == nil || strings.TrimSpace(*raw.Timestamp) == "" {
		return nil, missing("timestamp")
	}
	if raw.AggregatedRisk == nil {
		return nil, missing("aggregated_risk")
	}

	aggregated, err := Validate(*raw.AggregatedRisk)
	if err != nil {
		return nil, err
	}

	state := &SystemState{
		Region:         Region(*raw.Region),
		Timestamp:      *raw.Timestamp,
		AggregatedRisk: aggregated,
	}

	if raw.NewsRisk != nil {
		if state.News, err = buildNews(*raw.NewsRisk); err != nil {
			return nil, err
		}
	}
	if raw.WeatherRisk != nil {
		if state.Weather, err = buildWeather(*raw.WeatherRisk); err != nil {
			return nil, err
		}
	}
	if raw.PortRisk != nil {
		if state.Port, err = buildPort(*raw.PortRisk); err != nil {
			return nil, err
		}
	}
	if raw.Explanation != nil {
		explanation := *raw.Explanation
		state.Explanation = &explanation
	}

	return state, nil
}

func buildNews(raw RawNewsRisk) (*NewsRisk, error) {
	if raw.EventType == nil {
		return nil, missing("news_risk.event_type")
	}
	if raw.Summary == nil {
		return nil, missing("news_risk.summary")
	}
	severity, err := factorSeverity("news_risk", raw.Severity)
	if err != nil {
		return nil, err
	}
	return &NewsRisk{
		EventType: *raw.EventType,
		Severity:  severity,
		Summary:   *raw.Summary,
		Sources:   append([]string(nil), raw.Sources...),
	}, nil
}

func buildWeather(raw RawWeatherRisk) (*WeatherRisk, error) {
	if raw.Condition == nil {
		return nil, missing("weather_risk.weather_condition")
	}
	if raw.Details == nil {
		return nil, missing("weather_risk.details")
	}
	severity, err := factorSeverity("weather_risk", raw.Severity)
	if err != nil {
		return nil, err
	}
	return &WeatherRisk{
		Condition:    *raw.Condition,
		Severity:     severity,
		Details:      *raw.Details,
		TemperatureC: cloneFloat(raw.TemperatureC),
		WindSpeedKmh: cloneFloat(raw.WindSpeedKmh),
		RainfallMM:   cloneFloat(raw.RainfallMM),
	}, nil
}

func buildPort(raw RawPortRisk) (*PortRisk, error) {
	if raw.CongestionLevel == nil {
		return nil, missing("port_risk.congestion_level")
	}
	congestion := Congestion(*raw.CongestionLevel)
	if !congestion.valid() {
		return nil, invalid("port_risk.congestion_level", fmt.Sprintf("unknown level %q", *raw.CongestionLevel))
	}
	if raw.Details == nil {
		return nil, missing("port_risk.details")
	}
	severity, err := factorSeverity("port_risk", raw.Severity)
	if err != nil {
		return nil, err
	}

	port := &PortRisk{
		CongestionLevel: congestion,
		Severity:        severity,
		Details:         *raw.Details,
		AvgDelayHours:   cloneFloat(raw.AvgDelayHours),
	}
	if raw.VesselQueue != nil {
		q := *raw.VesselQueue
		if !finite(q) || q != float64(int(q)) || q < 0 {
			return nil, invalid("port_risk.vessel_queue", fmt.Sprintf("%g is not a vessel count", q))
		}
		queue := int(q)
		port.VesselQueue = &queue
	}
	return port, nil
}

func factorSeverity(prefix string, v *float64) (int, error) {
	if v == nil {
		return 0, missing(prefix + ".severity")
	}
	return checkSeverity(prefix+".severity", *v)
}

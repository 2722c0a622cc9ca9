package risk

// The Raw* types mirror the service's JSON payloads. Every field is a pointer
// so that a missing field can be told apart from a zero value; severities are
// decoded as numbers and checked for integrality during validation.

// RawBreakdownEntry is a breakdown entry as received.
type RawBreakdownEntry struct {
	Weight       *float64 `json:"weight"`
	Severity     *float64 `json:"severity"`
	Contribution *float64 `json:"contribution"`
}

// RawAggregation is an aggregated_risk object as received.
type RawAggregation struct {
	RiskScore *float64                     `json:"risk_score"`
	RiskLevel *string                      `json:"risk_level"`
	Breakdown map[string]RawBreakdownEntry `json:"breakdown"`
}

// RawNewsRisk is a news_risk object as received.
type RawNewsRisk struct {
	EventType *string  `json:"event_type"`
	Severity  *float64 `json:"severity"`
	Summary   *string  `json:"summary"`
	Sources   []string `json:"sources"`
}

// RawWeatherRisk is a weather_risk object as received.
type RawWeatherRisk struct {
	Condition    *string  `json:"weather_condition"`
	Severity     *float64 `json:"severity"`
	Details      *string  `json:"details"`
	TemperatureC *float64 `json:"temperature_c"`
	WindSpeedKmh *float64 `json:"wind_speed_kmh"`
	RainfallMM   *float64 `json:"rainfall_mm"`
}

// RawPortRisk is a port_risk object as received.
type RawPortRisk struct {
	CongestionLevel *string  `json:"congestion_level"`
	Severity        *float64 `json:"severity"`
	Details         *string  `json:"details"`
	VesselQueue     *float64 `json:"vessel_queue"`
	AvgDelayHours   *float64 `json:"avg_delay_hours"`
}

// Processing statuses the service reports alongside a state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// RawState is a SystemState document as received from /analyze or /state.
type RawState struct {
	Region         *string         `json:"region"`
	Timestamp      *string         `json:"timestamp"`
	NewsRisk       *RawNewsRisk    `json:"news_risk"`
	WeatherRisk    *RawWeatherRisk `json:"weather_risk"`
	PortRisk       *RawPortRisk    `json:"port_risk"`
	AggregatedRisk *RawAggregation `json:"aggregated_risk"`
	Explanation    *string         `json:"explanation"`
	Status         *string         `json:"status"`
	ErrorMessage   *string         `json:"error_message"`
}

// StatusOrDefault returns the reported status, treating a missing one as completed.
func (r RawState) StatusOrDefault() string {
	if r.Status == nil || *r.Status == "" {
		return StatusCompleted
	}
	return *r.Status
}

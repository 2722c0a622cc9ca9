// Package risk holds the supply-chain risk assessment model: regions, factor
// risks, the weighted aggregation and the SystemState published to consumers.
package risk

import (
	"sort"
	"time"
)

// Region identifies a monitored geography or port area, e.g. "Shanghai".
type Region string

// RiskLevel is the badge the risk service attaches to a score. It is stored as
// received and never derived locally.
type RiskLevel string

const (
	LevelNone   RiskLevel = ""
	LevelLow    RiskLevel = "Low"
	LevelMedium RiskLevel = "Medium"
	LevelHigh   RiskLevel = "High"
)

// ParseRiskLevel accepts only the levels the service is known to emit.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case LevelLow, LevelMedium, LevelHigh:
		return RiskLevel(s), true
	}
	return LevelNone, false
}

// FactorKind names one input of the aggregation.
type FactorKind string

const (
	FactorNews    FactorKind = "news"
	FactorWeather FactorKind = "weather"
	FactorPort    FactorKind = "port"
)

var factorOrder = map[FactorKind]int{
	FactorNews:    0,
	FactorWeather: 1,
	FactorPort:    2,
}

// Known reports whether k is one of the factors the service aggregates.
func (k FactorKind) Known() bool {
	_, ok := factorOrder[k]
	return ok
}

// FactorRisk is implemented by NewsRisk, WeatherRisk and PortRisk.
type FactorRisk interface {
	Kind() FactorKind
	Level() int
	Describe() string
}

// NewsRisk summarises disruptive events found in recent news.
type NewsRisk struct {
	EventType string   `json:"event_type"`
	Severity  int      `json:"severity"`
	Summary   string   `json:"summary"`
	Sources   []string `json:"sources"`
}

func (n *NewsRisk) Kind() FactorKind { return FactorNews }
func (n *NewsRisk) Level() int       { return n.Severity }
func (n *NewsRisk) Describe() string { return n.Summary }

// WeatherRisk describes conditions around the region. Readings the service
// could not obtain are nil.
type WeatherRisk struct {
	Condition    string   `json:"weather_condition"`
	Severity     int      `json:"severity"`
	Details      string   `json:"details"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	WindSpeedKmh *float64 `json:"wind_speed_kmh,omitempty"`
	RainfallMM   *float64 `json:"rainfall_mm,omitempty"`
}

func (w *WeatherRisk) Kind() FactorKind { return FactorWeather }
func (w *WeatherRisk) Level() int       { return w.Severity }
func (w *WeatherRisk) Describe() string { return w.Details }

// Congestion is the port congestion band reported by the service.
type Congestion string

const (
	CongestionLow      Congestion = "low"
	CongestionModerate Congestion = "moderate"
	CongestionHigh     Congestion = "high"
	CongestionCritical Congestion = "critical"
)

func (c Congestion) valid() bool {
	switch c {
	case CongestionLow, CongestionModerate, CongestionHigh, CongestionCritical:
		return true
	}
	return false
}

// PortRisk describes congestion at the region's main port.
type PortRisk struct {
	CongestionLevel Congestion `json:"congestion_level"`
	Severity        int        `json:"severity"`
	Details         string     `json:"details"`
	VesselQueue     *int       `json:"vessel_queue,omitempty"`
	AvgDelayHours   *float64   `json:"avg_delay_hours,omitempty"`
}

func (p *PortRisk) Kind() FactorKind { return FactorPort }
func (p *PortRisk) Level() int       { return p.Severity }
func (p *PortRisk) Describe() string { return p.Details }

// BreakdownEntry is one factor's share of the composite score.
type BreakdownEntry struct {
	Weight       float64 `json:"weight"`
	Severity     int     `json:"severity"`
	Contribution float64 `json:"contribution"`
}

// AggregatedRisk is the validated composite view.
type AggregatedRisk struct {
	RiskScore float64                       `json:"risk_score"`
	RiskLevel RiskLevel                     `json:"risk_level"`
	Breakdown map[FactorKind]BreakdownEntry `json:"breakdown"`
}

// Factors returns the breakdown keys in display order: news, weather, port.
func (a AggregatedRisk) Factors() []FactorKind {
	kinds := make([]FactorKind, 0, len(a.Breakdown))
	for kind := range a.Breakdown {
		kinds = append(kinds, kind)
	}
	sortFactors(kinds)
	return kinds
}

// RegionDetail is the geographic metadata the catalog endpoint returns.
type RegionDetail struct {
	Latitude    float64       `json:"lat"`
	Longitude   float64       `json:"lon"`
	Port        string        `json:"port"`
	BoundingBox [2][2]float64 `json:"bbox"` // [[south, west], [north, east]]
}

// SystemState is one completed assessment of a region. It is never mutated
// after construction; readers receive copies via Clone.
type SystemState struct {
	Region         Region         `json:"region"`
	Timestamp      string         `json:"timestamp"`
	AggregatedRisk AggregatedRisk `json:"aggregated_risk"`
	News           *NewsRisk      `json:"news_risk,omitempty"`
	Weather        *WeatherRisk   `json:"weather_risk,omitempty"`
	Port           *PortRisk      `json:"port_risk,omitempty"`
	Explanation    *string        `json:"explanation,omitempty"`
}

// Factors returns the factor risks that are present, in display order.
func (s *SystemState) Factors() []FactorRisk {
	var factors []FactorRisk
	if s.News != nil {
		factors = append(factors, s.News)
	}
	if s.Weather != nil {
		factors = append(factors, s.Weather)
	}
	if s.Port != nil {
		factors = append(factors, s.Port)
	}
	return factors
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParsedTimestamp interprets Timestamp. The service emits ISO-8601 with or
// without a zone; zone-less values are read as UTC.
func (s *SystemState) ParsedTimestamp() (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clone returns a deep copy of s. A nil state clones to nil.
func (s *SystemState) Clone() *SystemState {
	if s == nil {
		return nil
	}
	out := *s

	out.AggregatedRisk.Breakdown = make(map[FactorKind]BreakdownEntry, len(s.AggregatedRisk.Breakdown))
	for kind, entry := range s.AggregatedRisk.Breakdown {
		out.AggregatedRisk.Breakdown[kind] = entry
	}

	if s.News != nil {
		news := *s.News
		news.Sources = append([]string(nil), s.News.Sources...)
		out.News = &news
	}
	if s.Weather != nil {
		weather := *s.Weather
		weather.TemperatureC = cloneFloat(s.Weather.TemperatureC)
		weather.WindSpeedKmh = cloneFloat(s.Weather.WindSpeedKmh)
		weather.RainfallMM = cloneFloat(s.Weather.RainfallMM)
		out.Weather = &weather
	}
	if s.Port != nil {
		port := *s.Port
		if s.Port.VesselQueue != nil {
			queue := *s.Port.VesselQueue
			port.VesselQueue = &queue
		}
		port.AvgDelayHours = cloneFloat(s.Port.AvgDelayHours)
		out.Port = &port
	}
	if s.Explanation != nil {
		explanation := *s.Explanation
		out.Explanation = &explanation
	}
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sortFactors(kinds []FactorKind) {
	sort.Slice(kinds, func(i, j int) bool {
		oi, iKnown := factorOrder[kinds[i]]
		oj, jKnown := factorOrder[kinds[j]]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown != jKnown:
			return iKnown
		default:
			return kinds[i] < kinds[j]
		}
	})
}

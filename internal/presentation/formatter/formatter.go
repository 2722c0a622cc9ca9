// Package formatter renders assessments, catalog listings and chat turns
// for the terminal.
package formatter

import (
	"fmt"
	"os"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"

	"chainwatch/internal/analysis"
	"chainwatch/internal/catalog"
	"chainwatch/internal/chat"
	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/risk"
	"chainwatch/internal/riskclient"
)

const (
	defaultWidth = 80
	maxWidth     = 120
)

// Options configures a Formatter.
type Options struct {
	// Width is the card width; zero uses the terminal width.
	Width int
	// Plain disables colour and uses the notty markdown style.
	Plain bool
}

// Formatter renders domain values as terminal text.
type Formatter struct {
	width    int
	plain    bool
	markdown *glamour.TermRenderer

	card   lipgloss.Style
	title  lipgloss.Style
	muted  lipgloss.Style
	levels map[risk.RiskLevel]*color.Color
	errc   *color.Color
	good   *color.Color
}

// TerminalWidth returns the stdout width clamped for readability.
func TerminalWidth() int {
	width := defaultWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w - 4
		if width > maxWidth {
			width = maxWidth
		}
	}
	return width
}

// New builds a Formatter.
func New(opts Options) *Formatter {
	width := opts.Width
	if width <= 0 {
		width = TerminalWidth()
	}

	f := &Formatter{
		width: width,
		plain: opts.Plain,
		card:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(width - 2),
		title: lipgloss.NewStyle().Bold(true),
		muted: lipgloss.NewStyle(),
		levels: map[risk.RiskLevel]*color.Color{
			risk.LevelHigh:   color.New(color.FgRed, color.Bold),
			risk.LevelMedium: color.New(color.FgYellow, color.Bold),
			risk.LevelLow:    color.New(color.FgGreen, color.Bold),
		},
		errc: color.New(color.FgRed),
		good: color.New(color.FgGreen),
	}
	if !opts.Plain {
		f.card = f.card.BorderForeground(lipgloss.Color("#5F87AF"))
		f.muted = f.muted.Foreground(lipgloss.Color("#808080"))
	} else {
		for _, c := range f.levels {
			c.DisableColor()
		}
		f.errc.DisableColor()
		f.good.DisableColor()
	}

	style := glamour.WithStandardStyle("dark")
	if opts.Plain {
		style = glamour.WithStandardStyle("notty")
	}
	if renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-6)); err == nil {
		f.markdown = renderer
	}
	return f
}

func (f *Formatter) level(level risk.RiskLevel) string {
	text := string(level)
	if text == "" {
		text = "Unknown"
	}
	if c, ok := f.levels[level]; ok {
		return c.Sprint(text)
	}
	return text
}

// State renders one assessment as a bordered card.
func (f *Formatter) State(state *risk.SystemState) string {
	if state == nil {
		return f.muted.Render("No assessment yet. Select a region and run an analysis.") + "\n"
	}

	var b strings.Builder
	b.WriteString(f.title.Render(string(state.Region)))
	if ts, ok := state.ParsedTimestamp(); ok {
		b.WriteString(f.muted.Render("  " + ts.Format("2006-01-02 15:04 MST")))
	} else if state.Timestamp != "" {
		b.WriteString(f.muted.Render("  " + state.Timestamp))
	}
	b.WriteString("\n\n")

	agg := state.AggregatedRisk
	fmt.Fprintf(&b, "Risk: %s  score %.2f / 5\n\n", f.level(agg.RiskLevel), agg.RiskScore)

	fmt.Fprintf(&b, "%-8s %7s %9s %13s\n", "Factor", "Weight", "Severity", "Contribution")
	for _, kind := range agg.Factors() {
		entry := agg.Breakdown[kind]
		fmt.Fprintf(&b, "%-8s %7.2f %9d %13.2f\n", kind, entry.Weight, entry.Severity, entry.Contribution)
	}

	if factors := state.Factors(); len(factors) > 0 {
		b.WriteString("\n")
		for _, factor := range factors {
			b.WriteString(f.factor(factor))
		}
	}

	if state.Explanation != nil && strings.TrimSpace(*state.Explanation) != "" {
		b.WriteString("\n")
		b.WriteString(f.title.Render("Explanation"))
		b.WriteString("\n")
		b.WriteString(f.renderExplanation(*state.Explanation))
	}

	return f.card.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (f *Formatter) factor(factor risk.FactorRisk) string {
	var b strings.Builder
	label := strings.ToUpper(string(factor.Kind())[:1]) + string(factor.Kind())[1:]
	fmt.Fprintf(&b, "%s (severity %d/5): %s\n", f.title.Render(label), factor.Level(), factor.Describe())

	var details []string
	switch v := factor.(type) {
	case *risk.NewsRisk:
		if v.EventType != "" {
			details = append(details, "event "+v.EventType)
		}
		if len(v.Sources) > 0 {
			details = append(details, "sources "+strings.Join(v.Sources, ", "))
		}
	case *risk.WeatherRisk:
		if v.Condition != "" {
			details = append(details, v.Condition)
		}
		if v.TemperatureC != nil {
			details = append(details, fmt.Sprintf("%.1f°C", *v.TemperatureC))
		}
		if v.WindSpeedKmh != nil {
			details = append(details, fmt.Sprintf("wind %.0f km/h", *v.WindSpeedKmh))
		}
		if v.RainfallMM != nil {
			details = append(details, fmt.Sprintf("rain %.1f mm", *v.RainfallMM))
		}
	case *risk.PortRisk:
		details = append(details, "congestion "+string(v.CongestionLevel))
		if v.VesselQueue != nil {
			details = append(details, fmt.Sprintf("%d vessels queued", *v.VesselQueue))
		}
		if v.AvgDelayHours != nil {
			details = append(details, fmt.Sprintf("avg delay %.1f h", *v.AvgDelayHours))
		}
	}
	if len(details) > 0 {
		b.WriteString(f.muted.Render("  " + strings.Join(details, "; ")))
		b.WriteString("\n")
	}
	return b.String()
}

func (f *Formatter) renderExplanation(text string) string {
	if f.markdown == nil {
		return text + "\n"
	}
	rendered, err := f.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	return strings.Trim(rendered, "\n") + "\n"
}

// Analysis renders a controller snapshot: the selection, any failure and the
// assessment held.
func (f *Formatter) Analysis(snapshot analysis.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Region: %s", snapshot.SelectedRegion)
	if snapshot.Loading() {
		b.WriteString(f.muted.Render("  (analyzing...)"))
	}
	b.WriteString("\n")
	if snapshot.Error != "" {
		b.WriteString(f.errc.Sprint("Error: "+snapshot.Error) + "\n")
	}
	b.WriteString(f.State(snapshot.State))
	if !snapshot.LastUpdated.IsZero() {
		b.WriteString(f.muted.Render("Last updated " + snapshot.LastUpdated.Format(time.Kitchen)))
		b.WriteString("\n")
	}
	return b.String()
}

// Regions renders the catalog, marking the default.
func (f *Formatter) Regions(regions []risk.Region, def risk.Region, source catalog.Source, details func(risk.Region) (risk.RegionDetail, bool)) string {
	var b strings.Builder
	for _, region := range regions {
		marker := "  "
		if region == def {
			marker = "* "
		}
		b.WriteString(marker + string(region))
		if details != nil {
			if d, ok := details(region); ok && d.Port != "" {
				b.WriteString(f.muted.Render(fmt.Sprintf("  %s (%.2f, %.2f)", d.Port, d.Latitude, d.Longitude)))
			}
		}
		b.WriteString("\n")
	}
	if source != catalog.SourceRemote {
		b.WriteString(f.muted.Render(fmt.Sprintf("(risk service unreachable; showing %s regions)", strings.ReplaceAll(string(source), "_", "-"))))
		b.WriteString("\n")
	}
	return b.String()
}

// Summary renders the compact state summary.
func (f *Formatter) Summary(summary riskclient.StateSummary) string {
	if !summary.HasData() {
		message := summary.Message
		if message == "" {
			message = "No analysis has been run yet."
		}
		return f.muted.Render(message) + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", summary.Region, f.level(summary.RiskLevel))
	if summary.RiskScore != nil {
		fmt.Fprintf(&b, " (%.2f)", *summary.RiskScore)
	}
	if summary.LastUpdated != nil {
		b.WriteString(f.muted.Render("  updated " + *summary.LastUpdated))
	}
	b.WriteString("\n")
	return b.String()
}

// Health renders the liveness result.
func (f *Formatter) Health(health riskclient.HealthStatus, baseURL string) string {
	status := f.errc.Sprint(health.Status)
	if health.Healthy() {
		status = f.good.Sprint(health.Status)
	}
	name := health.Service
	if name == "" {
		name = "risk service"
	}
	return fmt.Sprintf("%s at %s: %s\n", name, baseURL, status)
}

// Reply renders an assistant answer, which may contain markdown.
func (f *Formatter) Reply(content string) string {
	if f.plain || !looksLikeMarkdown(content) {
		return content + "\n"
	}
	return string(markdown.Render(content, f.width, 2))
}

// Transcript renders the whole conversation in append order.
func (f *Formatter) Transcript(messages []chat.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(f.title.Render("you") + "  " + msg.Content + "\n")
		default:
			b.WriteString(f.title.Render("assistant") + "\n" + f.Reply(msg.Content))
		}
	}
	return b.String()
}

// Suggestions lists example questions.
func (f *Formatter) Suggestions(questions []string) string {
	var b strings.Builder
	b.WriteString(f.muted.Render("Try asking:") + "\n")
	for _, q := range questions {
		b.WriteString("  - " + q + "\n")
	}
	return b.String()
}

// Error renders the user-facing reason for err.
func (f *Formatter) Error(err error) string {
	if err == nil {
		return ""
	}
	return f.errc.Sprint("Error: "+cwerrors.Reason(err)) + "\n"
}

func looksLikeMarkdown(content string) bool {
	for _, marker := range []string{"**", "```", "\n- ", "\n* ", "\n1. ", "# "} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return strings.HasPrefix(content, "- ") || strings.HasPrefix(content, "* ")
}

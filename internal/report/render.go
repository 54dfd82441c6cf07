// Package report renders sweep results for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/aatumaykin/botsweep/internal/cleanup"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultTopAgents is how many user agents the text report lists.
const DefaultTopAgents = 10

// ParseFormat validates a format name; "" selects text.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return Format(name), nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected: text, json, yaml)", name)
	}
}

type Options struct {
	Format    Format
	DryRun    bool
	TopAgents int
}

// document is the machine-readable shape of a report.
type document struct {
	cleanup.Result `yaml:",inline"`
	DryRun         bool `json:"dry_run" yaml:"dry_run"`
}

// Render writes result to w in the requested format.
func Render(w io.Writer, result cleanup.Result, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(document{Result: result, DryRun: opts.DryRun})

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document{Result: result, DryRun: opts.DryRun}); err != nil {
			return err
		}
		return enc.Close()

	case FormatText, "":
		_, err := fmt.Fprintln(w, renderText(result, opts, newStyles()))
		return err

	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

func renderText(result cleanup.Result, opts Options, s styles) string {
	title := "Session sweep"
	if opts.DryRun {
		title += " (dry run, nothing deleted)"
	}

	lines := []string{
		s.title.Render(title),
		s.header.Render(fmt.Sprintf("run %s, took %s", result.RunID, result.Duration.Round(time.Millisecond))),
		"",
		row(s, "total", strconv.Itoa(result.Total), s.value),
		row(s, "removed bots", strconv.Itoa(result.RemovedBots), s.removed),
		row(s, "removed inactive", strconv.Itoa(result.RemovedInactive), s.removed),
		row(s, "active", strconv.Itoa(result.Active), s.value),
	}

	failStyle := s.value
	if result.Failures > 0 {
		failStyle = s.warning
	}
	lines = append(lines, row(s, "failures", strconv.Itoa(result.Failures), failStyle))

	lines = append(lines, s.section.Render(renderAgents(result.Agents, opts.TopAgents, s)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func row(s styles, key, value string, valueStyle lipgloss.Style) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render(key), valueStyle.Render(value))
}

func renderAgents(agents map[string]int, top int, s styles) string {
	if len(agents) == 0 {
		return s.empty.Render("No active sessions.")
	}
	if top <= 0 {
		top = DefaultTopAgents
	}

	ranked := RankAgents(agents)
	lines := []string{s.title.Render(fmt.Sprintf("Active user agents (%d distinct)", len(ranked)))}

	for i, a := range ranked {
		if i == top {
			lines = append(lines, s.empty.Render(fmt.Sprintf("... and %d more", len(ranked)-top)))
			break
		}
		name := a.Agent
		if name == "" {
			name = "(empty user agent)"
		}
		lines = append(lines, fmt.Sprintf("%6d  %s", a.Sessions, s.value.Render(name)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// AgentCount is one row of the agent tally.
type AgentCount struct {
	Agent    string
	Sessions int
}

// RankAgents orders the tally by session count, most frequent first, ties
// by agent string.
func RankAgents(agents map[string]int) []AgentCount {
	ranked := make([]AgentCount, 0, len(agents))
	for agent, n := range agents {
		ranked = append(ranked, AgentCount{Agent: agent, Sessions: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Sessions != ranked[j].Sessions {
			return ranked[i].Sessions > ranked[j].Sessions
		}
		return ranked[i].Agent < ranked[j].Agent
	})
	return ranked
}

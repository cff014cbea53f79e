// Package teamdata manages background information about the teams in the
// match, used to enrich narration prompts with real names and form.
package teamdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Player is one squad member referenced by shirt number in narration.
type Player struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

// Team is one side of the match.
type Team struct {
	Name    string   `json:"name"`
	Coach   string   `json:"coach,omitempty"`
	Players []Player `json:"players,omitempty"`
}

// MatchContext is the background block for one match.
type MatchContext struct {
	Home        Team   `json:"home"`
	Away        Team   `json:"away"`
	Competition string `json:"competition,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Manager persists one match context to disk and formats it for prompts.
type Manager struct {
	path string
}

// NewManager stores the context at dir/match_context.json.
func NewManager(dir string) *Manager {
	return &Manager{path: filepath.Join(dir, "match_context.json")}
}

// Save replaces the stored match context.
func (m *Manager) Save(mc MatchContext) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal match context: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write match context: %w", err)
	}
	return nil
}

// Load returns the stored context, or false when none is set.
func (m *Manager) Load() (MatchContext, bool, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return MatchContext{}, false, nil
	}
	if err != nil {
		return MatchContext{}, false, fmt.Errorf("read match context: %w", err)
	}

	var mc MatchContext
	if err := json.Unmarshal(data, &mc); err != nil {
		return MatchContext{}, false, fmt.Errorf("parse match context: %w", err)
	}
	return mc, true, nil
}

// Clear removes the stored context.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove match context: %w", err)
	}
	return nil
}

// FormatForPrompt renders the context as a plain-text block for narration
// prompts. An empty context renders to the empty string.
func FormatForPrompt(mc MatchContext) string {
	if mc.Home.Name == "" && mc.Away.Name == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH: %s vs %s", mc.Home.Name, mc.Away.Name)
	if mc.Competition != "" {
		fmt.Fprintf(&b, " (%s)", mc.Competition)
	}
	if mc.Venue != "" {
		fmt.Fprintf(&b, " at %s", mc.Venue)
	}
	b.WriteString("\n")

	writeTeam := func(label string, t Team) {
		if t.Name == "" {
			return
		}
		fmt.Fprintf(&b, "\n%s: %s", label, t.Name)
		if t.Coach != "" {
			fmt.Fprintf(&b, " (coach %s)", t.Coach)
		}
		b.WriteString("\n")
		for _, p := range t.Players {
			fmt.Fprintf(&b, "  #%d %s", p.Number, p.Name)
			if p.Position != "" {
				fmt.Fprintf(&b, " (%s)", p.Position)
			}
			b.WriteString("\n")
		}
	}
	writeTeam("HOME", mc.Home)
	writeTeam("AWAY", mc.Away)

	if mc.Notes != "" {
		fmt.Fprintf(&b, "\nNOTES: %s\n", mc.Notes)
	}
	b.WriteString("\nUse real player names from the squad lists when shirt numbers are mentioned.")
	return b.String()
}

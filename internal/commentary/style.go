package commentary

import "strings"

// Style is the delivery register the narration collaborator is asked for,
// selected from the character of the events in a batch.
type Style int

const (
	StyleSlow Style = iota
	StyleFast
	StyleGoal
	StyleReplay
	StyleCelebration
)

func (s Style) String() string {
	switch s {
	case StyleSlow:
		return "slow"
	case StyleFast:
		return "fast"
	case StyleGoal:
		return "goal"
	case StyleReplay:
		return "replay"
	case StyleCelebration:
		return "celebration"
	default:
		return "unknown"
	}
}

// PromptModifier returns the instruction block appended to the narration
// prompt for this style.
func (s Style) PromptModifier() string {
	switch s {
	case StyleGoal:
		return "TONE: A goal has been scored. Build to an explosive, elongated call, then let the analyst marvel at the finish."
	case StyleCelebration:
		return "TONE: Players are celebrating. Capture the emotion of the moment, the crowd, and what it means for the match."
	case StyleReplay:
		return "TONE: This is a replay. Break the action down analytically, pointing out technique and positioning frame by frame."
	case StyleFast:
		return "TONE: The play is fast and intense. Use short, urgent phrases and keep pace with the action."
	default:
		return "TONE: The play is measured. Use a calm, descriptive register and fill space with positional observations."
	}
}

// SelectStyle picks the delivery style for a batch of events. Goal mentions
// win over everything, then celebrations, then replays; otherwise average
// intensity decides between fast and slow.
func SelectStyle(events []Event) Style {
	if len(events) == 0 {
		return StyleSlow
	}

	replays := 0
	total := 0
	for _, e := range events {
		desc := strings.ToLower(e.Description)
		if strings.Contains(desc, "goal") && !strings.Contains(desc, "goalkeeper") && !strings.Contains(desc, "goal kick") {
			return StyleGoal
		}
		if strings.Contains(desc, "celebrat") {
			return StyleCelebration
		}
		if e.Replay {
			replays++
		}
		total += e.Intensity
	}

	if replays*2 > len(events) {
		return StyleReplay
	}
	if float64(total)/float64(len(events)) >= 6 {
		return StyleFast
	}
	return StyleSlow
}

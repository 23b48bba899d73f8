// Package quota turns the provider's raw per-model quota entries into the
// normalized, deduplicated list the dashboard shows per account.
package quota

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/irishavmishra/antigravity-switch/internal/cloudcode"
)

// Model is one normalized quota line.
type Model struct {
	ID          string `json:"name"`
	DisplayName string `json:"displayName"`
	Percentage  int    `json:"percentage"`
	ResetTime   string `json:"resetTime,omitempty"`
	Priority    int    `json:"priority"`
}

// Snapshot is the per-account quota result: either a model list or the
// provider's rejection.
type Snapshot struct {
	Models []Model `json:"models,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Display priorities. Known models sort first, experimental chat entries near
// the bottom, everything else last.
const (
	priorityClaudeSonnet   = 1
	priorityGeminiPro      = 2
	priorityGeminiFlash    = 3
	priorityClaudeThinking = 4
	priorityExperimental   = 90
	priorityFallback       = 100
)

var experimentalChatRe = regexp.MustCompile(`(?i)^Chat_\d+$`)

// acronyms stay uppercased when title-casing fallback names.
var acronyms = map[string]bool{"gpt": true, "oss": true, "api": true, "llm": true}

// Normalize classifies, deduplicates, and sorts raw quota entries.
// Entries without quota info are dropped. Duplicate canonical ids merge
// conservatively: the lower remaining fraction wins, and a reset time is kept
// from whichever entry supplied one.
func Normalize(raw map[string]cloudcode.ModelInfo) []Model {
	type merged struct {
		Model
		fraction float64
	}
	byID := make(map[string]*merged)

	// Sorted iteration keeps merges deterministic.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := raw[name]
		if info.QuotaInfo == nil {
			continue
		}
		id, display, priority := classify(name)

		fraction := 0.0
		if info.QuotaInfo.RemainingFraction != nil {
			fraction = *info.QuotaInfo.RemainingFraction
		}
		resetTime := info.QuotaInfo.ResetTime

		existing, ok := byID[id]
		if !ok {
			byID[id] = &merged{
				Model: Model{
					ID:          id,
					DisplayName: display,
					Percentage:  int(math.Round(fraction * 100)),
					ResetTime:   resetTime,
					Priority:    priority,
				},
				fraction: fraction,
			}
			continue
		}
		if fraction < existing.fraction {
			existing.fraction = fraction
			existing.Percentage = int(math.Round(fraction * 100))
			if resetTime != "" {
				existing.ResetTime = resetTime
			}
		} else if existing.ResetTime == "" {
			existing.ResetTime = resetTime
		}
	}

	models := make([]Model, 0, len(byID))
	for _, m := range byID {
		models = append(models, m.Model)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Priority != models[j].Priority {
			return models[i].Priority < models[j].Priority
		}
		return models[i].DisplayName < models[j].DisplayName
	})
	return models
}

// classify maps a raw model name onto a canonical id, display name, and sort
// priority. Substring checks run in precedence order: the thinking check
// comes after sonnet/pro/flash so "Claude_Sonnet_Thinking" diverts to
// claude-thinking rather than merging with claude-sonnet.
func classify(name string) (id, display string, priority int) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "claude") && strings.Contains(lower, "sonnet") && !strings.Contains(lower, "thinking"):
		return "claude-sonnet", "Claude Sonnet", priorityClaudeSonnet
	case strings.Contains(lower, "gemini") && strings.Contains(lower, "pro"):
		return "gemini-pro", "Gemini Pro", priorityGeminiPro
	case strings.Contains(lower, "gemini") && strings.Contains(lower, "flash"):
		return "gemini-flash", "Gemini Flash", priorityGeminiFlash
	case strings.Contains(lower, "thinking"):
		return "claude-thinking", "4.5 Thinking", priorityClaudeThinking
	}
	display, priority = cleanDisplayName(name)
	return name, display, priority
}

// cleanDisplayName tidies an unrecognized raw name for display.
func cleanDisplayName(name string) (string, int) {
	// Strip any path-like prefix ("models/…").
	clean := name
	if i := strings.LastIndexByte(clean, '/'); i >= 0 {
		clean = clean[i+1:]
	}

	// Vague "Chat_<digits>" entries are experimental endpoints; label them as
	// such and push them down the list.
	if experimentalChatRe.MatchString(clean) {
		return "Experimental " + strings.Replace(clean, "_", " ", 1), priorityExperimental
	}

	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(clean))
	for i, w := range words {
		if acronyms[strings.ToLower(w)] {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " "), priorityFallback
}

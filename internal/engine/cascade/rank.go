package cascade

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// excludedMarkers tag model identifiers that cannot hold a conversation:
// synthesis, transcription, moderation, and bundled-pipeline entries.
var excludedMarkers = []string{"tts", "whisper", "guard", "compound", "decommissioned"}

// FilterModels drops non-conversational identifiers, preserving order.
func FilterModels(models []string) []string {
	var out []string
	for _, id := range models {
		lower := strings.ToLower(id)
		excluded := false
		for _, marker := range excludedMarkers {
			if strings.Contains(lower, marker) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, id)
		}
	}
	return out
}

var (
	sizeRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)b\b`)
	versionRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`)
)

// modelKey is the parsed ranking key for one identifier.
type modelKey struct {
	size    float64 // parameter-count class in billions, 0 if unknown
	version float64 // family version number, 0 if unknown
	variant int     // 2 versatile, 1 instant, 0 other
	index   int     // original list position, final tiebreaker
}

// parseKey extracts the ranking key from a model identifier such as
// "llama-3.3-70b-versatile": size is the number suffixed with "b", version
// is the first number that is not a size, variant from the id's suffix
// words.
func parseKey(id string, index int) modelKey {
	lower := strings.ToLower(id)
	key := modelKey{index: index}

	if m := sizeRe.FindStringSubmatch(lower); m != nil {
		key.size, _ = strconv.ParseFloat(m[1], 64)
	}
	for _, m := range versionRe.FindAllStringSubmatchIndex(lower, -1) {
		num := lower[m[2]:m[3]]
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			continue
		}
		// Family versions are small numbers; context-window sizes like
		// "8192" and the size class are not versions.
		if v == key.size || v > 20 {
			continue
		}
		key.version = v
		break
	}
	switch {
	case strings.Contains(lower, "versatile"):
		key.variant = 2
	case strings.Contains(lower, "instant"):
		key.variant = 1
	}
	return key
}

// RankModels sorts conversational model identifiers by preference: larger
// parameter-count class first, newer version first, versatile before
// instant before others, ties broken by original list order. The sort is
// deterministic for a fixed input list.
func RankModels(models []string) []string {
	type ranked struct {
		id  string
		key modelKey
	}
	items := make([]ranked, len(models))
	for i, id := range models {
		items[i] = ranked{id: id, key: parseKey(id, i)}
	}

	sort.SliceStable(items, func(a, b int) bool {
		ka, kb := items[a].key, items[b].key
		if ka.size != kb.size {
			return ka.size > kb.size
		}
		if ka.version != kb.version {
			return ka.version > kb.version
		}
		if ka.variant != kb.variant {
			return ka.variant > kb.variant
		}
		return ka.index < kb.index
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

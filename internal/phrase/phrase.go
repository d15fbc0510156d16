package phrase

import (
	"regexp"
	"sort"
	"strings"
)

type Kind int

const (
	Other Kind = iota
	Wake
	Stop
)

func (k Kind) String() string {
	switch k {
	case Wake:
		return "wake"
	case Stop:
		return "stop"
	default:
		return "other"
	}
}

var (
	DefaultWake = []string{"hey dit", "hello dit", "hi dit", "hello", "hi"}
	DefaultStop = []string{"stop", "okay stop", "ok stop", "wait", "exit"}
)

// Classifier matches transcribed text against wake and stop vocabularies.
// Matching is case-insensitive and anchored on word boundaries, so a phrase
// embedded in a longer utterance still fires.
type Classifier struct {
	wake *regexp.Regexp
	stop *regexp.Regexp
}

func New(wake, stop []string) *Classifier {
	if len(wake) == 0 {
		wake = DefaultWake
	}
	if len(stop) == 0 {
		stop = DefaultStop
	}

	return &Classifier{
		wake: compile(wake),
		stop: compile(stop),
	}
}

func Default() *Classifier {
	return New(nil, nil)
}

func (c *Classifier) ContainsWake(text string) bool {
	return c.wake != nil && c.wake.MatchString(text)
}

func (c *Classifier) ContainsStop(text string) bool {
	return c.stop != nil && c.stop.MatchString(text)
}

// Classify checks stop first: an utterance holding both a stop and a wake
// phrase is a stop.
func (c *Classifier) Classify(text string) Kind {
	switch {
	case c.ContainsStop(text):
		return Stop
	case c.ContainsWake(text):
		return Wake
	default:
		return Other
	}
}

func compile(phrases []string) *regexp.Regexp {
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`))
	}
	if len(alts) == 0 {
		return nil
	}

	// longest alternative first so "hello dit" wins over "hello"
	sort.SliceStable(alts, func(i, j int) bool {
		return len(alts[i]) > len(alts[j])
	})

	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

package translate

import (
	"context"
	log "log/slog"
	"strings"
)

const Target = "en"

type Translator interface {
	// Translate renders text from the source language into English.
	Translate(ctx context.Context, text, source string) (string, error)
}

// NormalizeLocale strips the regional suffix from a locale tag: "en-IN" and
// "en_IN" both become "en".
func NormalizeLocale(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

type bestEffort struct {
	next Translator
}

// BestEffort wraps t so that translation can never fail the query flow:
// any error or empty result yields the original text.
func BestEffort(t Translator) Translator {
	return &bestEffort{next: t}
}

func (b *bestEffort) Translate(ctx context.Context, text, source string) (string, error) {
	src := NormalizeLocale(source)
	if b.next == nil || strings.TrimSpace(text) == "" || src == "" || src == Target {
		return text, nil
	}

	out, err := b.next.Translate(ctx, text, src)
	if err != nil {
		log.Warn("Translation failed, using original text", "source", src, "err", err)
		return text, nil
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return text, nil
	}

	log.Debug("Translated", "source", src, "from", text, "to", out)
	return out, nil
}

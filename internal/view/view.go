// Package view keeps the conversation transcript and pushes every change to
// a set of sinks (terminal, websocket panel).
package view

import (
	"bytes"
	"fmt"
	"html"
	log "log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Sender string

const (
	User Sender = "user"
	Bot  Sender = "bot"
)

type Kind string

const (
	KindMessage    Kind = "message"
	KindTyping     Kind = "typing"
	KindTypingDone Kind = "typing_done"
	KindStatus     Kind = "status"
	KindInterim    Kind = "interim"
)

type Message struct {
	Text   string
	Sender Sender
	// HTML is what a markup capable panel inserts. User text is always
	// escaped; bot text is rendered markdown run through the sanitizer.
	HTML string
}

type Event struct {
	Kind    Kind   `json:"kind"`
	Sender  Sender `json:"sender,omitempty"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
	ID      int    `json:"id,omitempty"`
}

type Sink interface {
	Emit(Event) error
}

type View struct {
	mu sync.Mutex

	sinks    []Sink
	messages []Message
	status   string
	interim  string

	nextTyping int
	typing     map[int]struct{}

	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New(sinks ...Sink) *View {
	return &View{
		sinks:  sinks,
		typing: make(map[int]struct{}),
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render converts bot markdown into sanitized HTML.
func (v *View) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := v.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return v.policy.Sanitize(buf.String()), nil
}

// Append adds a message to the transcript and scrolls sinks to it.
func (v *View) Append(text string, sender Sender) Message {
	if sender == "" {
		sender = Bot
	}

	msg := Message{Text: text, Sender: sender}
	if sender == Bot {
		out, err := v.Render(text)
		if err != nil {
			log.Warn("Falling back to plain text", "err", err)
			out = html.EscapeString(text)
		}
		msg.HTML = out
	} else {
		msg.HTML = html.EscapeString(text)
	}

	v.mu.Lock()
	v.messages = append(v.messages, msg)
	v.mu.Unlock()

	v.emit(Event{Kind: KindMessage, Sender: sender, Content: msg.Text, HTML: msg.HTML})
	return msg
}

type Typing struct {
	v    *View
	id   int
	once sync.Once
}

// ShowTyping inserts the pending-response indicator.
func (v *View) ShowTyping() *Typing {
	v.mu.Lock()
	v.nextTyping++
	id := v.nextTyping
	v.typing[id] = struct{}{}
	v.mu.Unlock()

	v.emit(Event{Kind: KindTyping, Sender: Bot, ID: id})
	return &Typing{v: v, id: id}
}

// Remove is safe to call more than once.
func (t *Typing) Remove() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.v.mu.Lock()
		delete(t.v.typing, t.id)
		t.v.mu.Unlock()

		t.v.emit(Event{Kind: KindTypingDone, Sender: Bot, ID: t.id})
	})
}

func (v *View) SetStatus(text string) {
	v.mu.Lock()
	v.status = text
	v.mu.Unlock()

	v.emit(Event{Kind: KindStatus, Content: text})
}

func (v *View) SetInterim(text string) {
	v.mu.Lock()
	v.interim = text
	v.mu.Unlock()

	v.emit(Event{Kind: KindInterim, Content: text})
}

func (v *View) Status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *View) Interim() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.interim
}

func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Message(nil), v.messages...)
}

// Latest is the message the transcript is scrolled to.
func (v *View) Latest() (Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.messages) == 0 {
		return Message{}, false
	}
	return v.messages[len(v.messages)-1], true
}

func (v *View) TypingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.typing)
}

func (v *View) emit(e Event) {
	for _, s := range v.sinks {
		if err := s.Emit(e); err != nil {
			log.Warn("View sink failed", "kind", e.Kind, "err", err)
		}
	}
}

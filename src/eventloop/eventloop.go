package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"screen-translate/src/chat"
	"screen-translate/src/messages"
	"screen-translate/src/pipeline"
	"screen-translate/src/region"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

var (
	ErrChatDisabled = errors.New("chat is not configured")
	ErrEmptyText    = errors.New("nothing to translate")
)

// Translator is what the loop needs from the translation client.
type Translator interface {
	Translate(ctx context.Context, text string, dir translate.Direction, p translate.Provider) translate.Result
	Probe(ctx context.Context, p translate.Provider) bool
}

// Chat is the conversation backend. *chat.Session satisfies it.
type Chat interface {
	Send(text string) error
	Events() <-chan chat.Event
	Conversation() []chat.Turn
	State() chat.State
}

type Options struct {
	Store      *region.Store
	Pipeline   *pipeline.Pipeline
	Translator Translator
	Pool       *worker.Pool
	Provider   translate.Provider

	// Chat is optional; without it SendChat returns ErrChatDisabled.
	Chat        Chat
	EventBuffer int
}

// Loop coordinates region selection, scans, manual translation and chat, and
// serialises everything they report onto one ordered event channel.
type Loop struct {
	store      *region.Store
	guard      *region.Guard
	pipeline   *pipeline.Pipeline
	translator Translator
	pool       *worker.Pool
	chat       Chat

	mu       sync.Mutex
	provider translate.Provider

	reportMu sync.Mutex
	seq      uint64
	events   chan messages.Envelope
}

func New(opts Options) *Loop {
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 256
	}
	provider := opts.Provider
	if provider == "" {
		provider = translate.ProviderPrimary
	}
	return &Loop{
		store:      opts.Store,
		guard:      region.NewGuard(region.Set{}),
		pipeline:   opts.Pipeline,
		translator: opts.Translator,
		pool:       opts.Pool,
		chat:       opts.Chat,
		provider:   provider,
		events:     make(chan messages.Envelope, buf),
	}
}

// Events delivers every reported message in report order.
func (l *Loop) Events() <-chan messages.Envelope { return l.events }

// Run forwards chat events onto the event channel until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	var chatEvents <-chan chat.Event
	if l.chat != nil {
		chatEvents = l.chat.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-chatEvents:
			if !ok {
				chatEvents = nil
				continue
			}
			l.handleChatEvent(e)
		}
	}
}

func (l *Loop) handleChatEvent(e chat.Event) {
	switch e.Kind {
	case chat.EventState:
		l.report(messages.ChatState{State: e.State.String()})
	case chat.EventFragment:
		l.report(messages.ChatFragment{Seq: e.Turn.Seq, Role: string(e.Turn.Role), Content: e.Turn.Content})
	case chat.EventError:
		l.report(messages.ChatError{Message: e.Err, Code: e.Code})
	}
}

// report stamps m with the next sequence number. A full channel drops the
// message rather than stall the reporting goroutine.
func (l *Loop) report(m messages.Message) {
	l.reportMu.Lock()
	defer l.reportMu.Unlock()
	l.seq++
	select {
	case l.events <- messages.Wrap(l.seq, m):
	default:
		log.Printf("Loop: event channel full, dropped %s #%d", m.Type(), l.seq)
	}
}

// LoadRegions restores the persisted main region. region.ErrNotFound means
// the user has to select one.
func (l *Loop) LoadRegions() (region.Set, error) {
	set, err := l.store.Load()
	if err != nil {
		return region.Set{}, err
	}
	l.guard.Reset(set)
	l.report(messages.Status{Text: "main region loaded"})
	l.report(messages.RegionsChanged{Count: set.Len(), Added: true})
	return set, nil
}

func (l *Loop) Regions() region.Set { return l.guard.Snapshot() }

// SelectMain turns a drag into the new main region, persists it and drops
// all extra regions. It waits for any running scan to finish.
func (l *Loop) SelectMain(x1, y1, x2, y2 int) (region.Region, error) {
	r, err := region.FromDrag(x1, y1, x2, y2)
	if err != nil {
		return region.Region{}, err
	}
	if err := l.store.Save(r); err != nil {
		return region.Region{}, fmt.Errorf("failed to save main region: %w", err)
	}
	l.guard.ReplaceMain(r)
	l.report(messages.Status{Text: "main region saved"})
	l.report(messages.RegionsChanged{Count: 1, Added: true})
	return r, nil
}

// AddExtra appends a drag as an extra region for this session only. added is
// false when the exact rectangle is already in the set.
func (l *Loop) AddExtra(x1, y1, x2, y2 int) (r region.Region, added bool, err error) {
	r, err = region.FromDrag(x1, y1, x2, y2)
	if err != nil {
		return region.Region{}, false, err
	}
	added, count, err := l.guard.AddExtra(r)
	if err != nil {
		return region.Region{}, false, err
	}
	if added {
		l.report(messages.Status{Text: fmt.Sprintf("added region %d", count)})
	}
	l.report(messages.RegionsChanged{Count: count, Added: added})
	return r, added, nil
}

// Scan starts a scan of every region on the pool. Items and the final
// ScanComplete are reported as events.
func (l *Loop) Scan(includeFull bool) (*worker.Handle, error) {
	if l.guard.Snapshot().Len() == 0 && !includeFull {
		return nil, fmt.Errorf("no region to scan: %w", region.ErrNotFound)
	}

	h, err := l.pipeline.Start(l.guard, pipeline.Options{
		Provider:    l.Provider(),
		IncludeFull: includeFull,
		OnStatus:    func(text string) { l.report(messages.Status{Text: text}) },
		OnItem: func(taskID string, index int, item pipeline.Item) {
			l.report(messages.ScanItem{TaskID: taskID, Index: index, Label: item.Label, Text: item.Text})
		},
	})
	if err != nil {
		return nil, err
	}

	go func() {
		v, err := h.Wait()
		if err != nil {
			l.report(messages.Status{Text: fmt.Sprintf("scan failed: %v", err)})
			return
		}
		items, _ := v.([]pipeline.Item)
		done := messages.ScanComplete{TaskID: h.ID(), Items: make([]messages.ScanItem, len(items)), Text: pipeline.Format(items)}
		for i, it := range items {
			done.Items[i] = messages.ScanItem{TaskID: h.ID(), Index: i, Label: it.Label, Text: it.Text}
		}
		l.report(done)
	}()
	return h, nil
}

// Translate runs a manual translation on the pool. The handle's value is a
// translate.Result.
func (l *Loop) Translate(text string, dir translate.Direction) (*worker.Handle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	provider := l.Provider()
	return l.pool.Submit("translate", func(ctx context.Context) (any, error) {
		res := l.translator.Translate(ctx, text, dir, provider)
		l.report(messages.TranslationComplete{
			TaskID:    worker.TaskID(ctx),
			Direction: dir.String(),
			Source:    text,
			Text:      res.Text,
			Fallback:  res.Fallback,
		})
		return res, nil
	})
}

func (l *Loop) Provider() translate.Provider {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provider
}

// SetProvider switches the backend used by scans and translations started
// from now on.
func (l *Loop) SetProvider(p translate.Provider) {
	l.mu.Lock()
	l.provider = p
	l.mu.Unlock()
	l.report(messages.ProviderChanged{Provider: string(p)})
}

// Probe checks the current provider on the pool. The handle's value is a bool.
func (l *Loop) Probe() (*worker.Handle, error) {
	provider := l.Provider()
	return l.pool.Submit("probe", func(ctx context.Context) (any, error) {
		l.report(messages.Status{Text: fmt.Sprintf("testing %s...", provider)})
		ok := l.translator.Probe(ctx, provider)
		l.report(messages.ProbeComplete{TaskID: worker.TaskID(ctx), Provider: string(provider), OK: ok})
		return ok, nil
	})
}

func (l *Loop) SendChat(text string) error {
	if l.chat == nil {
		return ErrChatDisabled
	}
	return l.chat.Send(text)
}

func (l *Loop) ChatHistory() []chat.Turn {
	if l.chat == nil {
		return nil
	}
	return l.chat.Conversation()
}

func (l *Loop) ChatState() chat.State {
	if l.chat == nil {
		return chat.Idle
	}
	return l.chat.State()
}

package eventloop

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-translate/src/chat"
	"screen-translate/src/messages"
	"screen-translate/src/ocr"
	"screen-translate/src/pipeline"
	"screen-translate/src/region"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

type blankScreen struct{}

func (blankScreen) Capture(r *region.Region) (image.Image, error) {
	if r == nil {
		return image.NewGray(image.Rect(0, 0, 50, 50)), nil
	}
	return image.NewGray(image.Rect(0, 0, r.Width(), r.Height())), nil
}

type stubTranslator struct {
	probeOK bool
}

func (s stubTranslator) Translate(ctx context.Context, text string, dir translate.Direction, p translate.Provider) translate.Result {
	if p == translate.ProviderLocal {
		return translate.Fallback(text, p)
	}
	return translate.Result{Text: dir.String() + ":" + text, Provider: p}
}

func (s stubTranslator) Probe(ctx context.Context, p translate.Provider) bool { return s.probeOK }

type stubChat struct {
	events chan chat.Event
	sent   []string
	err    error
}

func (c *stubChat) Send(text string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *stubChat) Events() <-chan chat.Event { return c.events }
func (c *stubChat) Conversation() []chat.Turn { return []chat.Turn{{Seq: 1, Role: chat.RoleUser, Content: "hi"}} }
func (c *stubChat) State() chat.State         { return chat.Streaming }

func newTestLoop(t *testing.T, c Chat) *Loop {
	t.Helper()
	pool := worker.New(2, 4)
	t.Cleanup(pool.Close)

	// OCR answers with the region width so each region is distinguishable.
	engine := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, lang string) (string, error) {
		if img.Bounds().Dx() == 50 {
			return "", nil
		}
		return "w" + strconv.Itoa(img.Bounds().Dx()), nil
	})
	tr := stubTranslator{probeOK: true}
	p := pipeline.New(blankScreen{}, ocr.NewAdapter(engine, "eng"), tr, pool)

	return New(Options{
		Store:      region.NewStore(filepath.Join(t.TempDir(), "region.json")),
		Pipeline:   p,
		Translator: tr,
		Pool:       pool,
		Chat:       c,
	})
}

// until reads events up to and including the first one of type typ.
func until(t *testing.T, l *Loop, typ string) []messages.Envelope {
	t.Helper()
	var out []messages.Envelope
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-l.Events():
			out = append(out, env)
			if env.Type == typ {
				return out
			}
		case <-deadline:
			t.Fatalf("no %s event; got %d events", typ, len(out))
		}
	}
}

func TestLoadRegionsWithoutFile(t *testing.T) {
	l := newTestLoop(t, nil)
	_, err := l.LoadRegions()
	assert.ErrorIs(t, err, region.ErrNotFound)

	_, err = l.Scan(false)
	assert.ErrorIs(t, err, region.ErrNotFound)
}

func TestSelectMainPersistsAndDropsExtras(t *testing.T) {
	l := newTestLoop(t, nil)

	main, err := l.SelectMain(300, 200, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, region.Region{Left: 100, Top: 50, Right: 300, Bottom: 200}, main)

	_, added, err := l.AddExtra(0, 300, 200, 400)
	require.NoError(t, err)
	assert.True(t, added)
	_, added, err = l.AddExtra(200, 400, 0, 300)
	require.NoError(t, err)
	assert.False(t, added, "same rectangle dragged the other way is a duplicate")
	assert.Equal(t, 2, l.Regions().Len())

	_, err = l.SelectMain(0, 0, 500, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Regions().Len())

	fresh := newTestLoop(t, nil)
	fresh.store = l.store
	set, err := fresh.LoadRegions()
	require.NoError(t, err)
	got, _ := set.Main()
	assert.Equal(t, region.Region{Left: 0, Top: 0, Right: 500, Bottom: 500}, got)
}

func TestSelectMainRejectsSmallDrag(t *testing.T) {
	l := newTestLoop(t, nil)
	_, err := l.SelectMain(0, 0, 80, 300)
	assert.ErrorIs(t, err, region.ErrTooSmall)
	_, err = l.store.Load()
	assert.ErrorIs(t, err, region.ErrNotFound)
}

func TestAddExtraNeedsMain(t *testing.T) {
	l := newTestLoop(t, nil)
	_, _, err := l.AddExtra(0, 0, 200, 200)
	assert.ErrorIs(t, err, region.ErrNotFound)
}

func TestScanReportsItemsInRegionOrder(t *testing.T) {
	l := newTestLoop(t, nil)
	_, err := l.SelectMain(0, 0, 200, 100)
	require.NoError(t, err)
	_, _, err = l.AddExtra(0, 200, 300, 300)
	require.NoError(t, err)
	until(t, l, messages.TypeRegionsChanged)
	until(t, l, messages.TypeRegionsChanged)

	h, err := l.Scan(true)
	require.NoError(t, err)
	events := until(t, l, messages.TypeScanComplete)

	var labels []string
	var last uint64
	for _, env := range events {
		assert.Greater(t, env.Seq, last)
		last = env.Seq
		if item, ok := env.Message.(messages.ScanItem); ok {
			assert.Equal(t, h.ID(), item.TaskID)
			labels = append(labels, item.Label)
		}
	}
	assert.Equal(t, []string{"[main]", "[extra 1]", "[full]"}, labels)

	done := events[len(events)-1].Message.(messages.ScanComplete)
	require.Len(t, done.Items, 3)
	assert.Equal(t, "to-target:w200", done.Items[0].Text)
	assert.Equal(t, "to-target:w300", done.Items[1].Text)
	assert.Equal(t, pipeline.Unrecognized, done.Items[2].Text)
	assert.Equal(t, "[main]\nto-target:w200\n\n[extra 1]\nto-target:w300\n\n[full]\n[unrecognized]\n", done.Text)
}

func TestTranslateUsesCurrentProvider(t *testing.T) {
	l := newTestLoop(t, nil)
	l.SetProvider(translate.ProviderLocal)
	until(t, l, messages.TypeProviderChanged)

	h, err := l.Translate("  你好 ", translate.ToSource)
	require.NoError(t, err)
	v, err := h.Wait()
	require.NoError(t, err)
	res := v.(translate.Result)
	assert.True(t, res.Fallback)
	assert.Equal(t, "[local]\n你好", res.Text)

	events := until(t, l, messages.TypeTranslationComplete)
	done := events[len(events)-1].Message.(messages.TranslationComplete)
	assert.Equal(t, h.ID(), done.TaskID)
	assert.Equal(t, "to-source", done.Direction)

	_, err = l.Translate(" ", translate.ToTarget)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestProbeReportsOutcome(t *testing.T) {
	l := newTestLoop(t, nil)
	h, err := l.Probe()
	require.NoError(t, err)
	v, _ := h.Wait()
	assert.Equal(t, true, v)

	events := until(t, l, messages.TypeProbeComplete)
	probe := events[len(events)-1].Message.(messages.ProbeComplete)
	assert.True(t, probe.OK)
	assert.Equal(t, string(translate.ProviderPrimary), probe.Provider)
}

func TestChatEventsAreForwarded(t *testing.T) {
	c := &stubChat{events: make(chan chat.Event, 4)}
	l := newTestLoop(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.NoError(t, l.SendChat("hello"))
	assert.Equal(t, []string{"hello"}, c.sent)

	c.events <- chat.Event{Kind: chat.EventState, State: chat.Streaming}
	c.events <- chat.Event{Kind: chat.EventFragment, Turn: chat.Turn{Seq: 2, Role: chat.RoleAssistant, Content: "你好"}}
	c.events <- chat.Event{Kind: chat.EventError, Err: "bad (code: 1)", Code: 1}

	state := until(t, l, messages.TypeChatState)
	assert.Equal(t, messages.ChatState{State: "streaming"}, state[len(state)-1].Message)
	frag := until(t, l, messages.TypeChatFragment)
	assert.Equal(t, "你好", frag[len(frag)-1].Message.(messages.ChatFragment).Content)
	chatErr := until(t, l, messages.TypeChatError)
	assert.Equal(t, 1, chatErr[len(chatErr)-1].Message.(messages.ChatError).Code)

	assert.Len(t, l.ChatHistory(), 1)
	assert.Equal(t, chat.Streaming, l.ChatState())

	c.err = chat.ErrBusy
	assert.True(t, errors.Is(l.SendChat("again"), chat.ErrBusy))
}

func TestChatDisabled(t *testing.T) {
	l := newTestLoop(t, nil)
	assert.ErrorIs(t, l.SendChat("hello"), ErrChatDisabled)
	assert.Nil(t, l.ChatHistory())
	assert.Equal(t, chat.Idle, l.ChatState())
}

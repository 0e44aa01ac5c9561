package pipeline

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-translate/src/ocr"
	"screen-translate/src/region"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

// fakeScreen returns an image sized like the requested rectangle.
type fakeScreen struct {
	mu    sync.Mutex
	calls []*region.Region
	fail  map[region.Region]error
}

func (f *fakeScreen) Capture(r *region.Region) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	if r == nil {
		return image.NewRGBA(image.Rect(0, 0, 1920, 1080)), nil
	}
	if err := f.fail[*r]; err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height())), nil
}

// textByWidth answers OCR by image width so each region can be scripted.
type textByWidth map[int]string

func (m textByWidth) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	text, ok := m[img.Bounds().Dx()]
	if !ok {
		return "", nil
	}
	if text == "ERR" {
		return "", errors.New("engine crashed")
	}
	return text, nil
}

type upperTranslator struct{ calls []string }

func (u *upperTranslator) Translate(ctx context.Context, text string, dir translate.Direction, p translate.Provider) translate.Result {
	u.calls = append(u.calls, text)
	return translate.Result{Text: "T(" + text + ")", Provider: p}
}

func twoRegions() region.Set {
	set := region.NewSet(region.Region{Left: 0, Top: 0, Right: 200, Bottom: 100})
	set.Append(region.Region{Left: 0, Top: 200, Right: 300, Bottom: 300})
	return set
}

func TestScanRegionsEndToEnd(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") != "Hello" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"destination-text": "你好"}`))
	}))
	defer svc.Close()

	adapter := ocr.NewAdapter(textByWidth{200: "Hello"}, "eng")
	client := translate.New(translate.Config{PrimaryURL: svc.URL, Timeout: 2 * time.Second})
	p := New(&fakeScreen{}, adapter, client, nil)

	items := p.ScanRegions(context.Background(), region.NewSet(region.Region{Left: 0, Top: 0, Right: 200, Bottom: 100}), Options{Provider: translate.ProviderPrimary})

	require.Len(t, items, 1)
	assert.Equal(t, "[main]", items[0].Label)
	assert.Equal(t, "你好", items[0].Text)
	assert.Equal(t, "Hello", items[0].Source)
	assert.False(t, items[0].Fallback)
}

func TestScanRegionsOrderSurvivesOCRFailure(t *testing.T) {
	adapter := ocr.NewAdapter(textByWidth{200: "ERR", 300: "World"}, "eng")
	tr := &upperTranslator{}
	p := New(&fakeScreen{}, adapter, tr, nil)

	var statuses []string
	var indexes []int
	items := p.ScanRegions(context.Background(), twoRegions(), Options{
		Provider: translate.ProviderPrimary,
		OnStatus: func(s string) { statuses = append(statuses, s) },
		OnItem:   func(_ string, i int, _ Item) { indexes = append(indexes, i) },
	})

	require.Len(t, items, 2)
	assert.Equal(t, "[main]", items[0].Label)
	assert.True(t, ocr.IsErrorMarker(items[0].Text))
	assert.Equal(t, "[extra 1]", items[1].Label)
	assert.Equal(t, "T(World)", items[1].Text)

	assert.Equal(t, []string{"World"}, tr.calls, "error markers are not sent for translation")
	assert.Equal(t, []int{0, 1}, indexes)
	assert.Equal(t, "done: 2 items", statuses[len(statuses)-1])
}

func TestScanRegionsSentinels(t *testing.T) {
	screen := &fakeScreen{fail: map[region.Region]error{
		{Left: 0, Top: 200, Right: 300, Bottom: 300}: errors.New("no display"),
	}}
	tr := &upperTranslator{}
	p := New(screen, ocr.NewAdapter(textByWidth{}, "eng"), tr, nil)

	items := p.ScanRegions(context.Background(), twoRegions(), Options{IncludeFull: true})

	require.Len(t, items, 3)
	assert.Equal(t, Unrecognized, items[0].Text)
	assert.Equal(t, "[capture error: no display]", items[1].Text)
	assert.Equal(t, FullLabel, items[2].Label)
	assert.Equal(t, Unrecognized, items[2].Text)
	assert.Empty(t, tr.calls)

	require.Len(t, screen.calls, 3)
	assert.Nil(t, screen.calls[2], "full pass captures without a rectangle")
}

func TestStartRunsOnPoolAndHoldsLease(t *testing.T) {
	pool := worker.New(1, 1)
	defer pool.Close()

	gate := make(chan struct{})
	engine := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, lang string) (string, error) {
		<-gate
		return "Hi", nil
	})
	p := New(&fakeScreen{}, ocr.NewAdapter(engine, "eng"), &upperTranslator{}, pool)
	guard := region.NewGuard(region.NewSet(region.Region{Left: 0, Top: 0, Right: 200, Bottom: 100}))

	h, err := p.Start(guard, Options{})
	require.NoError(t, err)

	replaced := make(chan struct{})
	go func() {
		// Give the scan time to take its lease first.
		time.Sleep(50 * time.Millisecond)
		guard.ReplaceMain(region.Region{Left: 5, Top: 5, Right: 400, Bottom: 400})
		close(replaced)
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case <-replaced:
		t.Fatal("reselect must wait for the running scan")
	default:
	}
	close(gate)

	v, err := h.Wait()
	require.NoError(t, err)
	items := v.([]Item)
	require.Len(t, items, 1)
	assert.Equal(t, "T(Hi)", items[0].Text)

	select {
	case <-replaced:
	case <-time.After(time.Second):
		t.Fatal("reselect never proceeded")
	}
}

func TestFormat(t *testing.T) {
	got := Format([]Item{{Label: "[main]", Text: "你好"}, {Label: "[extra 1]", Text: "世界"}})
	assert.Equal(t, "[main]\n你好\n\n[extra 1]\n世界\n", got)
}

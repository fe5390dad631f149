package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/dedup"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// fakeSession serves canned HTML per URL. Missing URLs render no cards.
type fakeSession struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  []string
	closed bool
}

func (s *fakeSession) Render(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	if err, ok := s.errs[url]; ok {
		return "", err
	}
	if html, ok := s.pages[url]; ok {
		return html, nil
	}
	return "<html><body><p>Aucun événement</p></body></html>", nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cardsPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="memo-card" data-id="%s"><img class="thumbnail" alt="Event %s"><span class="day">28 Janv.</span></div>`, id, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestFetcher(existing ...string) *Fetcher {
	known := make(map[string]struct{})
	for _, uid := range existing {
		known[uid] = struct{}{}
	}
	return NewFetcher(normalize.New(normalize.Options{}), dedup.NewKeyer(known), testLogger(), nil)
}

func TestFetchPage_TriState(t *testing.T) {
	session := &fakeSession{pages: map[string]string{
		"https://x/new":   cardsPage("1", "2", "3"),
		"https://x/known": cardsPage("1", "2"),
	}}
	f := newTestFetcher("infolocale_1", "infolocale_2")
	ctx := context.Background()

	t.Run("fragments", func(t *testing.T) {
		frags, err := f.FetchPage(ctx, session, "https://x/new")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(frags) != 1 || !strings.Contains(frags[0].HTML, `data-id="3"`) {
			t.Errorf("expected only card 3, got %d fragments", len(frags))
		}
	})

	t.Run("all known", func(t *testing.T) {
		frags, err := f.FetchPage(ctx, session, "https://x/known")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frags == nil || len(frags) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", frags)
		}
	})

	t.Run("no cards", func(t *testing.T) {
		_, err := f.FetchPage(ctx, session, "https://x/empty")
		if !errors.Is(err, ErrNoContent) {
			t.Errorf("expected ErrNoContent, got %v", err)
		}
	})

	t.Run("render timeout", func(t *testing.T) {
		session.errs = map[string]error{"https://x/slow": ErrNoContent}
		_, err := f.FetchPage(ctx, session, "https://x/slow")
		if !errors.Is(err, ErrNoContent) {
			t.Errorf("expected ErrNoContent, got %v", err)
		}
	})
}

func TestRegionURLs(t *testing.T) {
	base := "https://www.infolocale.fr/"
	tmpl := "{base_url}/evenements/{region}"

	got := RegionURLs(base, tmpl, "vendee, /agenda/nantes ,https://other.example/list/, ")
	want := []string{
		"https://www.infolocale.fr/evenements/vendee",
		"https://www.infolocale.fr/agenda/nantes",
		"https://other.example/list",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("RegionURLs = %v, want %v", got, want)
	}

	if got := RegionURLs(base, tmpl, ""); len(got) != 1 || got[0] != "https://www.infolocale.fr/evenements" {
		t.Errorf("default region = %v", got)
	}
}

func TestPagePlan(t *testing.T) {
	plan := PagePlan([]string{"https://x/a", "https://x/b?sort=date"}, 3)
	if len(plan) != 2 || len(plan[0]) != 3 {
		t.Fatalf("plan shape = %v", plan)
	}
	if plan[0][0] != "https://x/a" || plan[0][1] != "https://x/a?page=2" {
		t.Errorf("region a pages = %v", plan[0])
	}
	if plan[1][2] != "https://x/b?page=3&sort=date" {
		t.Errorf("region b page 3 = %q", plan[1][2])
	}
	if len(Flatten(plan)) != 6 {
		t.Errorf("flatten length = %d", len(Flatten(plan)))
	}
}

func TestPager_StopsRegionOnNoContent(t *testing.T) {
	session := &fakeSession{pages: map[string]string{
		"https://x/a":        cardsPage("1", "2"),
		"https://x/a?page=2": cardsPage("3"),
		// page 3 of a renders nothing: region a ends, page 4 is never requested
		"https://x/a?page=4": cardsPage("99"),
		"https://x/b":        cardsPage("10"),
	}}
	session.errs = map[string]error{"https://x/b?page=2": errors.New("net::ERR_CONNECTION_RESET")}

	plan := PagePlan([]string{"https://x/a", "https://x/b"}, 4)
	factoryCalls := 0
	factory := func(ctx context.Context) (Session, error) {
		factoryCalls++
		return session, nil
	}
	p := NewPager(plan, factory, newTestFetcher(), testLogger())
	defer p.Close()

	var total int
	for {
		frags, err := p.Next(context.Background())
		if errors.Is(err, source.ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		total += len(frags)
	}

	if total != 4 {
		t.Errorf("expected 4 fragments (1,2,3,10), got %d", total)
	}
	if factoryCalls != 1 {
		t.Errorf("session should be acquired once, got %d", factoryCalls)
	}
	for _, u := range session.calls {
		if u == "https://x/a?page=4" {
			t.Error("pager kept paginating region a after the stop signal")
		}
	}
	p.Close()
	if !session.closed {
		t.Error("session was not released")
	}
}

func TestPager_SessionStartFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	p := NewPager([][]string{{"https://x/a"}}, func(ctx context.Context) (Session, error) { return nil, boom }, newTestFetcher(), testLogger())
	if _, err := p.Next(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected start failure to surface, got %v", err)
	}
}

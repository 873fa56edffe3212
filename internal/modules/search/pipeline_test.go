package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

func drug(id int64, name, desc string, price string, rating float64) catalog.Drug {
	return catalog.Drug{ID: id, Name: name, Description: desc, Price: decimal.RequireFromString(price), Rating: rating}
}

func ids(drugs []catalog.Drug) []int64 {
	out := make([]int64, len(drugs))
	for i, d := range drugs {
		out[i] = d.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type fakeRemote struct {
	items []pharmaapi.Drug
	err   error
	delay time.Duration
	calls int
}

func (f *fakeRemote) BaseURL() string { return "http://api.local" }

func (f *fakeRemote) SearchDrugs(ctx context.Context, q string, limit int) ([]pharmaapi.Drug, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

func TestRankVitaminExample(t *testing.T) {
	candidates := []catalog.Drug{
		drug(1, "Paracetamol 500mg", "", "1", 4.5),
		drug(2, "Vitamin C 1000mg", "", "1", 4.5),
	}
	got := ids(Rank("vitamin", candidates))
	if !equalIDs(got, []int64{2}) {
		t.Fatalf("got %v", got)
	}
}

func TestRankTierOrder(t *testing.T) {
	candidates := []catalog.Drug{
		drug(1, "Children's Vitamin Syrup", "", "1", 0),
		drug(2, "Syrup Vitamin", "daily syrup", "1", 0),
		drug(3, "Vitamin Syrup", "", "1", 0),
		drug(4, "Vitamin Syrup Plus", "", "1", 0),
		drug(5, "Ibuprofen", "pain relief", "1", 0),
	}
	// exact, prefix, then the all-words tier in input order
	got := ids(Rank("vitamin syrup", candidates))
	if !equalIDs(got, []int64{3, 4, 1, 2}) {
		t.Fatalf("got %v", got)
	}
}

func TestRankExactBeforeContains(t *testing.T) {
	candidates := []catalog.Drug{
		drug(1, "Multivitamin", "", "1", 0),
		drug(2, "Vitamin", "", "1", 0),
	}
	got := ids(Rank("vitamin", candidates))
	if !equalIDs(got, []int64{2, 1}) {
		t.Fatalf("got %v", got)
	}
}

func TestRankEmptyQueryReturnsCatalog(t *testing.T) {
	candidates := []catalog.Drug{drug(3, "C", "", "1", 0), drug(1, "A", "", "1", 0)}
	p := NewPipeline(&fakeRemote{}, time.Second)
	got := ids(p.Run(context.Background(), "   ", candidates))
	if !equalIDs(got, []int64{3, 1}) {
		t.Fatalf("got %v", got)
	}
}

func TestRankNoDuplicatesAndSubsetOfCatalog(t *testing.T) {
	candidates := []catalog.Drug{
		drug(1, "Vitamin D3", "vitamin d3", "1", 0),
		drug(2, "Multivitamin Complex", "Complete daily vitamin supplement", "1", 0),
		drug(3, "Vitamn C", "", "1", 0),
	}
	got := Rank("vitamin", candidates)
	seen := map[int64]bool{}
	for _, d := range got {
		if seen[d.ID] {
			t.Fatalf("duplicate id %d in %v", d.ID, ids(got))
		}
		seen[d.ID] = true
		if d.ID < 1 || d.ID > 3 {
			t.Fatalf("unknown id %d", d.ID)
		}
	}
	// 3 only matches through the fuzzy tier.
	if !equalIDs(ids(got), []int64{1, 2, 3}) {
		t.Fatalf("got %v", ids(got))
	}
}

func TestFuzzySkipsShortTokensAndFarWords(t *testing.T) {
	candidates := []catalog.Drug{drug(1, "Paracetamol", "", "1", 0)}
	if got := fuzzyMatch([]string{"x"}, candidates); len(got) != 0 {
		t.Fatalf("single-rune tokens should not fuzzy match: %v", ids(got))
	}
	if got := fuzzyMatch([]string{"vitamin"}, candidates); len(got) != 0 {
		t.Fatalf("unexpected fuzzy match: %v", ids(got))
	}
	if got := fuzzyMatch([]string{"paracetmol"}, candidates); len(got) != 1 {
		t.Fatalf("expected typo to match")
	}
}

func TestRemoteHitsWin(t *testing.T) {
	remote := &fakeRemote{items: []pharmaapi.Drug{
		{ID: json.Number("9"), Name: "Remote Vitamin", Batch: "R1", Owner: "0x1234567890abcdef1234567890abcdef12345678"},
	}}
	p := NewPipeline(remote, time.Second)
	got := p.Run(context.Background(), "vitamin", []catalog.Drug{drug(2, "Vitamin C", "", "1", 0)})
	if !equalIDs(ids(got), []int64{9}) || !got[0].Price.IsZero() {
		t.Fatalf("got %+v", got)
	}
}

func TestRemoteErrorFallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{err: &pharmaapi.RejectionError{Status: 404, Detail: "Not Found"}}
	p := NewPipeline(remote, time.Second)
	got := p.Run(context.Background(), "vitamin", []catalog.Drug{drug(2, "Vitamin C", "", "1", 0)})
	if !equalIDs(ids(got), []int64{2}) {
		t.Fatalf("got %v", ids(got))
	}
}

func TestRemoteTimeoutFallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{delay: time.Second}
	p := NewPipeline(remote, 20*time.Millisecond)
	start := time.Now()
	got := p.Run(context.Background(), "vitamin", []catalog.Drug{drug(2, "Vitamin C", "", "1", 0)})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("remote timeout not enforced")
	}
	if !equalIDs(ids(got), []int64{2}) {
		t.Fatalf("got %v", ids(got))
	}
}

func TestApplySortAndPriceRange(t *testing.T) {
	ranked := []catalog.Drug{
		drug(1, "A", "", "12.9", 4.0),
		drug(2, "B", "", "3.32", 4.8),
		drug(3, "C", "", "24.78", 4.8),
		drug(4, "D", "", "150", 3.0),
	}
	lo := decimal.NewFromInt(3)
	hi := decimal.NewFromInt(100)

	got := Apply(ranked, Query{Sort: SortPriceAsc, MinPrice: &lo, MaxPrice: &hi})
	if !equalIDs(ids(got), []int64{2, 1, 3}) {
		t.Fatalf("price-asc got %v", ids(got))
	}
	got = Apply(ranked, Query{Sort: SortPriceDesc})
	if !equalIDs(ids(got), []int64{4, 3, 1, 2}) {
		t.Fatalf("price-desc got %v", ids(got))
	}
	got = Apply(ranked, Query{Sort: SortRatingDesc})
	if !equalIDs(ids(got), []int64{2, 3, 1, 4}) {
		t.Fatalf("rating-desc got %v", ids(got))
	}
	got = Apply(ranked, Query{Sort: SortRelevance})
	if !equalIDs(ids(got), []int64{1, 2, 3, 4}) {
		t.Fatalf("relevance got %v", ids(got))
	}
	if !equalIDs(ids(ranked), []int64{1, 2, 3, 4}) {
		t.Fatalf("input was modified")
	}
}

func chiRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

type staticCatalog struct {
	drugs []catalog.Drug
	err   error
}

func (c staticCatalog) ListPublic(ctx context.Context) ([]catalog.Drug, error) { return c.drugs, c.err }

func TestHandlerSearch(t *testing.T) {
	svc := NewService(staticCatalog{drugs: []catalog.Drug{
		drug(1, "Paracetamol 500mg", "", "1", 4.5),
		drug(2, "Vitamin C 1000mg", "", "2", 4.5),
	}}, NewPipeline(nil, 0))
	r := chiRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=vitamin", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code %d", w.Code)
	}
	var body struct {
		Count int            `json:"count"`
		Items []catalog.Drug `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Items[0].ID != 2 {
		t.Fatalf("unexpected body %+v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?sort=cheapest", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad sort code %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?min=abc", nil))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid min") {
		t.Fatalf("bad min code %d", w.Code)
	}
}

func TestNoMatchesIsEmptyList(t *testing.T) {
	candidates := []catalog.Drug{drug(1, "Paracetamol 500mg", "", "1", 4.5)}
	if got := Rank("zzzzzz", candidates); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if got := Rank("", nil); got == nil {
		t.Fatalf("expected empty non-nil result for an empty catalog")
	}

	r := chiRouter(NewService(staticCatalog{drugs: candidates}, NewPipeline(nil, 0)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=zzzzzz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Fatalf("code %d body %s", w.Code, w.Body.String())
	}
}

func TestServiceCatalogFailure(t *testing.T) {
	svc := NewService(staticCatalog{err: errors.New("boom")}, NewPipeline(nil, 0))
	if _, err := svc.Search(context.Background(), Query{Text: "x"}); err == nil {
		t.Fatalf("expected catalog error")
	}
}

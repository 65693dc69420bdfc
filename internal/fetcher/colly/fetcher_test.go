package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roshanis/shopagent/internal/fetcher/headless"
)

const structuredPage = `<!doctype html>
<html><head>
<title>Ignored title</title>
<meta property="og:title" content="Meta Shampoo">
<meta property="og:description" content="Meta description">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList","name":"crumbs"},
  {"@type":["Product","Thing"],
   "name":"Organic Shampoo",
   "brand":{"@type":"Brand","name":"Acme"},
   "category":"beauty",
   "offers":[{"@type":"Offer","price":"12.50","priceCurrency":"USD"}],
   "aggregateRating":{"ratingValue":"4.4","reviewCount":"120"},
   "review":[{"reviewBody":"Smells great"},{"reviewBody":" "},{"reviewBody":"Gentle on skin"}]}
]}
</script>
</head><body><h1>Organic Shampoo</h1></body></html>`

const metaOnlyPage = `<html><head>
<meta property="og:title" content="Bamboo Toothbrush">
<meta property="product:brand" content="GreenCo">
<meta property="product:price:amount" content="$4,99">
<meta name="description" content="A compostable brush">
</head><body><p>Buy now</p></body></html>`

func newPageServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func TestFetchStructuredData(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/p/shampoo", htmlHandler(structuredPage))
	srv := newPageServer(t, mux)

	page, err := New(Config{UserAgent: "test-agent"}).Fetch(context.Background(), srv.URL+"/p/shampoo")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, srv.URL+"/p/shampoo", page.URL)
	p := page.Product
	assert.Equal(t, "Organic Shampoo", p.Name)
	assert.Equal(t, "Acme", p.Brand)
	assert.InDelta(t, 12.5, p.Price, 1e-9)
	assert.Equal(t, "beauty", p.Category)
	assert.Equal(t, "Meta description", p.Description)
	assert.Equal(t, "Smells great | Gentle on skin", p.Reviews)
	require.NotNil(t, p.Rating)
	assert.InDelta(t, 4.4, *p.Rating, 1e-9)
}

func TestFetchMetaTags(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/brush", htmlHandler(metaOnlyPage))
	srv := newPageServer(t, mux)

	page, err := New(Config{}).Fetch(context.Background(), srv.URL+"/brush")
	require.NoError(t, err)

	assert.Equal(t, "Bamboo Toothbrush", page.Product.Name)
	assert.Equal(t, "GreenCo", page.Product.Brand)
	assert.InDelta(t, 4.99, page.Product.Price, 1e-9)
	assert.Equal(t, "A compostable brush", page.Product.Description)
	assert.Nil(t, page.Product.Rating)
}

func TestFetchScriptRenderedPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/spa", htmlHandler(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`))
	srv := newPageServer(t, mux)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL+"/spa")
	require.ErrorIs(t, err, ErrScriptRendered)
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, url string) (headless.Rendered, error) {
	r.calls++
	if r.err != nil {
		return headless.Rendered{}, r.err
	}
	return headless.Rendered{URL: url, StatusCode: http.StatusOK, HTML: []byte(r.html)}, nil
}

func TestFetchRendersScriptPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/spa", htmlHandler(`<html><body><div id="__next"></div></body></html>`))
	srv := newPageServer(t, mux)

	renderer := &fakeRenderer{html: metaOnlyPage}
	page, err := New(Config{Renderer: renderer}).Fetch(context.Background(), srv.URL+"/spa")
	require.NoError(t, err)
	assert.True(t, page.UsedHeadless)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, "Bamboo Toothbrush", page.Product.Name)
	assert.Equal(t, srv.URL+"/spa", page.URL)

	failing := &fakeRenderer{err: headless.ErrUnavailable}
	_, err = New(Config{Renderer: failing}).Fetch(context.Background(), srv.URL+"/spa")
	require.ErrorIs(t, err, ErrScriptRendered)
	require.ErrorIs(t, err, headless.ErrUnavailable)
}

func TestFetchDoesNotRenderServerPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/brush", htmlHandler(metaOnlyPage))
	srv := newPageServer(t, mux)

	renderer := &fakeRenderer{}
	page, err := New(Config{Renderer: renderer}).Fetch(context.Background(), srv.URL+"/brush")
	require.NoError(t, err)
	assert.False(t, page.UsedHeadless)
	assert.Zero(t, renderer.calls)
}

func TestFetchNoProduct(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("nothing to see here, just a long plain text document without markup"))
	})
	srv := newPageServer(t, mux)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL+"/plain")
	require.ErrorIs(t, err, ErrNoProduct)
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()

	srv := newPageServer(t, http.NewServeMux())

	_, err := New(Config{}).Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 404")
}

func TestFetchRespectsRobots(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/private/item", htmlHandler(metaOnlyPage))
	srv := newPageServer(t, mux)

	_, err := New(Config{RespectRobots: true}).Fetch(context.Background(), srv.URL+"/private/item")
	require.ErrorIs(t, err, ErrRobotsBlocked)

	page, err := New(Config{RespectRobots: false}).Fetch(context.Background(), srv.URL+"/private/item")
	require.NoError(t, err)
	assert.Equal(t, "Bamboo Toothbrush", page.Product.Name)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := newPageServer(t, mux)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Fetch(ctx, srv.URL+"/slow")
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestFetchRejectsBadURL(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	for _, raw := range []string{"ftp://example.com/x", "not a url", "http://"} {
		if _, err := f.Fetch(context.Background(), raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := map[string]float64{
		"12.99":     12.99,
		"$1,299.00": 1299,
		"12,50":     12.5,
		"1,299":     1299,
		"EUR 7":     7,
		"free":      0,
		"":          0,
	}
	for raw, want := range tests {
		assert.InDelta(t, want, parsePrice(raw), 1e-9, raw)
	}
}

func TestProductFromLDRejectsOtherTypes(t *testing.T) {
	t.Parallel()

	_, ok := productFromLD(`{"@type":"Organization","name":"Acme"}`)
	assert.False(t, ok)
	_, ok = productFromLD(`not json`)
	assert.False(t, ok)

	fields, ok := productFromLD(`[{"@type":"http://schema.org/Product","name":"Soap","brand":"Acme","offers":{"lowPrice":3}}]`)
	require.True(t, ok)
	assert.Equal(t, "Soap", fields.name)
	assert.Equal(t, "Acme", fields.brand)
	assert.InDelta(t, 3, fields.price, 1e-9)
}

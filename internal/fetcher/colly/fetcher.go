// Package collyfetcher reads product details from a product page so a
// product can be submitted without typing every field by hand.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/fetcher/headless"
	"github.com/roshanis/shopagent/internal/headless/detector"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

var (
	// ErrScriptRendered means the page is an app shell a plain fetch cannot read.
	ErrScriptRendered = errors.New("product page is rendered by script; pass the product fields explicitly")
	// ErrNoProduct means the page carried no recognisable product details.
	ErrNoProduct = errors.New("no product details found on page")
	// ErrRobotsBlocked means robots.txt disallows the page for our user agent.
	ErrRobotsBlocked = errors.New("product page is disallowed by robots.txt")
)

// Renderer runs a page's scripts and returns the resulting document.
type Renderer interface {
	Render(ctx context.Context, url string) (headless.Rendered, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
	// Renderer, when set, is tried on pages that look script-rendered.
	Renderer Renderer
	Logger   *zap.Logger
}

// Page is a fetched product page and the product read from it.
type Page struct {
	URL          string
	StatusCode   int
	Product      evaluation.Product
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher reads product pages using a Colly collector.
type Fetcher struct {
	cfg           Config
	detector      *detector.Heuristic
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	return &Fetcher{
		cfg:           cfg,
		detector:      detector.NewHeuristic(0),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch downloads rawURL and extracts the product it describes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return Page{}, err
	}

	var (
		state    pageState
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, &state, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return Page{}, err
	}

	page := Page{
		URL:        state.finalURL,
		StatusCode: state.status,
		Product:    state.fields.product(),
		Duration:   time.Since(start),
	}
	f.logger.Debug("product page fetched",
		zap.String("url", page.URL),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(state.body)),
		zap.Bool("structured_data", state.fields.structured),
		zap.Duration("duration", page.Duration),
	)
	if strings.TrimSpace(page.Product.Name) != "" {
		return page, nil
	}
	if !f.detector.ScriptRendered(state.status, state.body) {
		return Page{}, ErrNoProduct
	}
	if f.cfg.Renderer == nil {
		return Page{}, ErrScriptRendered
	}
	return f.render(ctx, target, start)
}

// render retries a script-rendered page through the headless renderer.
func (f *Fetcher) render(ctx context.Context, target string, start time.Time) (Page, error) {
	rendered, err := f.cfg.Renderer.Render(ctx, target)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrScriptRendered, err)
	}
	fields, err := extractDocument(rendered.HTML)
	if err != nil {
		return Page{}, err
	}
	page := Page{
		URL:          rendered.URL,
		StatusCode:   rendered.StatusCode,
		Product:      fields.product(),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}
	f.logger.Debug("product page rendered",
		zap.String("url", page.URL),
		zap.Int("status", page.StatusCode),
		zap.Duration("render", rendered.Duration),
	)
	if strings.TrimSpace(page.Product.Name) == "" {
		return Page{}, ErrNoProduct
	}
	return page, nil
}

// pageState collects what the collector callbacks observe for one fetch.
type pageState struct {
	finalURL string
	status   int
	body     []byte
	fields   pageFields
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *pageState, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		state.finalURL = r.Request.URL.String()
		state.status = r.StatusCode
		state.body = append([]byte(nil), r.Body...)
	})

	hooks.OnHTML("html", func(e *colly.HTMLElement) {
		state.fields = extractFields(e)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("product page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return ErrRobotsBlocked
		}
		if *fetchErr != nil {
			return fmt.Errorf("product page fetch failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("product page fetch failed: %w", err)
		}
		return nil
	}
}

func parseTarget(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid product url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid product url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid product url %q: missing host", rawURL)
	}
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

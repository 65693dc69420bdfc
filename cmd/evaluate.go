package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/client"
	"github.com/roshanis/shopagent/internal/config"
	"github.com/roshanis/shopagent/internal/evaluation"
	collyfetcher "github.com/roshanis/shopagent/internal/fetcher/colly"
	"github.com/roshanis/shopagent/internal/fetcher/headless"
	"github.com/roshanis/shopagent/internal/logging"
	"github.com/roshanis/shopagent/internal/poller"
	"github.com/roshanis/shopagent/internal/progress"
	"github.com/roshanis/shopagent/internal/progress/sinks"
	"github.com/roshanis/shopagent/internal/render"
	"github.com/roshanis/shopagent/internal/store"
	"github.com/roshanis/shopagent/internal/view"
)

const cancelTimeout = 5 * time.Second

type evaluateOptions struct {
	product     evaluation.Product
	rating      float64
	url         string
	plain       bool
	noWait      bool
	metricsAddr string
}

func newEvaluateCmd() *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Submit a product and watch its evaluation",
		Long: `Submits a product to the evaluation service and follows the job until
the agents finish. Progress is shown per agent; Ctrl+C cancels the job.

With --url the product is read from its page first (schema.org data or
product meta tags); any field flags given alongside override what the page
says.`,
		Example: `  shoplab evaluate --name "Organic Shampoo" --brand Acme --price 12.5 \
    --category beauty --ingredients "water, aloe" --rating 4.4
  shoplab evaluate --url https://shop.example.com/p/organic-shampoo --ingredients "water, aloe"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.url == "" {
				if err := requireFlags(cmd, "name", "brand", "price"); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("rating") {
				r := opts.rating
				opts.product.Rating = &r
			}
			return runEvaluate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.product.Name, "name", "", "product name")
	f.StringVar(&opts.product.Brand, "brand", "", "brand or supplier")
	f.Float64Var(&opts.product.Price, "price", 0, "price in dollars")
	f.StringVar(&opts.product.Category, "category", "", "product category")
	f.StringVar(&opts.product.Description, "description", "", "free-text description")
	f.StringVar(&opts.product.Ingredients, "ingredients", "", "ingredient list")
	f.StringVar(&opts.product.Reviews, "reviews", "", "review excerpts")
	f.Float64Var(&opts.rating, "rating", 0, "average rating, 0 to 5")
	f.StringVar(&opts.url, "url", "", "read product details from this product page")
	f.BoolVar(&opts.plain, "plain", false, "print progress lines instead of the interactive display")
	f.BoolVar(&opts.noWait, "no-wait", false, "submit and print the job id without watching")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve monitor metrics on this address while watching")
	return cmd
}

// requireFlags mirrors cobra's required-flag error for flags that are only
// required when --url is absent.
func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, name := range names {
		if !cmd.Flags().Changed(name) {
			missing = append(missing, fmt.Sprintf("%q", name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", "))
	}
	return nil
}

// importProduct reads the product page and lets explicitly set flags win.
func importProduct(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts *evaluateOptions, logger *zap.Logger) (evaluation.Product, error) {
	fetchCfg := collyfetcher.Config{
		UserAgent:     cfg.Import.UserAgent,
		RespectRobots: cfg.Import.RespectRobots,
		Timeout:       cfg.Import.Timeout,
		Logger:        logger.Named("import"),
	}
	if cfg.Import.Headless {
		renderer, err := headless.NewChromedp(headless.Config{
			MaxParallel:       1,
			UserAgent:         cfg.Import.UserAgent,
			NavigationTimeout: cfg.Import.Timeout,
		})
		if err != nil {
			return evaluation.Product{}, fmt.Errorf("headless renderer init failed: %w", err)
		}
		defer renderer.Close()
		fetchCfg.Renderer = renderer
	}
	page, err := collyfetcher.New(fetchCfg).Fetch(ctx, opts.url)
	if err != nil {
		return evaluation.Product{}, fmt.Errorf("import %s: %w", opts.url, err)
	}
	logger.Info("product imported",
		zap.String("url", page.URL),
		zap.String("name", page.Product.Name),
		zap.Bool("headless", page.UsedHeadless),
	)

	p := page.Product
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("name", &p.Name, opts.product.Name)
	override("brand", &p.Brand, opts.product.Brand)
	override("category", &p.Category, opts.product.Category)
	override("description", &p.Description, opts.product.Description)
	override("ingredients", &p.Ingredients, opts.product.Ingredients)
	override("reviews", &p.Reviews, opts.product.Reviews)
	if flags.Changed("price") {
		p.Price = opts.product.Price
	}
	if flags.Changed("rating") {
		p.Rating = opts.product.Rating
	}
	return p, nil
}

func newClient(cfg config.Config, logger *zap.Logger) (*client.Client, error) {
	opts := []client.Option{
		client.WithTimeout(cfg.Client.Timeout),
		client.WithLogger(logger.Named("client")),
	}
	if cfg.Auth.Enabled {
		opts = append(opts, client.WithAPIKey(cfg.Auth.APIKey))
	}
	c, err := client.New(cfg.Client.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("client init failed: %w", err)
	}
	return c, nil
}

func runEvaluate(cmd *cobra.Command, opts *evaluateOptions) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := logging.NewCLI(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	r := render.New(render.DefaultTheme)

	if opts.url != "" {
		p, err := importProduct(ctx, cmd, cfg, opts, logger)
		if err != nil {
			return err
		}
		opts.product = p
		fmt.Fprintf(out, "Imported %q by %s from %s.\n", p.Name, p.Brand, opts.url)
	}

	if opts.noWait {
		resp, err := c.Submit(ctx, opts.product.Normalize())
		if err != nil {
			fmt.Fprint(out, r.Render(view.View{State: view.StateSubmission, Message: evaluation.UserMessage(err)}))
			return err
		}
		fmt.Fprintln(out, resp.ID)
		return nil
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	if opts.metricsAddr != "" {
		stopMetrics, err := serveMonitorMetrics(opts.metricsAddr, &hubSinks, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}
	if cfg.Monitor.PubSubTopic != "" {
		ps, err := sinks.DialPubSubSink(ctx, cfg.Monitor.PubSubProject, cfg.Monitor.PubSubTopic)
		if err != nil {
			return err
		}
		hubSinks = append(hubSinks, ps)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress_hub")}, hubSinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	st := store.New()
	ctrl := poller.New(c, st, poller.Config{
		Interval: cfg.Monitor.PollInterval,
		Emitter:  hub,
		Logger:   logger.Named("poller"),
	})
	m := view.New(c, st, ctrl, nil, logger.Named("view"))

	// The observation outlives a SIGINT so Ctrl+C can still cancel the job.
	watchCtx := context.WithoutCancel(ctx)
	resp, err := m.Submit(watchCtx, opts.product)
	if err != nil {
		fmt.Fprint(out, r.Render(m.View()))
		return err
	}
	fmt.Fprintf(out, "Evaluation %s started.\n", resp.ID)

	if opts.plain {
		watchPlain(ctx, m, out)
	} else if _, err := render.Watch(ctx, m, r); err != nil {
		cancelJob(watchCtx, m)
		return err
	}
	if _, err := m.Wait(watchCtx); err != nil {
		return err
	}
	return report(out, m, r)
}

// watchPlain prints one line per progress change until the observation ends.
// Cancelling ctx cancels the job.
func watchPlain(ctx context.Context, m *view.Machine, out io.Writer) {
	changes, stop := m.Changes()
	defer stop()

	last := -1
	for {
		v := m.View()
		if v.State != view.StateObserving {
			return
		}
		if v.Status != nil && v.Summary.Percent != last {
			last = v.Summary.Percent
			fmt.Fprintf(out, "%3d%%  %-9s elapsed %s\n", v.Summary.Percent, v.Status.Status, v.Summary.Elapsed.Round(time.Second))
		}
		select {
		case <-ctx.Done():
			cancelJob(context.WithoutCancel(ctx), m)
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
	}
}

// canceller is the part of view.Machine that cancels the observed job.
type canceller interface {
	Cancel(ctx context.Context)
}

// cancelJob cancels the observed job, bounding the remote call by
// cancelTimeout so a hung service cannot stall the exit.
func cancelJob(ctx context.Context, m canceller) {
	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	m.Cancel(cancelCtx)
}

func report(out io.Writer, m *view.Machine, r *render.Renderer) error {
	outcome, _ := m.Outcome()
	switch outcome.Kind {
	case poller.OutcomeCancelled, poller.OutcomeAbandoned:
		fmt.Fprintln(out, "Evaluation cancelled.")
		return nil
	case poller.OutcomeFailed:
		fmt.Fprint(out, r.Render(m.View()))
		return outcome.Err
	default:
		fmt.Fprint(out, r.Render(m.View()))
		return nil
	}
}

// serveMonitorMetrics exposes a Prometheus sink on its own registry.
func serveMonitorMetrics(addr string, hubSinks *[]progress.Sink, logger *zap.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	sink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics sink init failed: %w", err)
	}
	*hubSinks = append(*hubSinks, sink)

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("monitor metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

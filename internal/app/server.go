package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-admin/internal/domain/dashboard"
	"github.com/xenking/catalog-admin/internal/domain/order"
	"github.com/xenking/catalog-admin/internal/domain/product"
	"github.com/xenking/catalog-admin/internal/domain/productform"
	"github.com/xenking/catalog-admin/internal/handler"
	"github.com/xenking/catalog-admin/internal/storage/objectstore"
	"github.com/xenking/catalog-admin/internal/storage/postgres"
	"github.com/xenking/catalog-admin/pkg/health"
	"github.com/xenking/catalog-admin/pkg/httpmiddleware"
)

const serviceName = "catalog-admin"

// server is the fully wired HTTP handler plus the draft sessions it owns.
type server struct {
	handler http.Handler
	drafts  *productform.Registry
}

// newServer builds services on top of pool and store and mounts them with
// the health endpoints behind the middleware chain. Background cleanup stops
// when ctx is cancelled; close releases the draft sessions.
func newServer(
	ctx context.Context,
	tel httpmiddleware.Telemetry,
	cfg *Config,
	pool *pgxpool.Pool,
	store *objectstore.Store,
	healthSvc *health.Health,
) (*server, error) {
	productSvc := product.NewService(postgres.NewProductRepository(pool), store)
	orderSvc := order.NewService(postgres.NewOrderRepository(pool))
	dashboardSvc := dashboard.NewService(postgres.NewDashboardRepository(pool))

	previewer := productform.NewThumbnailPreviewer(cfg.Drafts.PreviewMaxEdge)
	submit := func(ctx context.Context, d productform.Draft) (*product.Product, error) {
		return productSvc.Create(ctx, d.CreateRequest())
	}
	drafts := productform.NewRegistry(cfg.Drafts.IdleTTL, func(id string) *productform.Form {
		return productform.New(submit,
			productform.WithID(id),
			productform.WithPreviewer(previewer),
			productform.WithNotifier(productform.LogNotifier{}),
		)
	})

	h, err := handler.NewHandler(drafts, productSvc, orderSvc, dashboardSvc, tel.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.MaxMultipartMemory = cfg.Drafts.MaxUploadMemory
	h.Register(engine.Group("/api"))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveHandler)
	mux.HandleFunc("/readyz", healthSvc.ReadyHandler)
	mux.Handle("/api/", engine)

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		RPS:   cfg.RateLimit.RPS,
		Burst: cfg.RateLimit.Burst,
		Skip:  httpmiddleware.SkipPaths("/livez", "/readyz"),
	})

	drafts.StartCleanup(ctx)
	limiter.StartCleanup(ctx)

	return &server{
		drafts: drafts,
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.TrackRoute(),
			httpmiddleware.Instrument(serviceName, tel),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}, nil
}

func (s *server) close() {
	s.drafts.Close()
	s.drafts.Wait()
}

package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/commerce/internal/platform/auth"
	"github.com/hanko-field/commerce/internal/platform/cache"
	"github.com/hanko-field/commerce/internal/platform/config"
	pfirestore "github.com/hanko-field/commerce/internal/platform/firestore"
	"github.com/hanko-field/commerce/internal/platform/idempotency"
	"github.com/hanko-field/commerce/internal/platform/messaging"
	"github.com/hanko-field/commerce/internal/platform/observability"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
	"github.com/hanko-field/commerce/internal/platform/storage"
	"github.com/hanko-field/commerce/internal/repositories"
	firestorerepo "github.com/hanko-field/commerce/internal/repositories/firestore"
	"github.com/hanko-field/commerce/internal/repositories/memory"
	postgresrepo "github.com/hanko-field/commerce/internal/repositories/postgres"
	"github.com/hanko-field/commerce/internal/services"
)

const (
	instrumentationName = "github.com/hanko-field/commerce/internal/services"
	redisCachePrefix    = "commerce:cache:"
	closeTimeout        = 5 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Inventory    services.InventoryService
	Pricing      services.PricingEngine
	Promotions   services.PromotionService
	Counters     services.CounterService
	Addresses    services.AddressService
	Carts        services.CartService
	StateMachine services.OrderStateMachine
	Orders       services.OrderService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator
	Idempotency   idempotency.Store
	Relay         *messaging.Relay

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	registry repositories.Registry
	clock    func() time.Time
	observe  func(eventType string, err error)
}

// WithLogger sets the base logger handed to services and background workers.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithRegistry skips storage construction and uses reg instead. Tests use it with memory registries.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) { o.registry = reg }
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// WithEventObserver is called once per relay delivery attempt, typically to feed metrics.
func WithEventObserver(observe func(eventType string, err error)) Option {
	return func(o *containerOptions) { o.observe = observe }
}

// NewContainer constructs the runtime dependencies described by cfg. On error every
// resource opened so far is released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	o := containerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = func() time.Time { return time.Now().UTC() }
	}

	c = &Container{Config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = c.Close(closeCtx)
			c = nil
		}
	}()

	redisCache, err := c.redisCache(ctx)
	if err != nil {
		return c, err
	}

	reg := o.registry
	if reg == nil {
		reg, err = c.buildRegistry(ctx, redisCache, o.clock)
		if err != nil {
			return c, err
		}
	}
	c.Repositories = reg

	authn, err := c.buildAuthenticator(o.clock)
	if err != nil {
		return c, err
	}
	c.Authenticator = authn

	if redisCache != nil {
		store, err := idempotency.NewRedisStore(redisCache.Client())
		if err != nil {
			return c, fmt.Errorf("build idempotency store: %w", err)
		}
		c.Idempotency = store
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	priceCache := cache.Cache(cache.NewMemory(o.clock))
	if redisCache != nil {
		priceCache = redisCache
	}

	archiver, err := c.buildArchiver(ctx)
	if err != nil {
		return c, err
	}

	svc, err := buildServices(reg, cfg, serviceInfra{
		clock:    o.clock,
		logger:   observability.ServiceLogger(o.logger.Named("services")),
		cache:    priceCache,
		archiver: archiver,
	})
	if err != nil {
		return c, err
	}
	c.Services = svc

	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		return c, err
	}
	relay, err := messaging.NewRelay(messaging.RelayDeps{
		Outbox:      reg.Outbox(),
		UnitOfWork:  reg,
		Publisher:   publisher,
		Interval:    cfg.Events.RelayInterval,
		BatchSize:   cfg.Events.RelayBatch,
		MaxAttempts: cfg.Events.RelayMaxAttempts,
		Backoff:     cfg.Events.RelayBackoff,
		Logger:      o.logger.Named("relay"),
		Clock:       o.clock,
		Observe:     o.observe,
	})
	if err != nil {
		return c, fmt.Errorf("build outbox relay: %w", err)
	}
	c.Relay = relay

	return c, nil
}

// Close releases resources such as repository clients, broker connections and caches,
// in reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.close(ctx); err != nil {
			c.logger.Warn("close error", zap.String("resource", closer.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) redisCache(ctx context.Context) (*cache.Redis, error) {
	if c.Config.Cache.Driver != config.CacheDriverRedis {
		return nil, nil
	}
	client, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     c.Config.Cache.RedisAddr,
		Password: c.Config.Cache.RedisPassword,
		DB:       c.Config.Cache.RedisDB,
		Prefix:   redisCachePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	c.onClose("redis", func(context.Context) error { return client.Close() })
	return client, nil
}

func (c *Container) buildRegistry(ctx context.Context, redisCache *cache.Redis, clock func() time.Time) (repositories.Registry, error) {
	cfg := c.Config
	var probes []repositories.DependencyProbe

	var counters repositories.CounterRepository
	switch cfg.Counters.Backend {
	case config.CounterBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.onClose("firestore", provider.Close)
		repo, err := firestorerepo.NewCounterRepository(provider, clock)
		if err != nil {
			return nil, fmt.Errorf("build firestore counter repository: %w", err)
		}
		counters = repo
		probes = append(probes, repositories.DependencyProbe{Name: "firestore", Check: provider.Ping})
	case config.CounterBackendMemory:
		counters = memory.NewCounterRepository()
	}

	if redisCache != nil {
		probes = append(probes, repositories.DependencyProbe{Name: "redis", Check: redisCache.Ping})
	}

	switch cfg.Database.Driver {
	case config.StorageDriverPostgres:
		provider, err := ppostgres.NewProvider(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.onClose("postgres", provider.Close)
		if cfg.Database.AutoMigrate {
			if err := provider.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		probes = append([]repositories.DependencyProbe{{Name: "postgres", Check: provider.Ping}}, probes...)
		health, err := repositories.NewProbeHealthRepository(probes, clock)
		if err != nil {
			return nil, err
		}
		return postgresrepo.NewRegistry(provider,
			postgresrepo.WithCounterRepository(counters),
			postgresrepo.WithHealthRepository(health),
		)
	case config.StorageDriverMemory:
		c.logger.Warn("using in-memory storage; data is lost on restart")
		reg := memory.NewRegistry()
		if counters == nil && len(probes) == 0 {
			return reg, nil
		}
		probes = append([]repositories.DependencyProbe{{Name: "memory", Check: func(context.Context) error { return nil }}}, probes...)
		health, err := repositories.NewProbeHealthRepository(probes, clock)
		if err != nil {
			return nil, err
		}
		return &overlayRegistry{Registry: reg, counters: counters, health: health}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Database.Driver)
	}
}

func (c *Container) buildAuthenticator(clock func() time.Time) (*auth.Authenticator, error) {
	key := strings.TrimSpace(c.Config.Auth.SigningKey)
	if key == "" {
		return nil, errors.New("auth signing key is required (API_AUTH_SIGNING_KEY)")
	}
	authn, err := auth.NewAuthenticator(key, auth.WithIssuer(c.Config.Auth.Issuer), auth.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("build authenticator: %w", err)
	}
	return authn, nil
}

func (c *Container) buildArchiver(ctx context.Context) (services.LineImageArchiver, error) {
	if strings.TrimSpace(c.Config.Storage.ImagesBucket) == "" {
		return nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	copier, err := storage.NewCopier(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.onClose("storage", func(context.Context) error { return copier.Close() })
	archiver, err := storage.NewArchiver(copier, c.Config.Storage.ImagesBucket, c.Config.Storage.OrdersBucket)
	if err != nil {
		return nil, err
	}
	return archiver, nil
}

func (c *Container) buildPublisher(ctx context.Context) (messaging.Publisher, error) {
	cfg := c.Config.Events
	var (
		publisher messaging.Publisher
		err       error
	)
	switch cfg.Driver {
	case config.EventsDriverLog:
		publisher = messaging.NewLogPublisher(c.logger.Named("events"))
	case config.EventsDriverPubSub:
		var opts []option.ClientOption
		if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
			opts = append(opts,
				option.WithoutAuthentication(),
				option.WithEndpoint(host),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		client, clientErr := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
		if clientErr != nil {
			return nil, fmt.Errorf("build pubsub client: %w", clientErr)
		}
		c.onClose("pubsub client", func(context.Context) error { return client.Close() })
		publisher, err = messaging.NewPubSubPublisher(client)
	case config.EventsDriverKafka:
		publisher, err = messaging.NewKafkaPublisher(cfg.Kafka.Brokers)
	case config.EventsDriverRabbitMQ:
		publisher, err = messaging.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	case config.EventsDriverWebhook:
		publisher, err = messaging.NewWebhookPublisher(cfg.Webhook.URL, cfg.Webhook.SigningSecret, cfg.Webhook.Timeout)
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s publisher: %w", cfg.Driver, err)
	}
	c.onClose("publisher", func(context.Context) error { return publisher.Close() })
	return publisher, nil
}

type serviceInfra struct {
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	cache    cache.Cache
	archiver services.LineImageArchiver
}

func buildServices(reg repositories.Registry, cfg config.Config, infra serviceInfra) (Services, error) {
	var svc Services
	meter := otel.Meter(instrumentationName)

	location, err := time.LoadLocation(cfg.Orders.InvoiceTimezone)
	if err != nil {
		return Services{}, fmt.Errorf("load invoice timezone: %w", err)
	}
	messages, err := services.LoadStatusMessages(cfg.Orders.StatusMessagesFile)
	if err != nil {
		return Services{}, err
	}

	events, err := services.NewEventWriter(reg.Outbox(), cfg.Events.Topic, infra.clock)
	if err != nil {
		return Services{}, fmt.Errorf("build event writer: %w", err)
	}

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Events:    events,
		Clock:     infra.clock,
		Logger:    infra.logger,
		Meter:     meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Catalog:        reg.Catalog(),
		Promotions:     reg.Promotions(),
		Cache:          infra.cache,
		CacheTTL:       cfg.Cache.TTL,
		CurrencySymbol: cfg.Orders.CurrencySymbol,
		Logger:         infra.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Catalog:    reg.Catalog(),
		UnitOfWork: reg,
		Pricing:    pricing,
		Clock:      infra.clock,
		Logger:     infra.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository:         reg.Counters(),
		Invoices:           reg.Orders(),
		Clock:              infra.clock,
		Location:           location,
		InvoicePrefix:      cfg.Orders.InvoicePrefix,
		MaxInvoiceAttempts: cfg.Orders.MaxInvoiceAttempts,
		Logger:             infra.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses:  reg.Addresses(),
		UnitOfWork: reg,
		Clock:      infra.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addressSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Catalog:    reg.Catalog(),
		Events:     events,
		UnitOfWork: reg,
		Clock:      infra.clock,
		Logger:     infra.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	machine, err := services.NewOrderStateMachine(services.OrderStateMachineDeps{
		Orders:        reg.Orders(),
		Catalog:       reg.Catalog(),
		Inventory:     inventorySvc,
		Notifications: reg.Notifications(),
		Events:        events,
		UnitOfWork:    reg,
		Messages:      messages,
		Clock:         infra.clock,
		Logger:        infra.logger,
		Meter:         meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order state machine: %w", err)
	}
	svc.StateMachine = machine

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Payments:     reg.Payments(),
		Catalog:      reg.Catalog(),
		Addresses:    reg.Addresses(),
		UnitOfWork:   reg,
		Inventory:    inventorySvc,
		Pricing:      pricing,
		Counters:     counterSvc,
		AddressBook:  addressSvc,
		StateMachine: machine,
		Carts:        cartSvc,
		Images:       infra.archiver,
		Clock:        infra.clock,
		Logger:       infra.logger,
		Meter:        meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}

// overlayRegistry swaps the counter and health repositories of an existing registry.
type overlayRegistry struct {
	repositories.Registry
	counters repositories.CounterRepository
	health   repositories.HealthRepository
}

func (r *overlayRegistry) Counters() repositories.CounterRepository {
	if r.counters != nil {
		return r.counters
	}
	return r.Registry.Counters()
}

func (r *overlayRegistry) Health() repositories.HealthRepository {
	if r.health != nil {
		return r.health
	}
	return r.Registry.Health()
}

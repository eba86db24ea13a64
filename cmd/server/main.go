package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-tenant-auth/accounts/pgstore"
	"github.com/jrsteele09/go-tenant-auth/accounts/sqlstore"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/auth/auth0"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/jrsteele09/go-tenant-auth/graphql"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/internal/logger"
	"github.com/jrsteele09/go-tenant-auth/notify"
	"github.com/jrsteele09/go-tenant-auth/outbox"
	"github.com/jrsteele09/go-tenant-auth/ratelimit"
	"github.com/jrsteele09/go-tenant-auth/server"
	"github.com/jrsteele09/go-tenant-auth/socket"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running server: %s\n", err)
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	l := logger.New(c.GetEnv(), os.Stdout)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, closeOpener, err := openRegistry(ctx, c, l)
	if err != nil {
		return err
	}
	defer closeOpener()
	defer func() {
		if err := registry.Close(); err != nil {
			l.Err(err).Msg("closing tenant stores")
		}
	}()
	if c.GetTenantWarmup() {
		warmup(ctx, registry, c.GetGlobalStoreName(), l)
	}

	store, err := outbox.Open(ctx, c.GetOutboxPath())
	if err != nil {
		return fmt.Errorf("outbox.Open: %w", err)
	}
	defer store.Close()
	worker, err := newWorker(c, store, l)
	if err != nil {
		return err
	}
	stopWorker := worker.Start(ctx)
	defer stopWorker()

	notifier, err := notify.NewNotifier(store)
	if err != nil {
		return err
	}
	service, gate, err := newAuth(c, registry, notifier, l)
	if err != nil {
		return err
	}
	limiter, err := newLimiter(c)
	if err != nil {
		return err
	}

	sockets, err := socket.New(service, gate,
		socket.WithLogger(l),
		socket.WithProduction(c.IsProduction()),
		socket.WithOriginPatterns(originPatterns(c)...),
	)
	if err != nil {
		return err
	}
	gql, err := graphql.NewHandler(service, gate, graphql.WithLogger(l), graphql.WithProduction(c.IsProduction()))
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Deps{Service: service, Gatekeeper: gate, Limiter: limiter},
		server.WithLogger(l),
		server.WithHandler("GET /socket"+socket.NamespaceAuth, sockets.AuthHandler()),
		server.WithHandler("GET /socket"+socket.NamespaceSession, sockets.SessionHandler()),
		server.WithHandler("POST /graphql", gql),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(httpServer, l)
	waitForStopSignal()
	return shutdown(httpServer)
}

// openRegistry builds the tenant registry over the configured store driver.
// The returned func releases driver level resources.
func openRegistry(ctx context.Context, c config.Config, l zerolog.Logger) (*tenants.Registry, func(), error) {
	var (
		open    tenants.Opener
		release = func() {}
	)
	switch c.GetStoreDriver() {
	case config.StoreDriverSQLite:
		if err := os.MkdirAll(c.GetDataFolder(), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create data folder: %w", err)
		}
		open = sqlstore.Opener(c.GetDataFolder())
	case config.StoreDriverPostgres:
		opener, err := pgstore.NewOpener(ctx, c.GetDSN(), c.GetGlobalStoreName())
		if err != nil {
			return nil, nil, err
		}
		open = opener.Open
		release = opener.Close
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", c.GetStoreDriver())
	}

	registry, err := tenants.NewRegistry(open, tenants.WithLogger(l))
	if err != nil {
		release()
		return nil, nil, err
	}
	return registry, release, nil
}

// warmup opens the store of every organization known to the global store.
func warmup(ctx context.Context, registry *tenants.Registry, global string, l zerolog.Logger) {
	repo, err := registry.Resolve(ctx, global)
	if err != nil {
		l.Err(err).Msg("opening global store")
		return
	}
	ids, err := repo.ListIDs(ctx)
	if err != nil {
		l.Err(err).Msg("listing organizations")
		return
	}
	opened := registry.Warm(ctx, ids)
	l.Info().Int("tenants", opened).Int("organizations", len(ids)).Msg("tenant stores ready")
}

func newWorker(c config.Config, store *outbox.Store, l zerolog.Logger) (*outbox.Worker, error) {
	worker, err := outbox.NewWorker(store,
		outbox.WithPollInterval(c.GetOutboxPollInterval()),
		outbox.WithMaxAttempts(c.GetOutboxMaxAttempts()),
		outbox.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}

	var mailer notify.Mailer = notify.NewLogMailer(l)
	if c.GetMailerHost() != "" {
		mailer, err = notify.NewSMTPMailer(c.GetMailerHost(), c.GetMailerPort(), c.GetMailerUser(), c.GetMailerPassword(), c.GetMailerFrom())
		if err != nil {
			return nil, err
		}
	}
	worker.Register(notify.WelcomeKind, notify.WelcomeHandler(mailer))
	return worker, nil
}

func newAuth(c config.Config, registry *tenants.Registry, notifier *notify.Notifier, l zerolog.Logger) (*auth.Service, *gatekeeper.Gatekeeper, error) {
	tokens, err := token.New(token.NewHMACSigner(c.GetJWTSecret()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
	)
	if err != nil {
		return nil, nil, err
	}
	states, err := token.NewStateCodec(c.GetStateSecret(), c.GetStateExpiry(), time.Now)
	if err != nil {
		return nil, nil, err
	}
	provider, err := auth0.New(auth0.Config{
		Domain:        c.GetAuth0Domain(),
		ClientID:      c.GetAuth0ClientID(),
		ClientSecret:  c.GetAuth0ClientSecret(),
		Audience:      c.GetAuth0Audience(),
		BaseURL:       c.GetBaseURL(),
		Scopes:        strings.Fields(c.GetAuth0Scope()),
		VerifyIDToken: c.GetAuth0VerifyIDToken(),
	})
	if err != nil {
		return nil, nil, err
	}

	service, err := auth.NewService(auth.Deps{
		Stores:   registry,
		Tokens:   tokens,
		States:   states,
		Provider: provider,
		Notifier: notifier,
	},
		auth.WithGlobalStore(c.GetGlobalStoreName()),
		auth.WithRedirectPaths(c.GetAuth0RedirectPath(), c.GetAuth0OrganizationRedirectPath()),
		auth.WithLogger(l),
	)
	if err != nil {
		return nil, nil, err
	}
	gate, err := gatekeeper.New(tokens, service)
	if err != nil {
		return nil, nil, err
	}
	return service, gate, nil
}

func newLimiter(c config.Config) (*ratelimit.Limiter, error) {
	if !c.GetTrackSiteVisit() {
		return nil, nil
	}
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if c.GetRateLimitStore() == config.RateLimitStoreRedis {
		client := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr(), Password: c.GetRedisPassword()})
		redisCounter, err := ratelimit.NewRedisCounter(client)
		if err != nil {
			return nil, err
		}
		counter = redisCounter
	}
	return ratelimit.NewLimiter(counter, c.GetMaxVisitLimit(), c.GetRestriction())
}

// originPatterns turns the CORS origins into websocket origin patterns, which
// match on host only.
func originPatterns(c config.Config) []string {
	var patterns []string
	for origin := range c.GetAllowedOrigins() {
		if i := strings.Index(origin, "://"); i >= 0 {
			origin = origin[i+3:]
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

func listenAndServe(server *http.Server, l zerolog.Logger) {
	l.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

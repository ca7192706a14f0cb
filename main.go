package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dannyz30w/wavelength-games/auth"
	"github.com/dannyz30w/wavelength-games/config"
	"github.com/dannyz30w/wavelength-games/crypto"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/game"
	"github.com/dannyz30w/wavelength-games/logger"
	"github.com/dannyz30w/wavelength-games/migrations"
	"github.com/dannyz30w/wavelength-games/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.Use(logger.Middleware(), gin.Recovery())
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	// Requests without an Origin header do not come from a foreign page.
	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func openStore(ctx context.Context, cfg *config.Config, hub *events.Hub) (game.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warningf("using the in-memory store, rooms are lost on restart")
		return storage.NewMemoryRepo(), func() {}, nil
	}

	if cfg.Migrate {
		if err := migrations.Migrate(cfg.PostgresURL); err != nil {
			return nil, nil, err
		}
	}

	pgRepo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ListenNotify {
		go pgRepo.Listen(ctx, hub)
	}
	return pgRepo, pgRepo.Close, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Setup(os.Stdout, cfg.Debug, cfg.PrettyLogs)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Dependencies
	hub := events.NewHub()
	store, closeStore, err := openStore(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer closeStore()

	passwordHasher := crypto.NewArgon2idHasher(3, 1024*64, 32, 16, 1)
	tokenManager := crypto.NewJWTManager(cfg.JWTKey, cfg.IdentityMaxAge)
	identity := auth.NewIdentityHandler(tokenManager, cfg.IdentityMaxAge)

	codes := game.NewCodeGenerator()
	tickerGen := game.NewTickerGen()

	rooms := game.NewRoomService(store, passwordHasher, codes, hub, game.RoomOptions{
		MaxPlayers: cfg.MaxPlayers,
		PublicURL:  cfg.PublicURL,
	})
	rounds := game.NewRoundService(store, game.NewRoundSetup(nil, game.DefaultBands, game.DefaultExtremes), hub)
	matcher := game.NewMatchmaker(store, codes, hub, cfg.MatchTTL)

	janitor := game.NewJanitor(store, hub, tickerGen, game.JanitorOptions{
		Interval:       cfg.JanitorEvery,
		RevealDuration: cfg.RevealDuration,
		QueueTTL:       cfg.QueueTTL,
	})
	go janitor.Run(ctx)

	gameHandler := game.NewGameHandler(rooms, rounds, matcher, hub, tickerGen, game.HandlerOptions{
		TokenKey:       auth.ContextKey,
		ResyncInterval: cfg.ResyncInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	limited := game.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware(auth.ContextKey)

	r := CreateServer(cfg.AllowedOrigins)

	r.GET("/identity", identity.IdentityHandler)
	r.POST("/matchmake", identity.OptionalIdentity(), limited, gameHandler.MatchmakeHandler)
	r.GET("/rooms/:code/qr", gameHandler.QRCodeHandler)
	{
		api := r.Group("/api")
		api.Use(identity.RequireIdentity())

		api.POST("/rooms", limited, gameHandler.CreateRoomHandler)
		api.POST("/rooms/:code/join", limited, gameHandler.JoinRoomHandler)
		api.GET("/rooms/:code", gameHandler.SnapshotHandler)
		api.GET("/rooms/:code/rounds", gameHandler.HistoryHandler)
		api.GET("/rooms/:code/events", gameHandler.EventsHandler)
		api.DELETE("/rooms/:code/players/:token", limited, gameHandler.RemovePlayerHandler)
		api.POST("/rooms/:code/rounds", limited, gameHandler.StartRoundHandler)
		api.POST("/rounds/:id/clue", limited, gameHandler.SubmitClueHandler)
		api.POST("/rounds/:id/guess", limited, gameHandler.SubmitGuessHandler)
		api.POST("/rounds/:id/complete", limited, gameHandler.CompleteRoundHandler)
	}

	// Room sockets hang off streamCtx; it is cancelled once regular
	// requests have drained.
	streamCtx, closeStreams := context.WithCancel(context.Background())
	defer closeStreams()

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutdown requested, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	closeStreams()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Infof("shutting down now")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg := &config.Config{}
	if err := config.NewCommand(cfg, run).ExecuteContext(ctx); err != nil {
		logger.Fatalf("%v", err)
	}
}

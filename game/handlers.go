package game

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Rooms is what the handlers need from RoomService.
type Rooms interface {
	CreateRoom(ctx context.Context, params CreateRoomParams) (CreatedRoom, error)
	JoinRoom(ctx context.Context, params JoinRoomParams) (domain.Player, error)
	Leave(ctx context.Context, code, token string) error
	KickPlayer(ctx context.Context, code, hostToken, targetToken string) error
	Snapshot(ctx context.Context, code, viewerToken string) (Snapshot, error)
	History(ctx context.Context, code, viewerToken string) ([]domain.Round, error)
	QRCode(ctx context.Context, code string) ([]byte, error)
}

// Rounds is what the handlers need from RoundService.
type Rounds interface {
	StartRound(ctx context.Context, code, actorToken string) (domain.Round, error)
	SubmitClue(ctx context.Context, roundId, actorToken, text string) (domain.Round, error)
	SubmitGuess(ctx context.Context, roundId, actorToken string, value float64) (domain.Round, error)
	CompleteRound(ctx context.Context, roundId, actorToken string) (domain.Round, error)
}

type Matchmaking interface {
	Enqueue(ctx context.Context, token, name string) (domain.MatchResult, error)
	Cancel(ctx context.Context, token string) error
}

const (
	ErrInvalidRequestFormat = "invalid-request-format"
	ErrUnauthenticated      = "unauthenticated"
	ErrTimeout              = "timeout"
	ErrRequestCancelled     = "request-cancelled"
	ErrUnknown              = "unknown-error"
	ErrUnknownAction        = "unknown-action"
	ErrIdentityMismatch     = "identity-mismatch"

	// kickSelfParam addresses the caller in DELETE /rooms/:code/players/:token.
	kickSelfParam = "me"
)

type HandlerOptions struct {
	// TokenKey is the gin context key holding the caller's identity token.
	TokenKey       string
	ResyncInterval time.Duration
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type GameHandler struct {
	rooms    Rooms
	rounds   Rounds
	matcher  Matchmaking
	stream   roomStream
	upgrader websocket.Upgrader
	opts     HandlerOptions
}

func NewGameHandler(rooms Rooms, rounds Rounds, matcher Matchmaking, bus Bus, tickers PeriodicTickerChannelCreator, opts HandlerOptions) *GameHandler {
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = DefaultResyncInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}

	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = struct{}{}
	}

	return &GameHandler{
		rooms:   rooms,
		rounds:  rounds,
		matcher: matcher,
		stream: roomStream{
			rooms:   rooms,
			bus:     bus,
			tickers: tickers,
			resync:  opts.ResyncInterval,
			now:     time.Now,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		opts: opts,
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var domainErr *domain.Error
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrRequestCancelled
	default:
		return ErrUnknown
	}
}

func abortWithError(ctx *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Criticalf("%s %s: %v", ctx.Request.Method, ctx.FullPath(), err)
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": errorCode(err)})
}

// caller returns the identity set by the auth middleware, aborting when it is missing.
func (h *GameHandler) caller(ctx *gin.Context) (string, bool) {
	token := ctx.GetString(h.opts.TokenKey)
	if token == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated})
		return "", false
	}
	return token, true
}

func (h *GameHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), h.opts.RequestTimeout)
}

type createRoomRequest struct {
	Name    string          `json:"name"`
	Private bool            `json:"is_private"`
	Mode    domain.RoomMode `json:"mode"`
}

func (h *GameHandler) CreateRoomHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req createRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRequestFormat})
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.rooms.CreateRoom(reqCtx, CreateRoomParams{
		HostToken: token,
		HostName:  req.Name,
		Private:   req.Private,
		Mode:      req.Mode,
	})
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

type joinRoomRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *GameHandler) JoinRoomHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req joinRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRequestFormat})
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	player, err := h.rooms.JoinRoom(reqCtx, JoinRoomParams{
		Code:     ctx.Param("code"),
		Token:    token,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, player)
}

func (h *GameHandler) SnapshotHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	snap, err := h.rooms.Snapshot(reqCtx, ctx.Param("code"), token)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, snap)
}

func (h *GameHandler) HistoryHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	rounds, err := h.rooms.History(reqCtx, ctx.Param("code"), token)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rounds": rounds})
}

// RemovePlayerHandler serves both leaving (":token" = "me") and kicking.
func (h *GameHandler) RemovePlayerHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var err error
	code, target := ctx.Param("code"), ctx.Param("token")
	if target == kickSelfParam {
		err = h.rooms.Leave(reqCtx, code, token)
	} else {
		err = h.rooms.KickPlayer(reqCtx, code, token, target)
	}
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *GameHandler) StartRoundHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	round, err := h.rounds.StartRound(reqCtx, ctx.Param("code"), token)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, hiddenFrom(round, token))
}

type clueRequest struct {
	Clue string `json:"clue"`
}

func (h *GameHandler) SubmitClueHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req clueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRequestFormat})
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	round, err := h.rounds.SubmitClue(reqCtx, ctx.Param("id"), token, req.Clue)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, hiddenFrom(round, token))
}

type guessRequest struct {
	Value *float64 `json:"value"`
}

func (h *GameHandler) SubmitGuessHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	var req guessRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Value == nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRequestFormat})
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	round, err := h.rounds.SubmitGuess(reqCtx, ctx.Param("id"), token, *req.Value)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, round)
}

func (h *GameHandler) CompleteRoundHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	round, err := h.rounds.CompleteRound(reqCtx, ctx.Param("id"), token)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, round)
}

func (h *GameHandler) QRCodeHandler(ctx *gin.Context) {
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	png, err := h.rooms.QRCode(reqCtx, ctx.Param("code"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

type matchmakeRequest struct {
	Action     string `json:"action"`
	PlayerId   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// MatchmakeHandler speaks the {action, playerId, playerName} protocol; every
// answer carries a status of waiting, matched or error.
func (h *GameHandler) MatchmakeHandler(ctx *gin.Context) {
	var req matchmakeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": ErrInvalidRequestFormat})
		return
	}
	// A verified identity always wins; the body id only serves anonymous callers.
	if token := ctx.GetString(h.opts.TokenKey); token != "" {
		if req.PlayerId != "" && req.PlayerId != token {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "message": ErrIdentityMismatch})
			return
		}
		req.PlayerId = token
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	switch req.Action {
	case "match":
		res, err := h.matcher.Enqueue(reqCtx, req.PlayerId, req.PlayerName)
		if err != nil {
			h.matchmakeError(ctx, err)
			return
		}
		if res.Status == domain.MatchMatched {
			ctx.JSON(http.StatusOK, gin.H{"status": res.Status, "room_code": res.RoomCode})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": res.Status})
	case "cancel":
		if err := h.matcher.Cancel(reqCtx, req.PlayerId); err != nil {
			h.matchmakeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	default:
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": ErrUnknownAction})
	}
}

func (h *GameHandler) matchmakeError(ctx *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Criticalf("matchmaking: %v", err)
	}
	ctx.AbortWithStatusJSON(status, gin.H{"status": "error", "message": errorCode(err)})
}

// EventsHandler upgrades to the room socket. Errors found before the upgrade
// are answered as plain JSON.
func (h *GameHandler) EventsHandler(ctx *gin.Context) {
	token, ok := h.caller(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	snap, err := h.rooms.Snapshot(reqCtx, ctx.Param("code"), token)
	cancel()
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if snap.Self == nil {
		abortWithError(ctx, domain.ErrNotInRoom)
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Warningf("websocket upgrade failed: %v", err)
		return
	}

	h.stream.run(ctx.Request.Context(), NewWebsocketConnection(conn), snap.Room.Code, snap.Room.Id, token)
}

// hiddenFrom blanks the target of a running round for anyone but its clue-giver.
func hiddenFrom(r domain.Round, viewerToken string) domain.Round {
	if hideTarget(r, viewerToken) {
		r.TargetCenter = 0
	}
	return r
}

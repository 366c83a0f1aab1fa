package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	chatport "github.com/boddenberg/monoreport-bot-go/internal/chat/port"
	chatservice "github.com/boddenberg/monoreport-bot-go/internal/chat/service"
	"github.com/boddenberg/monoreport-bot-go/internal/chat/session"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("bot")

// StartCommand opens the start menu from any state.
const StartCommand = "/start"

// Router dispatches updates to menus and keeps each chat's state.
type Router struct {
	reconciler *chatservice.Reconciler
	transport  chatport.Transport
	answerer   chatport.CallbackAnswerer
	sessions   *session.Registry
	users      port.UserStore
	bundle     *i18n.Bundle
	locks      *resilience.KeyedMutex
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger

	start *StartMenu
	menus []Menu

	reportHour   int
	reportMinute int
}

// NewRouter creates a router. The start menu is always consulted first;
// further menus follow in the given order.
func NewRouter(
	reconciler *chatservice.Reconciler,
	transport chatport.Transport,
	answerer chatport.CallbackAnswerer,
	sessions *session.Registry,
	users port.UserStore,
	bundle *i18n.Bundle,
	start *StartMenu,
	menus []Menu,
	maxConcurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Router {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Router{
		reconciler: reconciler,
		transport:  transport,
		answerer:   answerer,
		sessions:   sessions,
		users:      users,
		bundle:     bundle,
		locks:      resilience.NewKeyedMutex(),
		bulkhead:   resilience.NewBulkhead(maxConcurrency),
		metrics:    metrics,
		logger:     logger,
		start:      start,
		menus:      append([]Menu{start}, menus...),

		reportHour:   domain.DefaultReportHour,
		reportMinute: domain.DefaultReportMinute,
	}
}

// WithReportDefaults sets the report time given to new users.
func (rt *Router) WithReportDefaults(hour, minute int) *Router {
	rt.reportHour = hour
	rt.reportMinute = minute
	return rt
}

// Run consumes updates until the source closes or ctx is done, then waits for
// in-flight handlers.
func (rt *Router) Run(ctx context.Context, source chatport.UpdateSource) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for upd := range source.Updates(ctx) {
		if err := rt.bulkhead.Acquire(ctx); err != nil {
			return err
		}
		wg.Add(1)
		go func(upd chatdomain.Update) {
			defer wg.Done()
			defer rt.bulkhead.Release()
			rt.Handle(ctx, upd)
		}(upd)
	}
	return ctx.Err()
}

// Handle processes one update under the chat's lock.
func (rt *Router) Handle(ctx context.Context, upd chatdomain.Update) {
	ctx, span := tracer.Start(ctx, "Router.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chat.id", upd.ChatID),
		attribute.Bool("update.callback", upd.IsCallback()),
	)

	unlock := rt.locks.Lock(strconv.FormatInt(upd.ChatID, 10))
	defer unlock()

	kind := "message"
	if upd.IsCallback() {
		kind = "callback"
	}
	rt.metrics.IncrUpdate(kind)

	logger := rt.logger.With(
		zap.String("update_id", uuid.NewString()),
		zap.Int64("chat_id", upd.ChatID),
		zap.String("kind", kind),
	)

	user, err := rt.prepareUser(ctx, upd)
	if err != nil {
		logger.Error("can't load user", zap.Error(err))
		return
	}

	sess := rt.sessions.Scope(upd.ChatID)
	rt.metrics.SetActiveSessions(rt.sessions.Len())

	req := &Request{
		Ctx:     ctx,
		Update:  upd,
		User:    user,
		Session: sess,
		T:       rt.bundle.For(user.LanguageCode),
		router:  rt,
	}

	state := State(sess.State())
	if state == "" {
		state = StateStart
	}

	next, err := rt.dispatch(req, state)
	req.Answer("", false)

	if err != nil {
		rt.handleError(req, logger, err)
		return
	}

	if next != state {
		logger.Debug("state changed", zap.String("from", string(state)), zap.String("to", string(next)))
	}
	sess.SetState(string(next))
}

func (rt *Router) dispatch(req *Request, state State) (State, error) {
	upd := req.Update

	if !upd.IsCallback() && upd.Text == StartCommand {
		req.DeleteMessage()
		req.Reset()
		return rt.start.Enter(req)
	}

	for _, m := range rt.menus {
		for _, route := range m.Routes() {
			if route.matches(state, upd) {
				return route.Handle(req)
			}
		}
	}

	if upd.IsCallback() {
		// Stale button: start over below.
		req.Reset()
		req.Answer("", false)
		return rt.start.Enter(req)
	}

	req.DeleteMessage()
	return state, nil
}

// handleError deactivates users that blocked the bot; everything else is
// logged and the chat keeps its previous state.
func (rt *Router) handleError(req *Request, logger *zap.Logger, err error) {
	span := trace.SpanFromContext(req.Ctx)
	span.RecordError(err)

	if chatservice.IsUnreachable(err) {
		req.User.Deactivate(time.Now())
		if saveErr := req.Save(); saveErr != nil {
			logger.Error("can't deactivate unreachable user", zap.Error(saveErr))
		}
		rt.sessions.Drop(req.Update.ChatID)
		logger.Info("user unreachable, deactivated", zap.Error(err))
		return
	}
	span.SetStatus(codes.Error, "update handler failed")
	logger.Error("update handler failed", zap.Error(err))
}

// prepareUser loads the sender, refreshes the profile and marks the user
// active again. New users get the Telegram language when it is supported.
func (rt *Router) prepareUser(ctx context.Context, upd chatdomain.Update) (*domain.User, error) {
	from := upd.From
	if from.ID == 0 {
		from.ID = upd.ChatID
	}

	user, err := rt.users.Get(ctx, from.ID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		lang := rt.bundle.Fallback()
		if rt.bundle.Supports(from.LanguageCode) {
			lang = from.LanguageCode
		}
		user = domain.NewUser(from.ID, from.FirstName, from.LastName, from.Username, lang)
		user.ReportHour = rt.reportHour
		user.ReportMinute = rt.reportMinute
	} else if upd.From.ID != 0 {
		user.FirstName = from.FirstName
		user.LastName = from.LastName
		user.Username = from.Username
	}
	user.Activate()

	if err := rt.users.Add(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

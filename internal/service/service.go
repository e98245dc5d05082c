// Package service runs the order-command consumer: it subscribes to the
// command subject, routes each message type to the exchange client and
// replies to requesters.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/internal/config"
	"github.com/trickstertwo/hlbus/internal/exchange"
	"github.com/trickstertwo/hlbus/message"
	"github.com/trickstertwo/hlbus/metrics"
)

// Service is the command consumer.
type Service struct {
	cfg     config.Config
	bus     *hlbus.Bus
	client  exchange.Client
	logger  *xlog.Logger
	metrics *metrics.Observer

	registry   *hlbus.Registry
	dispatcher *hlbus.Dispatcher
}

// New wires a handler for every command type. obs may be nil.
func New(cfg config.Config, bus *hlbus.Bus, client exchange.Client, logger *xlog.Logger, obs *metrics.Observer) (*Service, error) {
	if logger == nil {
		logger = xlog.Default()
	}
	s := &Service{
		cfg:      cfg,
		bus:      bus,
		client:   client,
		logger:   logger,
		metrics:  obs,
		registry: hlbus.NewRegistry(),
	}
	if err := s.registerHandlers(); err != nil {
		return nil, err
	}
	s.registry.Seal()

	mws := []hlbus.Middleware{
		hlbus.ExpiryDeadlineMiddleware(),
		hlbus.TimeoutMiddleware(cfg.HandlerTimeout),
	}
	s.dispatcher = bus.NewDispatcher(s.registry, hlbus.DispatcherConfig{
		Logger:      logger,
		Middlewares: mws,
		Concurrency: cfg.Concurrency,
	})
	return s, nil
}

func (s *Service) registerHandlers() error {
	return errors.Join(
		handle[message.Order](s, message.TypeMarketOrder),
		handle[message.Order](s, message.TypeLimitOrder),
		handle[message.CancelOrder](s, message.TypeCancelOrder),
		handle[message.ModifyOrder](s, message.TypeModifyOrder),
		handle[message.UpdateLeverage](s, message.TypeUpdateLeverage),
		handle[message.Transfer](s, message.TypeTransfer),
		handle[message.Withdraw](s, message.TypeWithdraw),
		handle[message.ClassTransfer](s, message.TypeClassTransfer),
		handle[message.VaultTransfer](s, message.TypeVaultTransfer),
		handle[message.SpotTransfer](s, message.TypeSpotTransfer),
		handle[message.UpdateIsolatedMargin](s, message.TypeUpdateIsolatedMargin),
		handle[message.ApproveAgent](s, message.TypeApproveAgent),
		handle[message.SetReferrer](s, message.TypeSetReferrer),
		handle[message.ApproveBuilderFee](s, message.TypeApproveBuilderFee),
	)
}

func handle[T message.Payload](s *Service, messageType string) error {
	return s.registry.Register(messageType, func(ctx context.Context, env hlbus.Envelope) error {
		cmd, err := hlbus.DecodePayload[T](env)
		if err != nil {
			return s.answer(ctx, env.Header, message.Result{Status: message.StatusError, Message: err.Error()}, err)
		}
		return s.execute(ctx, cmd, env.Header)
	})
}

// execute submits one command and answers with the outcome.
func (s *Service) execute(ctx context.Context, cmd message.Payload, h hlbus.Header) error {
	if got := cmd.MessageType(); got != h.MessageType {
		err := fmt.Errorf("%w: payload is a %s", message.ErrInvalid, got)
		return s.answer(ctx, h, message.Result{Status: message.StatusError, Message: err.Error()}, err)
	}

	res, err := s.client.Submit(ctx, cmd)
	if err != nil && res.Status == "" {
		res = message.Result{Status: message.StatusError, Message: err.Error()}
	}
	if err == nil {
		s.loggerFor(ctx).Info().
			Str("message_type", h.MessageType).
			Str("message_id", h.MessageID).
			Str("status", res.Status).
			Msg("command executed")
	}
	return s.answer(ctx, h, res, err)
}

// answer replies when the sender asked for one; failures are answered too.
// It returns cause joined with any reply error.
func (s *Service) answer(ctx context.Context, h hlbus.Header, res message.Result, cause error) error {
	if h.ReplyTo == "" {
		return cause
	}
	if err := s.bus.Reply(ctx, hlbus.Envelope{Header: h}, res); err != nil {
		s.loggerFor(ctx).Warn().Err(err).Str("reply_to", h.ReplyTo).Msg("reply failed")
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Service) loggerFor(ctx context.Context) *xlog.Logger {
	if l, ok := hlbus.LoggerFromContext(ctx); ok {
		return l
	}
	return s.logger
}

// Registry exposes the sealed handler registry.
func (s *Service) Registry() *hlbus.Registry { return s.registry }

// Dispatcher exposes the dispatch loop for state inspection.
func (s *Service) Dispatcher() *hlbus.Dispatcher { return s.dispatcher }

// Router serves /healthz, /readyz and, when metrics are wired, /metrics.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		h := s.bus.Health(req.Context())
		code := http.StatusOK
		if h.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		state := s.dispatcher.State()
		code := http.StatusOK
		if state != hlbus.StateListening {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"state": state.String(),
			"stats": s.dispatcher.Stats(),
		})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Run consumes the command subject until ctx is canceled or the connection
// is lost; the latter is returned as an error wrapping hlbus.ErrConnectionLost.
func (s *Service) Run(ctx context.Context) error {
	stream, err := s.bus.Subscribe(ctx, s.cfg.Subject)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("subject", s.cfg.Subject).
		Str("transport", s.cfg.Transport).
		Msg("service started; waiting for messages")

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if s.cfg.OpsAddr != "" {
		srv = &http.Server{
			Addr:              s.cfg.OpsAddr,
			Handler:           s.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info().Str("addr", s.cfg.OpsAddr).Msg("ops server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if srv == nil {
				return
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		return s.dispatcher.Run(gctx, stream)
	})

	return g.Wait()
}

// Package jsonrpc serves the node's JSON-RPC 2.0 API over HTTP.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/gabapcia/powchain/internal/api"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	rpc "github.com/gabapcia/powchain/internal/pkg/transport/jsonrpc"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gabapcia/powchain/internal/handlers/jsonrpc"

var errInvalidParams = errors.New("invalid params")

// Backend is the node state behind the API.
type Backend interface {
	SubmitTransaction(ctx context.Context, tx ledger.Transaction) error
	Balance(address ledger.PublicKey) uint64
	Blocks() []ledger.Block
	Work() *big.Int
	Status(ctx context.Context) api.StatusResult
	MineBlock(ctx context.Context) (ledger.Block, error)
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

type handler struct {
	backend Backend
	methods map[string]methodFunc
	tracer  trace.Tracer
	maxBody int64
}

type config struct {
	timeout time.Duration
	maxBody int64
}

type Option func(*config)

// WithTimeout bounds the handling time of a single request. Mining calls
// are cancelled when it expires.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		c.maxBody = n
	}
}

// NewHandler mounts POST /rpc and GET /healthz on a chi router.
func NewHandler(b Backend, opts ...Option) http.Handler {
	cfg := config{
		timeout: 60 * time.Second,
		maxBody: 16 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &handler{
		backend: b,
		tracer:  otel.Tracer(tracerName),
		maxBody: cfg.maxBody,
	}
	h.methods = map[string]methodFunc{
		api.MethodSubmitTransaction: h.submitTransaction,
		api.MethodGetBalance:        h.getBalance,
		api.MethodGetChain:          h.getChain,
		api.MethodGetStatus:         h.getStatus,
		api.MethodMineBlock:         h.mineBlock,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.timeout))

	r.Post("/rpc", h.serveRPC)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.Derive(r.Context(), "request.id", middleware.GetReqID(r.Context()))

		start := time.Now()
		defer func() {
			logger.Debug(ctx, "http request",
				"http.method", r.Method,
				"http.path", r.URL.Path,
				"http.status", ww.Status(),
				"http.duration", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

func (h *handler) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeResponse(r.Context(), w, rpc.Response{Error: rpc.NewError(rpc.CodeInvalidRequest, err.Error())})
		return
	}

	var req rpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(r.Context(), w, rpc.Response{Error: rpc.NewError(rpc.CodeParseError, "parse error")})
		return
	}

	writeResponse(r.Context(), w, h.dispatch(r.Context(), req))
}

func (h *handler) dispatch(ctx context.Context, req rpc.Request) rpc.Response {
	res := rpc.Response{ID: req.ID}

	if req.JSONRPC != rpc.Version || req.Method == "" {
		res.Error = rpc.NewError(rpc.CodeInvalidRequest, "invalid request")
		return res
	}

	method, ok := h.methods[req.Method]
	if !ok {
		res.Error = rpc.NewError(rpc.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return res
	}

	ctx, span := h.tracer.Start(ctx, "jsonrpc."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", req.Method)),
	)
	defer span.End()

	result, err := method(ctx, req.Params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		res.Error = toRPCError(err)
		logger.Info(ctx, "rpc call failed",
			"rpc.method", req.Method,
			"rpc.code", res.Error.Code,
			"error", err,
		)
		return res
	}

	data, err := json.Marshal(result)
	if err != nil {
		res.Error = rpc.NewError(rpc.CodeInternalError, "failed to encode result")
		return res
	}

	res.Result = data
	return res
}

func toRPCError(err error) *rpc.Error {
	if errors.Is(err, errInvalidParams) {
		return rpc.NewError(rpc.CodeInvalidParams, err.Error())
	}

	if code, ok := api.ErrorCode(err); ok {
		return rpc.NewError(code, err.Error())
	}

	return rpc.NewError(rpc.CodeInternalError, err.Error())
}

func writeResponse(ctx context.Context, w http.ResponseWriter, res rpc.Response) {
	res.JSONRPC = rpc.Version

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.Warn(ctx, "failed to write rpc response", "error", err)
	}
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: missing params", errInvalidParams)
	}

	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidParams, err)
	}
	return nil
}

package grpcserver

import (
	"context"
	"net"
	"runtime/debug"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/service"
)

// IdempotencyHeader carries the client-chosen retry key of a mutating call.
const IdempotencyHeader = api.IdempotencyHeader

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remoteIP(ctx)),
		}
		if p, ok := PrincipalFromCtx(ctx); ok {
			fields = append(fields, zap.Stringer("player", p.Address))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			fields = append(fields, zap.Stringer("trace_id", sc.TraceID()))
		}
		// payloads are never logged
		switch code {
		case codes.OK:
			log.Info("grpc", fields...)
		case codes.Internal, codes.Unknown:
			log.Error("grpc", append(fields, zap.Error(err))...)
		default:
			log.Info("grpc", append(fields, zap.String("reason", status.Convert(err).Message()))...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// AuthUnary verifies the bearer access token and stores the principal in context.
// Methods listed in api.PublicMethods pass through untouched.
func AuthUnary(auth service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if api.PublicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		tok, ok := bearerTokenFromMD(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "no bearer token")
		}
		p, err := auth.ParseAccessToken(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

// Idempotency replays the stored response of a successful mutating call when the
// same player retries it with the same idempotency key. Concurrent duplicates
// share one execution.
type Idempotency struct {
	cache *lru.Cache
	group singleflight.Group
}

// NewIdempotency keeps up to size recent responses.
func NewIdempotency(size int) (*Idempotency, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Idempotency{cache: c}, nil
}

// Unary returns the interceptor. It must run after AuthUnary.
func (i *Idempotency) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		p, ok := PrincipalFromCtx(ctx)
		key := headerValue(ctx, IdempotencyHeader)
		if !ok || key == "" {
			return next(ctx, req)
		}
		k := p.Address.Hex() + "|" + info.FullMethod + "|" + key
		if v, hit := i.cache.Get(k); hit {
			return v, nil
		}
		v, err, _ := i.group.Do(k, func() (any, error) {
			if v, hit := i.cache.Get(k); hit {
				return v, nil
			}
			resp, err := next(ctx, req)
			if err == nil {
				i.cache.Add(k, resp)
			}
			return resp, err
		})
		return v, err
	}
}

func headerValue(ctx context.Context, name string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(name); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func bearerTokenFromMD(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, true
			}
		}
	}
	return "", false
}

// remoteIP returns the caller's host without the port.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

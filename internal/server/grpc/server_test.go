package grpcserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/catalog"
	"github.com/and161185/avamon/internal/crypto/clientcrypto"
	"github.com/and161185/avamon/internal/engine"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/limiter"
	"github.com/and161185/avamon/internal/repository/memory"
	"github.com/and161185/avamon/internal/rng"
	"github.com/and161185/avamon/internal/schedule"
	"github.com/and161185/avamon/internal/service"
)

type fakeProvider struct {
	mu   sync.Mutex
	reqs []rng.Request
}

func (p *fakeProvider) RequestRandomness(_ context.Context, r rng.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, r)
	return nil
}

type signer func(msg string) string

func newSigner(t *testing.T) (common.Address, signer) {
	t.Helper()
	key, err := clientcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return clientcrypto.Address(key), func(msg string) string {
		sig, err := clientcrypto.SignPersonal(key, []byte(msg))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return hexutil.Encode(sig)
	}
}

const bufSize = 1 << 20

type fixture struct {
	cl     *api.Client
	admin  common.Address
	signAd signer
}

// startBufGRPC runs the full server stack over bufconn with an in-memory store.
func startBufGRPC(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	st := memory.New()
	cat := catalog.New(st, log)
	seed, err := catalog.LoadSeed("")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := cat.Seed(ctx, seed); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	clk := schedule.NewManualClock(time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC))
	led := ledger.New(st, clk, schedule.Anchor{Hour: 5, Minute: 30, Loc: time.UTC}, log)
	if err := led.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	eng := engine.New(cat, led, &fakeProvider{}, log)

	adminAddr, signAdmin := newSigner(t)
	lim := limiter.NewMemory(limiter.Policy{Window: time.Minute, MaxFails: 3, BlockFor: time.Minute})
	auth := service.NewAuthService([]byte("test-secret"), time.Hour, time.Minute, lim, []common.Address{adminAddr})
	idem, err := NewIdempotency(128)
	if err != nil {
		t.Fatalf("idempotency: %v", err)
	}

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(Interceptors(log, auth, idem))
	api.RegisterGameServer(gs, New(auth, service.NewGameService(eng, st), service.NewAdminService(eng, log)))
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return &fixture{cl: api.NewClient(cc), admin: adminAddr, signAd: signAdmin}
}

func (f *fixture) login(t *testing.T, addr common.Address, sign signer) (context.Context, *api.LoginResponse) {
	t.Helper()
	ctx := context.Background()
	ch, err := f.cl.Challenge(ctx, &api.ChallengeRequest{Address: addr.Hex()})
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	lr, err := f.cl.Login(ctx, &api.LoginRequest{Address: addr.Hex(), Challenge: ch.Token, Signature: sign(ch.Message)})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+lr.AccessToken), lr
}

func TestServer_E2E_PackFlow(t *testing.T) {
	t.Parallel()
	f := startBufGRPC(t)

	cat, err := f.cl.GetCatalog(context.Background(), &api.Empty{})
	if err != nil || len(cat.PackTypes) == 0 || len(cat.Templates) == 0 {
		t.Fatalf("public catalog: %v %+v", err, cat)
	}

	addr, sign := newSigner(t)
	playerCtx, lr := f.login(t, addr, sign)
	if lr.Admin || lr.Address != addr.Hex() {
		t.Fatalf("player login: %+v", lr)
	}
	adminCtx, alr := f.login(t, f.admin, f.signAd)
	if !alr.Admin {
		t.Fatalf("admin flag missing")
	}

	if _, err := f.cl.CreditTokens(playerCtx, &api.CreditTokensRequest{Player: addr.Hex(), Amount: 1000}); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("player must not credit tokens: %v", err)
	}
	if _, err := f.cl.CreditTokens(adminCtx, &api.CreditTokensRequest{Player: addr.Hex(), Amount: 1000}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.cl.PurchasePack(playerCtx, &api.PurchasePackRequest{PackTypeID: 1, Amount: 1}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	ref, err := f.cl.OpenPack(playerCtx, &api.OpenPackRequest{PackTypeID: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.cl.OpenPack(playerCtx, &api.OpenPackRequest{PackTypeID: 1}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("second open without packs: %v", err)
	}

	pending, err := f.cl.GetRequest(playerCtx, ref)
	if err != nil || pending.Status != "pending" || pending.FulfilledAt != nil {
		t.Fatalf("pending: %+v %v", pending, err)
	}
	done, err := f.cl.EmergencyComplete(adminCtx, ref)
	if err != nil || done.Status != "fulfilled" || len(done.CardIDs) != 5 {
		t.Fatalf("emergency complete: %+v %v", done, err)
	}

	st, err := f.cl.GetStats(playerCtx, &api.Empty{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(st.Cards) != 5 || st.Address != addr.Hex() {
		t.Fatalf("stats after open: %+v", st)
	}

	tr, err := f.cl.GetTreasury(adminCtx, &api.Empty{})
	if err != nil || tr.AvailableWei != "0" {
		t.Fatalf("treasury: %+v %v", tr, err)
	}
}

func TestServer_Unauthenticated(t *testing.T) {
	t.Parallel()
	f := startBufGRPC(t)

	if _, err := f.cl.GetStats(context.Background(), &api.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no token: %v", err)
	}
	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer not-a-jwt")
	if _, err := f.cl.GetStats(bad, &api.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad token: %v", err)
	}

	addr, _ := newSigner(t)
	_, wrongSign := newSigner(t)
	ch, err := f.cl.Challenge(context.Background(), &api.ChallengeRequest{Address: addr.Hex()})
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	_, err = f.cl.Login(context.Background(), &api.LoginRequest{Address: addr.Hex(), Challenge: ch.Token, Signature: wrongSign(ch.Message)})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("foreign signature: %v", err)
	}
	// The challenge token must not work as an access token.
	asAccess := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+ch.Token)
	if _, err := f.cl.GetStats(asAccess, &api.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("challenge as access token: %v", err)
	}
}

func TestServer_ValidationAndIdempotency(t *testing.T) {
	t.Parallel()
	f := startBufGRPC(t)

	addr, sign := newSigner(t)
	ctx, _ := f.login(t, addr, sign)
	adminCtx, _ := f.login(t, f.admin, f.signAd)

	if _, err := f.cl.TransferTokens(ctx, &api.TransferTokensRequest{To: "nope", Amount: 1}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad recipient: %v", err)
	}
	if _, err := f.cl.UpgradeDeckSlots(ctx, &api.PaymentRequest{PaymentWei: "-5"}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad wei: %v", err)
	}
	if _, err := f.cl.GetRequest(ctx, &api.RequestRef{RequestID: "x"}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad id: %v", err)
	}

	if _, err := f.cl.CreditTokens(adminCtx, &api.CreditTokensRequest{Player: addr.Hex(), Amount: 250}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	keyed := metadata.AppendToOutgoingContext(ctx, IdempotencyHeader, "buy-1")
	for range 3 {
		if _, err := f.cl.PurchasePack(keyed, &api.PurchasePackRequest{PackTypeID: 1, Amount: 1}); err != nil {
			t.Fatalf("purchase: %v", err)
		}
	}
	st, err := f.cl.GetStats(ctx, &api.Empty{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Tokens != 150 || len(st.Packs) != 1 || st.Packs[0].Count != 1 {
		t.Fatalf("retries with one key must apply once: tokens=%d packs=%+v", st.Tokens, st.Packs)
	}
}

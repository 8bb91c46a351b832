// Package grpcserver exposes the Avamon game API over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/convert"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/service"
)

var _ api.GameServer = (*Server)(nil)

// Server wires services into gRPC handlers.
type Server struct {
	auth  service.AuthService
	game  service.GameService
	admin service.AdminService
}

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, game service.GameService, admin service.AdminService) *Server {
	return &Server{auth: auth, game: game, admin: admin}
}

func principal(ctx context.Context) (model.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return model.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}

func player(ctx context.Context) (common.Address, error) {
	p, err := principal(ctx)
	return p.Address, err
}

// --- Auth ---

// Challenge returns a login message for the wallet to sign.
func (s *Server) Challenge(ctx context.Context, req *api.ChallengeRequest) (*api.ChallengeResponse, error) {
	ch, err := s.auth.Challenge(ctx, req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ChallengeResponse{Message: ch.Message, Token: ch.Token, ExpiresAt: ch.ExpiresAt}, nil
}

// Login exchanges a signed challenge for an access token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	sig, err := convert.ParseSignature(req.Signature)
	if err != nil {
		return nil, toStatus(err)
	}
	tok, p, err := s.auth.Login(ctx, req.Address, req.Challenge, sig, remoteIP(ctx))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "bad signature or challenge")
		}
		return nil, toStatus(err)
	}
	return &api.LoginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		Address:     p.Address.Hex(),
		Admin:       p.Admin,
	}, nil
}

// --- Player ---

func (s *Server) GetCatalog(context.Context, *api.Empty) (*api.Catalog, error) {
	return convert.ToAPICatalog(s.game.Catalog()), nil
}

func (s *Server) GetStats(ctx context.Context, _ *api.Empty) (*api.Stats, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.game.Stats(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIStats(st, s.game.Catalog().Adventures), nil
}

func (s *Server) ListEvents(ctx context.Context, req *api.ListEventsRequest) (*api.ListEventsResponse, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.game.Events(ctx, addr, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIEvents(evs), nil
}

func (s *Server) PurchasePack(ctx context.Context, req *api.PurchasePackRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.game.PurchasePack(ctx, addr, req.PackTypeID, req.Amount); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// OpenPack consumes an owned pack and returns the pending randomness request.
func (s *Server) OpenPack(ctx context.Context, req *api.OpenPackRequest) (*api.RequestRef, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.game.OpenPack(ctx, addr, req.PackTypeID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RequestRef{RequestID: id.String()}, nil
}

// GetRequest polls a randomness request owned by the caller.
func (s *Server) GetRequest(ctx context.Context, req *api.RequestRef) (*api.RandomnessRequest, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseUUID(req.RequestID)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := s.game.GetRequest(ctx, addr, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIRequest(r), nil
}

func (s *Server) SaveDeck(ctx context.Context, req *api.SaveDeckRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.game.SaveDeck(ctx, addr, req.Slot, req.Name, req.CardIDs); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) UpgradeDeckSlots(ctx context.Context, req *api.PaymentRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	wei, err := convert.ParseWei(req.PaymentWei)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.game.UpgradeDeckSlots(ctx, addr, wei); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) PurchaseEnergy(ctx context.Context, req *api.PurchaseEnergyRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	wei, err := convert.ParseWei(req.PaymentWei)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.game.PurchaseEnergy(ctx, addr, req.Amount, wei); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) BuyWeeklyQuestSlot(ctx context.Context, req *api.PaymentRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	wei, err := convert.ParseWei(req.PaymentWei)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.game.BuyWeeklyQuestSlot(ctx, addr, wei); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) TransferTokens(ctx context.Context, req *api.TransferTokensRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	to, err := service.ParseAddress(req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.game.TransferTokens(ctx, addr, to, req.Amount); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) TransferCard(ctx context.Context, req *api.TransferCardRequest) (*api.Empty, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	to, err := service.ParseAddress(req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.game.TransferCard(ctx, addr, to, req.TokenID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// JoinAdventure stakes a saved deck and returns the pending randomness request.
func (s *Server) JoinAdventure(ctx context.Context, req *api.JoinAdventureRequest) (*api.RequestRef, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.game.JoinAdventure(ctx, addr, req.AdventureID, req.CardIDs)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RequestRef{RequestID: id.String()}, nil
}

func (s *Server) ClaimAdventure(ctx context.Context, req *api.AdventureRef) (*api.Session, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.game.ClaimAdventure(ctx, addr, req.AdventureID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPISession(sess, 0)
	return &out, nil
}

func (s *Server) ClaimQuest(ctx context.Context, req *api.QuestRef) (*api.QuestProgress, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	qp, err := s.game.ClaimQuest(ctx, addr, req.QuestID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIQuestProgress(qp)
	return &out, nil
}

func (s *Server) CompleteDailyCheckin(ctx context.Context, _ *api.Empty) (*api.CheckinResponse, error) {
	addr, err := player(ctx)
	if err != nil {
		return nil, err
	}
	qs, err := s.game.CompleteDailyCheckin(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &api.CheckinResponse{Quests: make([]api.QuestProgress, 0, len(qs))}
	for _, q := range qs {
		out.Quests = append(out.Quests, convert.ToAPIQuestProgress(q))
	}
	return out, nil
}

// Interceptors returns the unary chain used by the game server: panic recovery,
// logging, authentication, then idempotent replay.
func Interceptors(log *zap.Logger, auth service.AuthService, idem *Idempotency) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(auth),
		idem.Unary(),
	)
}

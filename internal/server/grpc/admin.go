package grpcserver

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/convert"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/service"
)

// adminCall resolves the caller and the target player of an admin handler.
func adminCall(ctx context.Context, target string) (model.Principal, common.Address, error) {
	p, err := principal(ctx)
	if err != nil {
		return p, common.Address{}, err
	}
	addr, err := service.ParseAddress(target)
	if err != nil {
		return p, common.Address{}, toStatus(err)
	}
	return p, addr, nil
}

func (s *Server) CreateTemplate(ctx context.Context, req *api.CardTemplate) (*api.IDResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	t, err := convert.FromAPITemplate(req)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := s.admin.CreateTemplate(ctx, p, t)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IDResponse{ID: id}, nil
}

func (s *Server) CreatePackType(ctx context.Context, req *api.PackType) (*api.IDResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.admin.CreatePackType(ctx, p, req.Name, req.Price, req.Chances)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IDResponse{ID: id}, nil
}

func (s *Server) CreateAdventure(ctx context.Context, req *api.Adventure) (*api.IDResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a, err := convert.FromAPIAdventure(req)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := s.admin.CreateAdventure(ctx, p, a)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IDResponse{ID: id}, nil
}

func (s *Server) CreateQuest(ctx context.Context, req *api.Quest) (*api.IDResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.admin.CreateQuest(ctx, p, convert.FromAPIQuest(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.IDResponse{ID: id}, nil
}

func (s *Server) SetActive(ctx context.Context, req *api.SetActiveRequest) (*api.Empty, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.admin.SetActive(ctx, p, service.CatalogKind(req.Kind), req.ID, req.Active); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) CreditTokens(ctx context.Context, req *api.CreditTokensRequest) (*api.Empty, error) {
	p, to, err := adminCall(ctx, req.Player)
	if err != nil {
		return nil, err
	}
	if err := s.admin.CreditTokens(ctx, p, to, req.Amount); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) GrantPacks(ctx context.Context, req *api.GrantPacksRequest) (*api.Empty, error) {
	p, to, err := adminCall(ctx, req.Player)
	if err != nil {
		return nil, err
	}
	if err := s.admin.GrantPacks(ctx, p, to, req.PackTypeID, req.Count); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) MintCard(ctx context.Context, req *api.MintCardRequest) (*api.Card, error) {
	p, to, err := adminCall(ctx, req.Player)
	if err != nil {
		return nil, err
	}
	c, err := s.admin.MintCard(ctx, p, to, req.TemplateID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPICard(c)
	return &out, nil
}

func (s *Server) RecordProgress(ctx context.Context, req *api.RecordProgressRequest) (*api.QuestProgress, error) {
	p, to, err := adminCall(ctx, req.Player)
	if err != nil {
		return nil, err
	}
	qp, err := s.admin.RecordProgress(ctx, p, to, req.QuestID, req.Delta)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIQuestProgress(qp)
	return &out, nil
}

// EmergencyComplete resolves a stuck randomness request with locally generated words.
func (s *Server) EmergencyComplete(ctx context.Context, req *api.RequestRef) (*api.RandomnessRequest, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseUUID(req.RequestID)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := s.admin.EmergencyComplete(ctx, p, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIRequest(r), nil
}

func (s *Server) SetPaused(ctx context.Context, req *api.SetPausedRequest) (*api.Empty, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.admin.SetPaused(ctx, p, req.Paused); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) GetTreasury(ctx context.Context, _ *api.Empty) (*api.Treasury, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.admin.Treasury(ctx, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPITreasury(t), nil
}

// Withdraw moves collected native payments to the calling admin.
func (s *Server) Withdraw(ctx context.Context, req *api.WithdrawRequest) (*api.Empty, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	wei, err := convert.ParseWei(req.AmountWei)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.admin.Withdraw(ctx, p, wei); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

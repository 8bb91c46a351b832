package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "avamon.v1.Game"

// Full method names, used by interceptors.
const (
	MethodChallenge            = "/" + ServiceName + "/Challenge"
	MethodLogin                = "/" + ServiceName + "/Login"
	MethodGetCatalog           = "/" + ServiceName + "/GetCatalog"
	MethodGetStats             = "/" + ServiceName + "/GetStats"
	MethodListEvents           = "/" + ServiceName + "/ListEvents"
	MethodPurchasePack         = "/" + ServiceName + "/PurchasePack"
	MethodOpenPack             = "/" + ServiceName + "/OpenPack"
	MethodGetRequest           = "/" + ServiceName + "/GetRequest"
	MethodSaveDeck             = "/" + ServiceName + "/SaveDeck"
	MethodUpgradeDeckSlots     = "/" + ServiceName + "/UpgradeDeckSlots"
	MethodPurchaseEnergy       = "/" + ServiceName + "/PurchaseEnergy"
	MethodBuyWeeklyQuestSlot   = "/" + ServiceName + "/BuyWeeklyQuestSlot"
	MethodTransferTokens       = "/" + ServiceName + "/TransferTokens"
	MethodTransferCard         = "/" + ServiceName + "/TransferCard"
	MethodJoinAdventure        = "/" + ServiceName + "/JoinAdventure"
	MethodClaimAdventure       = "/" + ServiceName + "/ClaimAdventure"
	MethodClaimQuest           = "/" + ServiceName + "/ClaimQuest"
	MethodCompleteDailyCheckin = "/" + ServiceName + "/CompleteDailyCheckin"
	MethodCreateTemplate       = "/" + ServiceName + "/CreateTemplate"
	MethodCreatePackType       = "/" + ServiceName + "/CreatePackType"
	MethodCreateAdventure      = "/" + ServiceName + "/CreateAdventure"
	MethodCreateQuest          = "/" + ServiceName + "/CreateQuest"
	MethodSetActive            = "/" + ServiceName + "/SetActive"
	MethodCreditTokens         = "/" + ServiceName + "/CreditTokens"
	MethodGrantPacks           = "/" + ServiceName + "/GrantPacks"
	MethodMintCard             = "/" + ServiceName + "/MintCard"
	MethodRecordProgress       = "/" + ServiceName + "/RecordProgress"
	MethodEmergencyComplete    = "/" + ServiceName + "/EmergencyComplete"
	MethodSetPaused            = "/" + ServiceName + "/SetPaused"
	MethodGetTreasury          = "/" + ServiceName + "/GetTreasury"
	MethodWithdraw             = "/" + ServiceName + "/Withdraw"
)

// IdempotencyHeader is the metadata key under which clients send a retry key.
const IdempotencyHeader = "idempotency-key"

// PublicMethods can be called without an access token.
var PublicMethods = map[string]bool{
	MethodChallenge:  true,
	MethodLogin:      true,
	MethodGetCatalog: true,
}

// GameServer is the server API for the Game service.
type GameServer interface {
	// Challenge returns a login message to sign.
	Challenge(context.Context, *ChallengeRequest) (*ChallengeResponse, error)
	// Login exchanges a signed challenge for an access token.
	Login(context.Context, *LoginRequest) (*LoginResponse, error)

	GetCatalog(context.Context, *Empty) (*Catalog, error)
	GetStats(context.Context, *Empty) (*Stats, error)
	ListEvents(context.Context, *ListEventsRequest) (*ListEventsResponse, error)
	PurchasePack(context.Context, *PurchasePackRequest) (*Empty, error)
	OpenPack(context.Context, *OpenPackRequest) (*RequestRef, error)
	GetRequest(context.Context, *RequestRef) (*RandomnessRequest, error)
	SaveDeck(context.Context, *SaveDeckRequest) (*Empty, error)
	UpgradeDeckSlots(context.Context, *PaymentRequest) (*Empty, error)
	PurchaseEnergy(context.Context, *PurchaseEnergyRequest) (*Empty, error)
	BuyWeeklyQuestSlot(context.Context, *PaymentRequest) (*Empty, error)
	TransferTokens(context.Context, *TransferTokensRequest) (*Empty, error)
	TransferCard(context.Context, *TransferCardRequest) (*Empty, error)
	JoinAdventure(context.Context, *JoinAdventureRequest) (*RequestRef, error)
	ClaimAdventure(context.Context, *AdventureRef) (*Session, error)
	ClaimQuest(context.Context, *QuestRef) (*QuestProgress, error)
	CompleteDailyCheckin(context.Context, *Empty) (*CheckinResponse, error)

	// Admin.
	CreateTemplate(context.Context, *CardTemplate) (*IDResponse, error)
	CreatePackType(context.Context, *PackType) (*IDResponse, error)
	CreateAdventure(context.Context, *Adventure) (*IDResponse, error)
	CreateQuest(context.Context, *Quest) (*IDResponse, error)
	SetActive(context.Context, *SetActiveRequest) (*Empty, error)
	CreditTokens(context.Context, *CreditTokensRequest) (*Empty, error)
	GrantPacks(context.Context, *GrantPacksRequest) (*Empty, error)
	MintCard(context.Context, *MintCardRequest) (*Card, error)
	RecordProgress(context.Context, *RecordProgressRequest) (*QuestProgress, error)
	EmergencyComplete(context.Context, *RequestRef) (*RandomnessRequest, error)
	SetPaused(context.Context, *SetPausedRequest) (*Empty, error)
	GetTreasury(context.Context, *Empty) (*Treasury, error)
	Withdraw(context.Context, *WithdrawRequest) (*Empty, error)
}

// unary adapts a typed handler to a grpc.MethodDesc, running the chained interceptors.
func unary[Req, Resp any](name string, call func(GameServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GameServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GameServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Game service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GameServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Challenge", GameServer.Challenge),
		unary("Login", GameServer.Login),
		unary("GetCatalog", GameServer.GetCatalog),
		unary("GetStats", GameServer.GetStats),
		unary("ListEvents", GameServer.ListEvents),
		unary("PurchasePack", GameServer.PurchasePack),
		unary("OpenPack", GameServer.OpenPack),
		unary("GetRequest", GameServer.GetRequest),
		unary("SaveDeck", GameServer.SaveDeck),
		unary("UpgradeDeckSlots", GameServer.UpgradeDeckSlots),
		unary("PurchaseEnergy", GameServer.PurchaseEnergy),
		unary("BuyWeeklyQuestSlot", GameServer.BuyWeeklyQuestSlot),
		unary("TransferTokens", GameServer.TransferTokens),
		unary("TransferCard", GameServer.TransferCard),
		unary("JoinAdventure", GameServer.JoinAdventure),
		unary("ClaimAdventure", GameServer.ClaimAdventure),
		unary("ClaimQuest", GameServer.ClaimQuest),
		unary("CompleteDailyCheckin", GameServer.CompleteDailyCheckin),
		unary("CreateTemplate", GameServer.CreateTemplate),
		unary("CreatePackType", GameServer.CreatePackType),
		unary("CreateAdventure", GameServer.CreateAdventure),
		unary("CreateQuest", GameServer.CreateQuest),
		unary("SetActive", GameServer.SetActive),
		unary("CreditTokens", GameServer.CreditTokens),
		unary("GrantPacks", GameServer.GrantPacks),
		unary("MintCard", GameServer.MintCard),
		unary("RecordProgress", GameServer.RecordProgress),
		unary("EmergencyComplete", GameServer.EmergencyComplete),
		unary("SetPaused", GameServer.SetPaused),
		unary("GetTreasury", GameServer.GetTreasury),
		unary("Withdraw", GameServer.Withdraw),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "avamon/v1/game",
}

// RegisterGameServer registers srv on s.
func RegisterGameServer(s grpc.ServiceRegistrar, srv GameServer) {
	s.RegisterService(&ServiceDesc, srv)
}

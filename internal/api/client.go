package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed Game client. All calls use the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp, Req any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Challenge(ctx context.Context, in *ChallengeRequest, opts ...grpc.CallOption) (*ChallengeResponse, error) {
	return invoke[ChallengeResponse](ctx, c.cc, MethodChallenge, in, opts...)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts...)
}

func (c *Client) GetCatalog(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Catalog, error) {
	return invoke[Catalog](ctx, c.cc, MethodGetCatalog, in, opts...)
}

func (c *Client) GetStats(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Stats, error) {
	return invoke[Stats](ctx, c.cc, MethodGetStats, in, opts...)
}

func (c *Client) ListEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*ListEventsResponse, error) {
	return invoke[ListEventsResponse](ctx, c.cc, MethodListEvents, in, opts...)
}

func (c *Client) PurchasePack(ctx context.Context, in *PurchasePackRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodPurchasePack, in, opts...)
}

func (c *Client) OpenPack(ctx context.Context, in *OpenPackRequest, opts ...grpc.CallOption) (*RequestRef, error) {
	return invoke[RequestRef](ctx, c.cc, MethodOpenPack, in, opts...)
}

func (c *Client) GetRequest(ctx context.Context, in *RequestRef, opts ...grpc.CallOption) (*RandomnessRequest, error) {
	return invoke[RandomnessRequest](ctx, c.cc, MethodGetRequest, in, opts...)
}

func (c *Client) SaveDeck(ctx context.Context, in *SaveDeckRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodSaveDeck, in, opts...)
}

func (c *Client) UpgradeDeckSlots(ctx context.Context, in *PaymentRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodUpgradeDeckSlots, in, opts...)
}

func (c *Client) PurchaseEnergy(ctx context.Context, in *PurchaseEnergyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodPurchaseEnergy, in, opts...)
}

func (c *Client) BuyWeeklyQuestSlot(ctx context.Context, in *PaymentRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodBuyWeeklyQuestSlot, in, opts...)
}

func (c *Client) TransferTokens(ctx context.Context, in *TransferTokensRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodTransferTokens, in, opts...)
}

func (c *Client) TransferCard(ctx context.Context, in *TransferCardRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodTransferCard, in, opts...)
}

func (c *Client) JoinAdventure(ctx context.Context, in *JoinAdventureRequest, opts ...grpc.CallOption) (*RequestRef, error) {
	return invoke[RequestRef](ctx, c.cc, MethodJoinAdventure, in, opts...)
}

func (c *Client) ClaimAdventure(ctx context.Context, in *AdventureRef, opts ...grpc.CallOption) (*Session, error) {
	return invoke[Session](ctx, c.cc, MethodClaimAdventure, in, opts...)
}

func (c *Client) ClaimQuest(ctx context.Context, in *QuestRef, opts ...grpc.CallOption) (*QuestProgress, error) {
	return invoke[QuestProgress](ctx, c.cc, MethodClaimQuest, in, opts...)
}

func (c *Client) CompleteDailyCheckin(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*CheckinResponse, error) {
	return invoke[CheckinResponse](ctx, c.cc, MethodCompleteDailyCheckin, in, opts...)
}

func (c *Client) CreateTemplate(ctx context.Context, in *CardTemplate, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, MethodCreateTemplate, in, opts...)
}

func (c *Client) CreatePackType(ctx context.Context, in *PackType, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, MethodCreatePackType, in, opts...)
}

func (c *Client) CreateAdventure(ctx context.Context, in *Adventure, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, MethodCreateAdventure, in, opts...)
}

func (c *Client) CreateQuest(ctx context.Context, in *Quest, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, MethodCreateQuest, in, opts...)
}

func (c *Client) SetActive(ctx context.Context, in *SetActiveRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodSetActive, in, opts...)
}

func (c *Client) CreditTokens(ctx context.Context, in *CreditTokensRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodCreditTokens, in, opts...)
}

func (c *Client) GrantPacks(ctx context.Context, in *GrantPacksRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodGrantPacks, in, opts...)
}

func (c *Client) MintCard(ctx context.Context, in *MintCardRequest, opts ...grpc.CallOption) (*Card, error) {
	return invoke[Card](ctx, c.cc, MethodMintCard, in, opts...)
}

func (c *Client) RecordProgress(ctx context.Context, in *RecordProgressRequest, opts ...grpc.CallOption) (*QuestProgress, error) {
	return invoke[QuestProgress](ctx, c.cc, MethodRecordProgress, in, opts...)
}

func (c *Client) EmergencyComplete(ctx context.Context, in *RequestRef, opts ...grpc.CallOption) (*RandomnessRequest, error) {
	return invoke[RandomnessRequest](ctx, c.cc, MethodEmergencyComplete, in, opts...)
}

func (c *Client) SetPaused(ctx context.Context, in *SetPausedRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodSetPaused, in, opts...)
}

func (c *Client) GetTreasury(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Treasury, error) {
	return invoke[Treasury](ctx, c.cc, MethodGetTreasury, in, opts...)
}

func (c *Client) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodWithdraw, in, opts...)
}

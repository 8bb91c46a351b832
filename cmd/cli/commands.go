package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/avamon/internal/api"
	cc "github.com/and161185/avamon/internal/crypto/clientcrypto"
)

var errUsage = errors.New("usage")

// weiPerAVAX is 10^18.
var weiPerAVAX = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// pollEvery is the GetRequest polling interval of `open -wait`.
var pollEvery = 2 * time.Second

// ------- parsing -------

// parseIDs parses a comma separated list of token ids.
func parseIDs(s string) ([]uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad card id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

// parseAVAX converts a decimal AVAX amount ("0.05") to a wei string.
func parseAVAX(s string) (string, error) {
	if s == "" {
		return "0", nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return "", fmt.Errorf("bad AVAX amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerAVAX))
	if !r.IsInt() {
		return "", fmt.Errorf("AVAX amount %q has more than 18 decimals", s)
	}
	return r.Num().String(), nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, errors.New("empty key (use -hex)")
	}
	return ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// withIdempotency attaches a fresh retry key unless one was given.
func withIdempotency(ctx context.Context, key string) context.Context {
	if key == "" {
		key = uuid.Must(uuid.NewV4()).String()
	}
	return metadata.AppendToOutgoingContext(ctx, api.IdempotencyHeader, key)
}

// ------- auth -------

func login(ctx context.Context, cli *api.Client, key *ecdsa.PrivateKey) (tokenFile, error) {
	addr := cc.Address(key).Hex()
	ch, err := cli.Challenge(ctx, &api.ChallengeRequest{Address: addr})
	if err != nil {
		return tokenFile{}, err
	}
	sig, err := cc.SignPersonal(key, []byte(ch.Message))
	if err != nil {
		return tokenFile{}, err
	}
	res, err := cli.Login(ctx, &api.LoginRequest{Address: addr, Challenge: ch.Token, Signature: hexutil.Encode(sig)})
	if err != nil {
		return tokenFile{}, err
	}
	return tokenFile{AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt, Address: res.Address, Admin: res.Admin}, nil
}

// waitRequest polls until the randomness request is fulfilled.
func waitRequest(ctx context.Context, cli *api.Client, id string) (*api.RandomnessRequest, error) {
	t := time.NewTicker(pollEvery)
	defer t.Stop()
	for {
		req, err := cli.GetRequest(ctx, &api.RequestRef{RequestID: id})
		if err != nil {
			return nil, err
		}
		if req.Status != "pending" {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return req, ctx.Err()
		case <-t.C:
		}
	}
}

// ------- player -------

// runPlayer executes a player subcommand and prints its result to out.
func runPlayer(ctx context.Context, cli *api.Client, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	idem := fs.String("idem", "", "idempotency key (random if empty)")

	var res any
	var err error
	switch cmd {
	case "stats", "quests":
		if err = fs.Parse(args); err != nil {
			return err
		}
		var st *api.Stats
		if st, err = cli.GetStats(ctx, &api.Empty{}); err == nil {
			res = st
			if cmd == "quests" {
				res = st.Quests
			}
		}

	case "events":
		limit := fs.Int("limit", 50, "max events")
		if err = fs.Parse(args); err != nil {
			return err
		}
		var ev *api.ListEventsResponse
		if ev, err = cli.ListEvents(ctx, &api.ListEventsRequest{Limit: *limit}); err == nil {
			res = ev.Events
		}

	case "buy-pack":
		pack := fs.Uint("pack", 0, "pack type id")
		n := fs.Uint("n", 1, "amount")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.PurchasePack(withIdempotency(ctx, *idem), &api.PurchasePackRequest{PackTypeID: uint32(*pack), Amount: uint32(*n)})

	case "open":
		pack := fs.Uint("pack", 0, "pack type id")
		wait := fs.Bool("wait", false, "wait for the cards")
		if err = fs.Parse(args); err != nil {
			return err
		}
		var ref *api.RequestRef
		if ref, err = cli.OpenPack(withIdempotency(ctx, *idem), &api.OpenPackRequest{PackTypeID: uint32(*pack)}); err == nil {
			res = ref
			if *wait {
				res, err = waitRequest(ctx, cli, ref.RequestID)
			}
		}

	case "request":
		id := fs.String("id", "", "request id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.GetRequest(ctx, &api.RequestRef{RequestID: *id})

	case "deck":
		slot := fs.Int("slot", 0, "deck slot")
		name := fs.String("name", "", "deck name")
		cards := fs.String("cards", "", "comma separated token ids")
		if err = fs.Parse(args); err != nil {
			return err
		}
		ids, e := parseIDs(*cards)
		if e != nil {
			return e
		}
		_, err = cli.SaveDeck(withIdempotency(ctx, *idem), &api.SaveDeckRequest{Slot: *slot, Name: *name, CardIDs: ids})

	case "upgrade-slots", "quest-slot":
		pay := fs.String("pay", "0.1", "payment in AVAX")
		if err = fs.Parse(args); err != nil {
			return err
		}
		wei, e := parseAVAX(*pay)
		if e != nil {
			return e
		}
		req := &api.PaymentRequest{PaymentWei: wei}
		if cmd == "quest-slot" {
			_, err = cli.BuyWeeklyQuestSlot(withIdempotency(ctx, *idem), req)
		} else {
			_, err = cli.UpgradeDeckSlots(withIdempotency(ctx, *idem), req)
		}

	case "energy":
		n := fs.Uint("n", 1, "energy units")
		pay := fs.String("pay", "", "payment in AVAX")
		if err = fs.Parse(args); err != nil {
			return err
		}
		wei, e := parseAVAX(*pay)
		if e != nil {
			return e
		}
		_, err = cli.PurchaseEnergy(withIdempotency(ctx, *idem), &api.PurchaseEnergyRequest{Amount: uint32(*n), PaymentWei: wei})

	case "send-tokens":
		to := fs.String("to", "", "recipient address")
		amount := fs.Uint64("amount", 0, "tokens")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.TransferTokens(withIdempotency(ctx, *idem), &api.TransferTokensRequest{To: *to, Amount: *amount})

	case "send-card":
		to := fs.String("to", "", "recipient address")
		id := fs.Uint64("id", 0, "token id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.TransferCard(withIdempotency(ctx, *idem), &api.TransferCardRequest{To: *to, TokenID: *id})

	case "join":
		adv := fs.Uint("adv", 0, "adventure id")
		cards := fs.String("cards", "", "comma separated token ids")
		if err = fs.Parse(args); err != nil {
			return err
		}
		ids, e := parseIDs(*cards)
		if e != nil {
			return e
		}
		res, err = cli.JoinAdventure(withIdempotency(ctx, *idem), &api.JoinAdventureRequest{AdventureID: uint32(*adv), CardIDs: ids})

	case "claim":
		adv := fs.Uint("adv", 0, "adventure id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.ClaimAdventure(withIdempotency(ctx, *idem), &api.AdventureRef{AdventureID: uint32(*adv)})
		if status.Code(err) == codes.Unavailable {
			err = fmt.Errorf("adventure outcome not resolved yet, retry later: %w", err)
		}

	case "quest-claim":
		id := fs.Uint("id", 0, "quest id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.ClaimQuest(withIdempotency(ctx, *idem), &api.QuestRef{QuestID: uint32(*id)})

	case "checkin":
		if err = fs.Parse(args); err != nil {
			return err
		}
		var r *api.CheckinResponse
		if r, err = cli.CompleteDailyCheckin(withIdempotency(ctx, *idem), &api.Empty{}); err == nil {
			res = r.Quests
		}

	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(out, "ok")
		return nil
	}
	printJSON(out, res)
	return nil
}

// ------- admin -------

// runAdmin executes `admin <sub>`; the server rejects non-admin tokens.
func runAdmin(ctx context.Context, cli *api.Client, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	sub, args := args[0], args[1:]
	fs := flag.NewFlagSet("admin "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	player := fs.String("player", "", "player address")

	var res any
	var err error
	switch sub {
	case "credit":
		amount := fs.Uint64("amount", 0, "tokens")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.CreditTokens(ctx, &api.CreditTokensRequest{Player: *player, Amount: *amount})

	case "grant":
		pack := fs.Uint("pack", 0, "pack type id")
		n := fs.Uint("n", 1, "count")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.GrantPacks(ctx, &api.GrantPacksRequest{Player: *player, PackTypeID: uint32(*pack), Count: uint32(*n)})

	case "mint":
		tpl := fs.Uint("template", 0, "template id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.MintCard(ctx, &api.MintCardRequest{Player: *player, TemplateID: uint32(*tpl)})

	case "progress":
		quest := fs.Uint("quest", 0, "quest id")
		delta := fs.Uint("delta", 1, "progress delta")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.RecordProgress(ctx, &api.RecordProgressRequest{Player: *player, QuestID: uint32(*quest), Delta: uint32(*delta)})

	case "emergency":
		id := fs.String("id", "", "request id")
		if err = fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.EmergencyComplete(ctx, &api.RequestRef{RequestID: *id})

	case "create":
		kind := fs.String("kind", "", "template|pack_type|adventure|quest")
		file := fs.String("file", "-", "JSON definition ('-' for stdin)")
		if err = fs.Parse(args); err != nil {
			return err
		}
		raw, e := readAll(*file)
		if e != nil {
			return e
		}
		res, err = createEntry(ctx, cli, *kind, raw)

	case "set-active":
		kind := fs.String("kind", "", "template|pack_type|adventure|quest")
		id := fs.Uint("id", 0, "entry id")
		active := fs.Bool("active", true, "active flag")
		if err = fs.Parse(args); err != nil {
			return err
		}
		_, err = cli.SetActive(ctx, &api.SetActiveRequest{Kind: *kind, ID: uint32(*id), Active: *active})

	case "pause", "unpause":
		_, err = cli.SetPaused(ctx, &api.SetPausedRequest{Paused: sub == "pause"})

	case "treasury":
		res, err = cli.GetTreasury(ctx, &api.Empty{})

	case "withdraw":
		amount := fs.String("amount", "", "AVAX to withdraw")
		if err = fs.Parse(args); err != nil {
			return err
		}
		wei, e := parseAVAX(*amount)
		if e != nil {
			return e
		}
		_, err = cli.Withdraw(ctx, &api.WithdrawRequest{AmountWei: wei})

	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(out, "ok")
		return nil
	}
	printJSON(out, res)
	return nil
}

func createEntry(ctx context.Context, cli *api.Client, kind string, raw []byte) (*api.IDResponse, error) {
	switch kind {
	case "template":
		return decodeAndCall(ctx, raw, cli.CreateTemplate)
	case "pack_type":
		return decodeAndCall(ctx, raw, cli.CreatePackType)
	case "adventure":
		return decodeAndCall(ctx, raw, cli.CreateAdventure)
	case "quest":
		return decodeAndCall(ctx, raw, cli.CreateQuest)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func decodeAndCall[T any](ctx context.Context, raw []byte, call func(context.Context, *T, ...grpc.CallOption) (*api.IDResponse, error)) (*api.IDResponse, error) {
	in := new(T)
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return call(ctx, in)
}

// readAll reads from a file path, or stdin when path is "-".
func readAll(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

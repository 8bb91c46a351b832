package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/service"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// fakeGame implements the read side of service.GameService; other methods panic.
type fakeGame struct {
	service.GameService
	lastLimit int
}

func (f *fakeGame) Catalog() service.CatalogView {
	return service.CatalogView{
		Templates:  []model.CardTemplate{{ID: 1, Name: "Fire Dragon", Rarity: model.Mythic, Active: true}},
		PackTypes:  []model.PackType{{ID: 1, Name: "Starter Pack", Price: 100, Chances: [3]uint8{70, 25, 5}, Active: true}},
		Adventures: []model.Adventure{{ID: 1, Name: "Forest", Duration: 10 * time.Minute, Active: true}},
	}
}

func (f *fakeGame) Stats(_ context.Context, p common.Address) (service.PlayerStats, error) {
	acct := model.NewAccount(p, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	acct.Tokens = 42
	return service.PlayerStats{Account: *acct}, nil
}

func (f *fakeGame) Events(_ context.Context, p common.Address, limit int) ([]model.Event, error) {
	f.lastLimit = limit
	if limit > 1000 {
		return nil, fmt.Errorf("%w: limit out of range", errs.ErrInvalidInput)
	}
	return []model.Event{{ID: uuid.Must(uuid.NewV4()), Kind: model.EventPackOpened, Player: p, At: time.Now()}}, nil
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	t.Parallel()
	var down error
	h := NewRouter(&fakeGame{}, func(context.Context) error { return down }, zaptest.NewLogger(t))

	require.Equal(t, http.StatusOK, serve(t, h, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(t, h, "/readyz").Code)

	down = errors.New("db gone")
	require.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/readyz").Code)
	require.Equal(t, http.StatusOK, serve(t, h, "/healthz").Code)
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	h := NewRouter(&fakeGame{}, nil, zaptest.NewLogger(t))

	rec := serve(t, h, "/v1/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	var c api.Catalog
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	require.Len(t, c.Templates, 1)
	require.Equal(t, "mythic", c.Templates[0].Rarity)
	require.EqualValues(t, 600, c.Adventures[0].DurationSeconds)

	rec = serve(t, h, "/v1/catalog/packs")
	require.Equal(t, http.StatusOK, rec.Code)
	var packs []api.PackType
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&packs))
	require.Equal(t, [3]uint8{70, 25, 5}, packs[0].Chances)

	require.Equal(t, http.StatusNotFound, serve(t, h, "/v1/catalog/boosters").Code)
}

func TestPlayerReadModels(t *testing.T) {
	t.Parallel()
	g := &fakeGame{}
	h := NewRouter(g, nil, zaptest.NewLogger(t))

	rec := serve(t, h, "/v1/players/"+alice.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var st api.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	require.Equal(t, alice.Hex(), st.Address)
	require.EqualValues(t, 42, st.Tokens)

	require.Equal(t, http.StatusBadRequest, serve(t, h, "/v1/players/bob").Code)

	rec = serve(t, h, "/v1/players/"+alice.Hex()+"/events?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, g.lastLimit)
	var evs api.ListEventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&evs))
	require.Len(t, evs.Events, 1)
	require.Equal(t, "PackOpened", evs.Events[0].Kind)

	require.Equal(t, http.StatusBadRequest, serve(t, h, "/v1/players/"+alice.Hex()+"/events?limit=x").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, h, "/v1/players/"+alice.Hex()+"/events?limit=5000").Code)
}

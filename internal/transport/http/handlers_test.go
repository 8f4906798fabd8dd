package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"tradepost/internal/audit"
	"tradepost/internal/catalog"
	"tradepost/internal/domain"
	"tradepost/internal/escrow"
	"tradepost/internal/identity"
	"tradepost/internal/ledger"
	"tradepost/internal/platform/metrics"
	"tradepost/internal/platform/middleware"
	"tradepost/internal/storage/memory"
	"tradepost/internal/trading"
)

// testMetrics registers against the global prometheus registry once per test
// binary.
var testMetrics = metrics.New()

const treasury = domain.Address("0xtreasury")

// stubValidator treats the bearer token itself as the ledger address.
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "" || token == "invalid" {
		return nil, errors.New("invalid token")
	}
	return &middleware.JWTClaims{Address: domain.Address(token)}, nil
}

type HandlersSuite struct {
	suite.Suite
	server *httptest.Server
	store  *memory.Store
	ledger *ledger.MemoryLedger
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.New()
	s.ledger = ledger.NewMemoryLedger(map[domain.Address]int64{
		"0xbuyer": 1000,
		treasury:  0,
	})
	publisher := audit.NewPublisher(64, logger)

	identitySvc := identity.NewService(s.store, publisher, nil, logger)
	catalogSvc := catalog.NewService(s.store, s.store, nil, publisher, nil, logger)
	tradingSvc := trading.NewService(s.store, s.ledger, catalog.NoopCache{}, publisher, nil, logger, treasury)
	escrowSvc := escrow.NewService(s.store, s.ledger, publisher, nil, logger, treasury)

	handler := NewHandler(identitySvc, catalogSvc, tradingSvc, escrowSvc, s.store, logger, map[string]HealthCheck{
		"store": func(ctx context.Context) error { return nil },
	})
	s.server = httptest.NewServer(NewRouter(handler, logger, testMetrics, stubValidator{}))
}

func (s *HandlersSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlersSuite) do(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *HandlersSuite) register(addr, username string) {
	resp := s.do(http.MethodPost, "/users", addr, map[string]string{"username": username})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func (s *HandlersSuite) listItem(addr, name string, price int64) domain.Item {
	resp := s.do(http.MethodPost, "/items", addr, map[string]any{
		"name": name, "description": "test item", "price": price,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var item domain.Item
	s.decode(resp, &item)
	return item
}

func (s *HandlersSuite) TestRegisterUser() {
	resp := s.do(http.MethodPost, "/users", "0xalice", map[string]string{"username": "alice"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var user domain.User
	s.decode(resp, &user)
	s.Equal("alice", user.Username)
	s.Equal(domain.Address("0xalice"), user.Address)
}

func (s *HandlersSuite) TestRegisterDuplicateConflicts() {
	s.register("0xalice", "alice")

	resp := s.do(http.MethodPost, "/users", "0xalice", map[string]string{"username": "alice2"})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)

	var body map[string]string
	s.decode(resp, &body)
	s.Equal("duplicate_user", body["error"])
}

func (s *HandlersSuite) TestGetUser() {
	s.register("0xalice", "alice")

	resp := s.do(http.MethodGet, "/users/0xalice", "0xanyone", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var user domain.User
	s.decode(resp, &user)
	s.Equal("alice", user.Username)

	resp = s.do(http.MethodGet, "/users/0xnobody", "0xanyone", nil)
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlersSuite) TestListItemRequiresRegistration() {
	resp := s.do(http.MethodPost, "/items", "0xghost", map[string]any{
		"name": "Lamp", "price": 100,
	})
	resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlersSuite) TestListItemRejectsBadPrice() {
	s.register("0xseller", "seller")

	for _, price := range []int64{0, -10} {
		resp := s.do(http.MethodPost, "/items", "0xseller", map[string]any{
			"name": "Lamp", "price": price,
		})
		resp.Body.Close()
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	}
}

func (s *HandlersSuite) TestGetItem() {
	s.register("0xseller", "seller")
	item := s.listItem("0xseller", "Lamp", 100)

	resp := s.do(http.MethodGet, fmt.Sprintf("/items/%d", item.ID), "0xanyone", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var got domain.Item
	s.decode(resp, &got)
	s.Equal(item.ID, got.ID)
	s.True(got.Available)

	resp = s.do(http.MethodGet, "/items/99", "0xanyone", nil)
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodGet, "/items/not-a-number", "0xanyone", nil)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestPurchaseFlow() {
	s.register("0xseller", "seller")
	item := s.listItem("0xseller", "Lamp", 100)

	resp := s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", item.ID), "0xbuyer", map[string]int64{"payment": 100})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var purchase domain.Purchase
	s.decode(resp, &purchase)
	s.Equal(item.ID, purchase.ItemID)
	s.Equal(domain.Address("0xbuyer"), purchase.Buyer)

	// The item now belongs to the buyer and is off the market.
	resp = s.do(http.MethodGet, fmt.Sprintf("/items/%d", item.ID), "0xanyone", nil)
	var got domain.Item
	s.decode(resp, &got)
	s.Equal(domain.Address("0xbuyer"), got.Owner)
	s.False(got.Available)

	// A second purchase attempt conflicts.
	resp = s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", item.ID), "0xbuyer", map[string]int64{"payment": 100})
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *HandlersSuite) TestPurchaseWrongPayment() {
	s.register("0xseller", "seller")
	item := s.listItem("0xseller", "Lamp", 100)

	resp := s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", item.ID), "0xbuyer", map[string]int64{"payment": 50})
	defer resp.Body.Close()
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]string
	s.decode(resp, &body)
	s.Equal("incorrect_payment", body["error"])
}

func (s *HandlersSuite) TestPurchaseWithoutFunds() {
	s.register("0xseller", "seller")
	item := s.listItem("0xseller", "Lamp", 100)

	resp := s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", item.ID), "0xbroke", map[string]int64{"payment": 100})
	resp.Body.Close()
	s.Equal(http.StatusBadGateway, resp.StatusCode)
}

func (s *HandlersSuite) TestListPurchases() {
	s.register("0xseller", "seller")
	first := s.listItem("0xseller", "Lamp", 100)
	second := s.listItem("0xseller", "Chair", 200)

	for _, p := range []struct {
		id      int64
		payment int64
	}{{first.ID, 100}, {second.ID, 200}} {
		resp := s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", p.id), "0xbuyer", map[string]int64{"payment": p.payment})
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := s.do(http.MethodGet, "/users/0xbuyer/purchases", "0xanyone", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var purchases []domain.Purchase
	s.decode(resp, &purchases)
	s.Require().Len(purchases, 2)
	s.Equal(first.ID, purchases[0].ItemID)
	s.Equal(second.ID, purchases[1].ItemID)
}

func (s *HandlersSuite) TestWithdrawFlow() {
	s.register("0xseller", "seller")
	item := s.listItem("0xseller", "Lamp", 100)

	resp := s.do(http.MethodPost, fmt.Sprintf("/items/%d/purchase", item.ID), "0xbuyer", map[string]int64{"payment": 100})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/users/0xseller/escrow", "0xseller", nil)
	var balance escrowBalanceResponse
	s.decode(resp, &balance)
	s.Equal(int64(100), balance.Balance)

	resp = s.do(http.MethodPost, "/withdrawals", "0xseller", nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var withdrawal withdrawalResponse
	s.decode(resp, &withdrawal)
	s.Equal(int64(100), withdrawal.Amount)

	// The escrow is empty now; a second withdrawal conflicts.
	resp = s.do(http.MethodPost, "/withdrawals", "0xseller", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
	var body map[string]string
	s.decode(resp, &body)
	s.Equal("no_funds", body["error"])
}

func (s *HandlersSuite) TestAuditTrail() {
	s.register("0xseller", "seller")

	// The register event flows through the worker before it is readable;
	// drive it synchronously here by writing straight to the store.
	err := s.store.AppendAuditEvent(context.Background(), audit.Event{
		ID: "evt-1", Action: audit.ActionUserRegistered, Actor: "0xseller", ItemID: -1,
	})
	s.Require().NoError(err)

	resp := s.do(http.MethodGet, "/users/0xseller/events", "0xseller", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var events []audit.Event
	s.decode(resp, &events)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionUserRegistered, events[0].Action)
}

func (s *HandlersSuite) TestAuthRequired() {
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/users"},
		{http.MethodPost, "/items"},
		{http.MethodPost, "/items/0/purchase"},
		{http.MethodPost, "/withdrawals"},
		{http.MethodGet, "/users/0xalice"},
	} {
		resp := s.do(tc.method, tc.path, "", nil)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)

		resp = s.do(tc.method, tc.path, "invalid", nil)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func (s *HandlersSuite) TestHealthAndMetricsAreOpen() {
	resp := s.do(http.MethodGet, "/healthz", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var health map[string]string
	s.decode(resp, &health)
	s.Equal("ok", health["store"])

	resp = s.do(http.MethodGet, "/metrics", "", nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) TestRejectsNonJSONBody() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/users", bytes.NewReader([]byte("username=alice")))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer 0xalice")

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnsupportedMediaType, resp.StatusCode)
}

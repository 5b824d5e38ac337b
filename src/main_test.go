package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lodging/src/boot"
	"lodging/src/config"
	"lodging/src/lib"
	"lodging/src/middlewares"
	"lodging/src/models"
	"lodging/src/store"
	"lodging/src/types"
	"lodging/src/utils"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

const (
	webhookSecret = "whsec_test_secret"
	hostID        = uint(10)
	guestID       = uint(20)
	operatorID    = uint(1)
)

type fakeGateway struct {
	mu       sync.Mutex
	sessions int
	refunds  []string
}

func (g *fakeGateway) CreateSession(ctx context.Context, p lib.CheckoutParams) (*lib.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	id := fmt.Sprintf("cs_test_%d", g.sessions)
	return &lib.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, transactionID)
	return nil
}

type TestSuite struct {
	suite.Suite
	router  *gin.Engine
	store   *store.MemoryStore
	events  *lib.MemoryPublisher
	gateway *fakeGateway
	tokens  map[types.Role]string
	start   time.Time
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	registerValidators()
	middlewares.SetSigningKey([]byte("test-jwt-secret"))
	os.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)

	s.tokens = map[types.Role]string{}
	for role, id := range map[types.Role]uint{
		types.ROLE_GUEST:    guestID,
		types.ROLE_HOST:     hostID,
		types.ROLE_OPERATOR: operatorID,
	} {
		token, err := middlewares.SignToken(id, role, time.Hour)
		s.Require().NoError(err)
		s.tokens[role] = token
	}
}

func (s *TestSuite) TearDownSuite() {
	os.Unsetenv("STRIPE_WEBHOOK_SECRET")
}

func (s *TestSuite) SetupTest() {
	cfg := &config.Config{
		HoldWindow:       24 * time.Hour,
		SweepInterval:    time.Minute,
		FailurePolicy:    config.FAILURE_RELEASE,
		WithholdPolicy:   config.WITHHOLD_UNTIL_COMPLETION,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
	}
	s.store = store.NewMemoryStore()
	s.store.PutListing(models.Listing{
		ID:             1,
		HostID:         hostID,
		BasePrice:      decimal.NewFromInt(5000),
		Commission:     decimal.NewFromInt(500),
		InstantBooking: true,
		MaxGuests:      4,
	})
	s.events = &lib.MemoryPublisher{}
	s.gateway = &fakeGateway{}
	engine := boot.NewEngine(s.store, cfg, boot.Options{Gateway: s.gateway, Events: s.events})

	s.router = setupRouter()
	s.router = maintenanceModeMiddleware(s.router)
	registerRoutes(s.router, engine)
	s.start = utils.Day(time.Now()).AddDate(0, 0, 30)
}

func (s *TestSuite) day(offset int) string {
	return utils.FormatDay(s.start.AddDate(0, 0, offset))
}

func (s *TestSuite) request(method, url string, body any, role types.Role) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TestSuite) webhook(eventType, sessionID, paymentStatus string) *httptest.ResponseRecorder {
	payload := fmt.Sprintf(`{
		"id": "evt_%d",
		"object": "event",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"payment_status": %q,
				"metadata": {"booking_id": "1"}
			}
		}
	}`, time.Now().UnixNano(), eventType, sessionID, paymentStatus)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  webhookSecret,
	})
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TestSuite) createBooking(in, out int) gjson.Result {
	w := s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 1,
		"check_in":   s.day(in),
		"check_out":  s.day(out),
		"guests":     2,
		"mode":       "instant",
	}, types.ROLE_GUEST)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "data")
}

func (s *TestSuite) TestHealth() {
	w := s.request(http.MethodGet, "/", nil, "")
	s.Equal(http.StatusOK, w.Code)
}

func (s *TestSuite) TestRequiresToken() {
	w := s.request(http.MethodGet, "/api/v1/bookings", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	s.T().Setenv("MAINTENANCE_MODE", "true")
	w := s.request(http.MethodGet, "/api/v1/bookings", nil, types.ROLE_GUEST)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *TestSuite) TestCreateBooking() {
	data := s.createBooking(0, 3)

	s.Equal("confirmed", data.Get("status").String())
	s.Equal("unpaid", data.Get("payment_status").String())
	s.Equal("16500", data.Get("amount").String())
	s.Equal("1500", data.Get("commission").String())
	s.Equal(int64(hostID), data.Get("host_id").Int())
	s.Equal([]lib.EventType{lib.EVENT_BOOKING_CREATED, lib.EVENT_BOOKING_CONFIRMED}, s.events.Types())

	w := s.request(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", data.Get("id").Int()), nil, types.ROLE_HOST)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/bookings?as=host", nil, types.ROLE_HOST)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(1), gjson.Get(w.Body.String(), "count").Int())
}

func (s *TestSuite) TestCreateBookingValidation() {
	w := s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 1,
		"check_in":   s.day(3),
		"check_out":  s.day(1),
		"guests":     2,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 1,
		"check_in":   "01/02/2030",
		"check_out":  s.day(1),
		"guests":     2,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 1,
		"check_in":   s.day(0),
		"check_out":  s.day(1),
		"guests":     9,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("capacity_exceeded", gjson.Get(w.Body.String(), "code").String())

	w = s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 99,
		"check_in":   s.day(0),
		"check_out":  s.day(1),
		"guests":     1,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *TestSuite) TestOverlapAndAvailability() {
	first := s.createBooking(0, 3)

	w := s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 1,
		"check_in":   s.day(2),
		"check_out":  s.day(4),
		"guests":     1,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("conflict", gjson.Get(w.Body.String(), "code").String())
	s.Equal(first.Get("id").Int(), gjson.Get(w.Body.String(), "booking_id").Int())

	url := fmt.Sprintf("/api/v1/listings/1/availability?check_in=%s&check_out=%s", s.day(1), s.day(2))
	w = s.request(http.MethodGet, url, nil, types.ROLE_GUEST)
	s.Equal(http.StatusOK, w.Code)
	s.False(gjson.Get(w.Body.String(), "data.available").Bool())

	url = fmt.Sprintf("/api/v1/listings/1/availability?check_in=%s&check_out=%s", s.day(3), s.day(5))
	w = s.request(http.MethodGet, url, nil, types.ROLE_GUEST)
	s.Equal(http.StatusOK, w.Code)
	s.True(gjson.Get(w.Body.String(), "data.available").Bool())
}

func (s *TestSuite) TestHostActionsNeedHostRole() {
	booking := s.createBooking(0, 2)
	url := fmt.Sprintf("/api/v1/bookings/%d/approve", booking.Get("id").Int())

	w := s.request(http.MethodPut, url, nil, types.ROLE_GUEST)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodPut, url, nil, types.ROLE_HOST)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("illegal_transition", gjson.Get(w.Body.String(), "code").String())

	w = s.request(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.Get("id").Int()), nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusOK, w.Code)
}

func (s *TestSuite) TestGuestCancel() {
	booking := s.createBooking(0, 2)
	url := fmt.Sprintf("/api/v1/bookings/%d/cancel", booking.Get("id").Int())

	w := s.request(http.MethodPut, url, gin.H{"reason": "plans changed"}, types.ROLE_GUEST)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("cancelled", gjson.Get(w.Body.String(), "data.status").String())
	s.Equal("plans changed", gjson.Get(w.Body.String(), "data.cancel_reason").String())

	s.createBooking(0, 2)
}

func (s *TestSuite) TestPaymentFlow() {
	booking := s.createBooking(0, 3)
	id := booking.Get("id").Int()

	w := s.request(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/payment-session", id), nil, types.ROLE_GUEST)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	txn := gjson.Get(w.Body.String(), "data.transaction_id").String()
	s.Equal("cs_test_1", txn)
	s.NotEmpty(gjson.Get(w.Body.String(), "data.url").String())

	w = s.webhook("checkout.session.completed", txn, "paid")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("paid", gjson.Get(w.Body.String(), "data.payment_status").String())
	s.False(gjson.Get(w.Body.String(), "data.already_processed").Bool())

	w = s.webhook("checkout.session.completed", txn, "paid")
	s.Equal(http.StatusOK, w.Code)
	s.True(gjson.Get(w.Body.String(), "data.already_processed").Bool())

	w = s.request(http.MethodGet, "/api/v1/ledger", nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(1), gjson.Get(w.Body.String(), "count").Int())
	s.Equal("commission", gjson.Get(w.Body.String(), "data.0.type").String())

	w = s.request(http.MethodGet, "/api/v1/balance", nil, types.ROLE_HOST)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("15000", gjson.Get(w.Body.String(), "data.total_earnings").String())
	s.Equal("15000", gjson.Get(w.Body.String(), "data.pending_amount").String())
	s.Equal("0", gjson.Get(w.Body.String(), "data.available_balance").String())

	w = s.request(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/refund", id), nil, types.ROLE_HOST)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/refund", id), nil, types.ROLE_OPERATOR)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("refunded", gjson.Get(w.Body.String(), "data.payment_status").String())
	s.Equal([]string{txn}, s.gateway.refunds)
}

func (s *TestSuite) TestWebhookFailureReleasesDates() {
	booking := s.createBooking(0, 3)
	w := s.request(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/payment-session", booking.Get("id").Int()), nil, types.ROLE_GUEST)
	s.Require().Equal(http.StatusCreated, w.Code)
	txn := gjson.Get(w.Body.String(), "data.transaction_id").String()

	w = s.webhook("checkout.session.expired", txn, "unpaid")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("cancelled", gjson.Get(w.Body.String(), "data.status").String())

	s.createBooking(0, 3)
}

func (s *TestSuite) TestWebhookAcknowledgesLateSuccess() {
	booking := s.createBooking(0, 3)
	id := booking.Get("id").Int()
	w := s.request(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/payment-session", id), nil, types.ROLE_GUEST)
	s.Require().Equal(http.StatusCreated, w.Code)
	txn := gjson.Get(w.Body.String(), "data.transaction_id").String()

	w = s.webhook("checkout.session.async_payment_failed", txn, "unpaid")
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.webhook("checkout.session.async_payment_succeeded", txn, "paid")
	s.Equal(http.StatusOK, w.Code)
	s.True(gjson.Get(w.Body.String(), "ignored").Bool())
	s.Equal("illegal_transition", gjson.Get(w.Body.String(), "code").String())

	w = s.request(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil, types.ROLE_GUEST)
	s.Equal("cancelled", gjson.Get(w.Body.String(), "data.status").String())
	s.Equal("failed", gjson.Get(w.Body.String(), "data.payment_status").String())
}

func (s *TestSuite) TestBlockedDateConflictCarriesTheDay() {
	s.store.PutListing(models.Listing{
		ID:         2,
		HostID:     hostID,
		BasePrice:  decimal.NewFromInt(5000),
		Commission: decimal.NewFromInt(500),
		BlockedDates: []models.ListingBlockedDate{
			{ListingID: 2, Day: s.start.AddDate(0, 0, 1)},
		},
	})

	w := s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 2,
		"check_in":   s.day(0),
		"check_out":  s.day(3),
		"guests":     1,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("conflict", gjson.Get(w.Body.String(), "code").String())
	s.Equal(s.day(1), gjson.Get(w.Body.String(), "date").String())
	s.False(gjson.Get(w.Body.String(), "booking_id").Exists())

	w = s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 2,
		"check_in":   s.day(2),
		"check_out":  s.day(4),
		"guests":     1,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/bookings", gin.H{
		"listing_id": 2,
		"check_in":   s.day(3),
		"check_out":  s.day(5),
		"guests":     1,
	}, types.ROLE_GUEST)
	s.Equal(http.StatusConflict, w.Code)
	s.False(gjson.Get(w.Body.String(), "date").Exists())
	s.True(gjson.Get(w.Body.String(), "booking_id").Exists())
}

func (s *TestSuite) TestWebhookRejectsBadInput() {
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.webhook("checkout.session.completed", "cs_unknown", "paid")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("unknown_transaction", gjson.Get(w.Body.String(), "code").String())

	w = s.webhook("customer.created", "cus_1", "")
	s.Equal(http.StatusNoContent, w.Code)

	w = s.webhook("checkout.session.completed", "cs_unknown", "unpaid")
	s.Equal(http.StatusNoContent, w.Code)
}

func (s *TestSuite) TestPayoutFlow() {
	w := s.request(http.MethodPost, "/api/v1/payouts", gin.H{
		"amount": "100",
		"method": gin.H{"kind": "wallet", "provider": "bKash", "account_number": "01700000000"},
	}, types.ROLE_HOST)
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("insufficient_balance", gjson.Get(w.Body.String(), "code").String())

	w = s.request(http.MethodPost, "/api/v1/ledger/adjustments", gin.H{
		"host_id":     hostID,
		"amount":      "-500",
		"host_amount": "500",
		"note":        "goodwill credit",
	}, types.ROLE_HOST)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodPost, "/api/v1/ledger/adjustments", gin.H{
		"host_id":     hostID,
		"amount":      "-500",
		"host_amount": "500",
		"note":        "goodwill credit",
	}, types.ROLE_OPERATOR)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/payouts", gin.H{
		"amount": "300",
		"method": gin.H{"kind": "wallet", "provider": "bKash", "account_number": "01700000000"},
	}, types.ROLE_HOST)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	payoutID := gjson.Get(w.Body.String(), "data.id").Int()
	s.Equal("pending", gjson.Get(w.Body.String(), "data.status").String())

	w = s.request(http.MethodGet, "/api/v1/payouts", nil, types.ROLE_OPERATOR)
	s.Equal(int64(1), gjson.Get(w.Body.String(), "count").Int())

	w = s.request(http.MethodPut, fmt.Sprintf("/api/v1/payouts/%d/approve", payoutID), nil, types.ROLE_OPERATOR)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("approved", gjson.Get(w.Body.String(), "data.status").String())

	w = s.request(http.MethodPut, fmt.Sprintf("/api/v1/payouts/%d/reject", payoutID), nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusConflict, w.Code)

	w = s.request(http.MethodGet, fmt.Sprintf("/api/v1/hosts/%d/balance", hostID), nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("300", gjson.Get(w.Body.String(), "data.paid_out").String())
	s.Equal("200", gjson.Get(w.Body.String(), "data.available_balance").String())

	w = s.request(http.MethodGet, "/api/v1/ledger?type=payout", nil, types.ROLE_HOST)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(1), gjson.Get(w.Body.String(), "count").Int())
	s.Equal("-300", gjson.Get(w.Body.String(), "data.0.amount").String())
}

func (s *TestSuite) TestOperatorLedgerRoutes() {
	w := s.request(http.MethodPost, "/api/v1/ledger/spend", gin.H{"amount": "250", "note": "ads"}, types.ROLE_OPERATOR)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("-250", gjson.Get(w.Body.String(), "data.amount").String())

	w = s.request(http.MethodPost, "/api/v1/ledger/spend", gin.H{"amount": "0", "note": "ads"}, types.ROLE_OPERATOR)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodGet, "/api/v1/stats", nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("-250", gjson.Get(w.Body.String(), "data.spend").String())

	w = s.request(http.MethodGet, "/api/v1/stats", nil, types.ROLE_GUEST)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/api/v1/ledger?from=2030-01-02&to=2030-01-01", nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.request(http.MethodPost, "/api/v1/ledger/export", nil, types.ROLE_OPERATOR)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestTestSuite(t *testing.T) {
	suite.Run(t, new(TestSuite))
}

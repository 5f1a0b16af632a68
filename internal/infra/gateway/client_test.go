package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPartner = "MOMOTEST"
	testAccess  = "F8BBA842ECF85"
	testSecret  = "K951B6PE1waDMi640xX08PD3vg6EkVlz"
)

func newTestClient(endpoint string) *Client {
	c := NewClient(Config{
		PartnerCode: testPartner,
		AccessKey:   testAccess,
		SecretKey:   testSecret,
		Endpoint:    endpoint,
		RedirectURL: "http://localhost:8080/payments/gateway/return",
		IPNURL:      "http://localhost:8080/payments/gateway/ipn",
		Timeout:     time.Second,
	}, nil)
	c.newRequestID = func() string { return "req-1" }
	return c
}

func TestRawSignature_Order(t *testing.T) {
	raw := rawSignature([]kv{{"accessKey", "a"}, {"amount", "100"}, {"orderId", "OD-1"}})
	assert.Equal(t, "accessKey=a&amount=100&orderId=OD-1", raw)
}

func TestSign_KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	assert.Equal(t,
		"f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		sign("key", "The quick brown fox jumps over the lazy dog"))
	assert.True(t, verify("key", "The quick brown fox jumps over the lazy dog",
		"F7BC83F430538424B13298E6AA6FB143EF4D59A14946175997479DBC2D1A3CD8"))
	assert.False(t, verify("key", "x", ""))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(0))
	assert.Equal(t, OutcomePending, Classify(1000))
	assert.Equal(t, OutcomePending, Classify(7000))
	assert.Equal(t, OutcomeFailed, Classify(1006))
	assert.Equal(t, OutcomeFailed, Classify(49))

	assert.Equal(t, OutcomeSuccess, ClassifyFinal(0))
	for _, code := range []int{1000, 7000, 7002, 9000, 1006} {
		assert.Equal(t, OutcomeFailed, ClassifyFinal(code), "code %d", code)
	}
}

func TestCreatePayment_SignsAndReturnsPayURL(t *testing.T) {
	var got createBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"partnerCode": testPartner,
			"orderId":     got.OrderID,
			"requestId":   got.RequestID,
			"amount":      got.Amount,
			"resultCode":  0,
			"message":     "Successful.",
			"payUrl":      "https://pay.example/checkout/" + got.OrderID,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.CreatePayment(context.Background(), PaymentRequest{
		OrderCode: "OD-20260101-ABC",
		Amount:    150000,
		OrderInfo: "Payment for order OD-20260101-ABC",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/checkout/OD-20260101-ABC", resp.PayURL)
	assert.Equal(t, "req-1", resp.RequestID)

	raw := "accessKey=" + testAccess +
		"&amount=150000&extraData=" +
		"&ipnUrl=http://localhost:8080/payments/gateway/ipn" +
		"&orderId=OD-20260101-ABC" +
		"&orderInfo=Payment for order OD-20260101-ABC" +
		"&partnerCode=" + testPartner +
		"&redirectUrl=http://localhost:8080/payments/gateway/return" +
		"&requestId=req-1&requestType=captureWallet"
	assert.Equal(t, sign(testSecret, raw), got.Signature)
	assert.Equal(t, "captureWallet", got.RequestType)
}

func TestCreatePayment_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"resultCode":"21","message":"invalid amount"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreatePayment(context.Background(), PaymentRequest{OrderCode: "OD-1", Amount: 1})
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, 21, rej.ResultCode)
}

func TestCreatePayment_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.cfg.Timeout = 50 * time.Millisecond

	_, err := c.CreatePayment(context.Background(), PaymentRequest{OrderCode: "OD-1", Amount: 1})
	require.Error(t, err)
}

func TestCreatePayment_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreatePayment(context.Background(), PaymentRequest{OrderCode: "OD-1", Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		var q queryBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		raw := "accessKey=" + testAccess + "&orderId=" + q.OrderID + "&partnerCode=" + testPartner + "&requestId=" + q.RequestID
		require.Equal(t, sign(testSecret, raw), q.Signature)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":    q.OrderID,
			"requestId":  q.RequestID,
			"amount":     150000,
			"transId":    4088878653,
			"resultCode": 1000,
			"message":    "waiting for user confirmation",
		})
	}))
	defer srv.Close()

	cb, err := newTestClient(srv.URL).QueryStatus(context.Background(), "OD-1")
	require.NoError(t, err)
	assert.Equal(t, "OD-1", cb.OrderCode)
	assert.Equal(t, 1000, cb.ResultCode)
	assert.Equal(t, OutcomePending, cb.Outcome())
	assert.Equal(t, "4088878653", cb.TransID)
}

func TestParseWebhook(t *testing.T) {
	c := newTestClient("http://unused")
	ipn := c.NewIPN("OD-1", 150000, 0, "Successful.")

	body, err := json.Marshal(ipn)
	require.NoError(t, err)

	cb, err := c.ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "OD-1", cb.OrderCode)
	assert.Equal(t, int64(150000), cb.Amount)
	assert.Equal(t, OutcomeSuccess, cb.Outcome())
}

func TestParseWebhook_Rejects(t *testing.T) {
	c := newTestClient("http://unused")

	t.Run("tampered", func(t *testing.T) {
		ipn := c.NewIPN("OD-1", 150000, 1006, "denied")
		rc := flexInt(0)
		ipn.ResultCode = &rc
		body, _ := json.Marshal(ipn)
		_, err := c.ParseWebhook(body)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("unsigned", func(t *testing.T) {
		_, err := c.ParseWebhook([]byte(`{"orderId":"OD-1","resultCode":0}`))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("missing resultCode", func(t *testing.T) {
		_, err := c.ParseWebhook([]byte(`{"orderId":"OD-1"}`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("not json", func(t *testing.T) {
		_, err := c.ParseWebhook([]byte(`orderId=OD-1`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("bad number", func(t *testing.T) {
		_, err := c.ParseWebhook([]byte(`{"orderId":"OD-1","resultCode":"abc"}`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestParseReturn(t *testing.T) {
	c := newTestClient("http://unused")
	ipn := c.NewIPN("OD-9", 99000, 1006, "Transaction denied by user.")
	q := c.ReturnQuery(ipn)

	cb, err := c.ParseReturn(q)
	require.NoError(t, err)
	assert.Equal(t, "OD-9", cb.OrderCode)
	assert.Equal(t, 1006, cb.ResultCode)
	assert.Equal(t, OutcomeFailed, cb.Outcome())

	q.Set("amount", strconv.Itoa(1))
	_, err = c.ParseReturn(q)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	q.Set("resultCode", "x")
	_, err = c.ParseReturn(q)
	assert.ErrorIs(t, err, ErrMalformed)
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	Timeout     time.Duration
}

type Client struct {
	cfg          Config
	http         *http.Client
	newRequestID func() string
}

func NewClient(cfg Config, hc *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{cfg: cfg, http: hc, newRequestID: uuid.NewString}
}

type createBody struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createReply struct {
	PartnerCode string  `json:"partnerCode"`
	OrderID     string  `json:"orderId"`
	RequestID   string  `json:"requestId"`
	Amount      flexInt `json:"amount"`
	ResultCode  flexInt `json:"resultCode"`
	Message     string  `json:"message"`
	PayURL      string  `json:"payUrl"`
}

// CreatePayment は署名付きの決済開始リクエストを送り、payUrl を返す。
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	requestID := c.newRequestID()
	body := createBody{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   requestID,
		Amount:      req.Amount,
		OrderID:     req.OrderCode,
		OrderInfo:   req.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: c.cfg.RequestType,
		ExtraData:   req.ExtraData,
		Lang:        c.cfg.Lang,
	}
	body.Signature = sign(c.cfg.SecretKey, rawSignature([]kv{
		{"accessKey", c.cfg.AccessKey},
		{"amount", strconv.FormatInt(body.Amount, 10)},
		{"extraData", body.ExtraData},
		{"ipnUrl", body.IPNURL},
		{"orderId", body.OrderID},
		{"orderInfo", body.OrderInfo},
		{"partnerCode", body.PartnerCode},
		{"redirectUrl", body.RedirectURL},
		{"requestId", body.RequestID},
		{"requestType", body.RequestType},
	}))

	var reply createReply
	if err := c.post(ctx, "/create", body, &reply); err != nil {
		return PaymentResponse{}, err
	}
	if reply.ResultCode != 0 {
		return PaymentResponse{}, &RejectedError{ResultCode: int(reply.ResultCode), Message: reply.Message}
	}
	if reply.PayURL == "" {
		return PaymentResponse{}, fmt.Errorf("gateway returned no payUrl for %s", req.OrderCode)
	}
	return PaymentResponse{
		RequestID:  requestID,
		PayURL:     reply.PayURL,
		ResultCode: int(reply.ResultCode),
		Message:    reply.Message,
	}, nil
}

type queryBody struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type queryReply struct {
	PartnerCode string  `json:"partnerCode"`
	OrderID     string  `json:"orderId"`
	RequestID   string  `json:"requestId"`
	ExtraData   string  `json:"extraData"`
	Amount      flexInt `json:"amount"`
	TransID     flexInt `json:"transId"`
	ResultCode  flexInt `json:"resultCode"`
	Message     string  `json:"message"`
}

// QueryStatus はゲートウェイ側の現在の結果を照会する（読み取りのみ・何度でも可）。
func (c *Client) QueryStatus(ctx context.Context, orderCode string) (Callback, error) {
	body := queryBody{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   c.newRequestID(),
		OrderID:     orderCode,
		Lang:        c.cfg.Lang,
	}
	body.Signature = sign(c.cfg.SecretKey, rawSignature([]kv{
		{"accessKey", c.cfg.AccessKey},
		{"orderId", body.OrderID},
		{"partnerCode", body.PartnerCode},
		{"requestId", body.RequestID},
	}))

	var reply queryReply
	if err := c.post(ctx, "/query", body, &reply); err != nil {
		return Callback{}, err
	}
	if reply.OrderID != "" && reply.OrderID != orderCode {
		return Callback{}, fmt.Errorf("%w: query answered for %s, asked %s", ErrMalformed, reply.OrderID, orderCode)
	}
	return Callback{
		OrderCode:  orderCode,
		RequestID:  reply.RequestID,
		Amount:     int64(reply.Amount),
		ResultCode: int(reply.ResultCode),
		Message:    reply.Message,
		TransID:    reply.TransID.String(),
		ExtraData:  reply.ExtraData,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gateway %s: read body: %w", path, err)
	}

	// 4xxでもJSON（resultCode付き）で返ってくる
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("gateway %s: http %d", path, resp.StatusCode)
		}
		return fmt.Errorf("gateway %s: decode: %w", path, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway %s: http %d", path, resp.StatusCode)
	}
	return nil
}

// ---- 受信側（webhook / リダイレクト）----

// IPNPayload は webhook の JSON ボディ。リダイレクトのクエリも同じ項目。
type IPNPayload struct {
	PartnerCode  string   `json:"partnerCode"`
	OrderID      string   `json:"orderId"`
	RequestID    string   `json:"requestId"`
	Amount       flexInt  `json:"amount"`
	OrderInfo    string   `json:"orderInfo"`
	OrderType    string   `json:"orderType"`
	TransID      flexInt  `json:"transId"`
	ResultCode   *flexInt `json:"resultCode"`
	Message      string   `json:"message"`
	PayType      string   `json:"payType"`
	ResponseTime flexInt  `json:"responseTime"`
	ExtraData    string   `json:"extraData"`
	Signature    string   `json:"signature"`
}

func (p IPNPayload) raw(accessKey string) string {
	rc := ""
	if p.ResultCode != nil {
		rc = p.ResultCode.String()
	}
	return rawSignature([]kv{
		{"accessKey", accessKey},
		{"amount", p.Amount.String()},
		{"extraData", p.ExtraData},
		{"message", p.Message},
		{"orderId", p.OrderID},
		{"orderInfo", p.OrderInfo},
		{"orderType", p.OrderType},
		{"partnerCode", p.PartnerCode},
		{"payType", p.PayType},
		{"requestId", p.RequestID},
		{"responseTime", p.ResponseTime.String()},
		{"resultCode", rc},
		{"transId", p.TransID.String()},
	})
}

func (c *Client) checkPayload(p IPNPayload) (Callback, error) {
	if p.OrderID == "" || p.ResultCode == nil {
		return Callback{}, fmt.Errorf("%w: orderId and resultCode are required", ErrMalformed)
	}
	if p.PartnerCode != "" && p.PartnerCode != c.cfg.PartnerCode {
		return Callback{}, fmt.Errorf("%w: unknown partner %s", ErrMalformed, p.PartnerCode)
	}
	if !verify(c.cfg.SecretKey, p.raw(c.cfg.AccessKey), p.Signature) {
		return Callback{}, ErrInvalidSignature
	}
	return Callback{
		OrderCode:  p.OrderID,
		RequestID:  p.RequestID,
		Amount:     int64(p.Amount),
		ResultCode: int(*p.ResultCode),
		Message:    p.Message,
		TransID:    p.TransID.String(),
		ExtraData:  p.ExtraData,
	}, nil
}

// ParseWebhook は webhook ボディを検証して Callback にする。
func (c *Client) ParseWebhook(body []byte) (Callback, error) {
	var p IPNPayload
	if err := json.Unmarshal(body, &p); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Callback{}, err
		}
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c.checkPayload(p)
}

// ParseReturn はリダイレクトのクエリを検証して Callback にする。
func (c *Client) ParseReturn(q url.Values) (Callback, error) {
	p := IPNPayload{
		PartnerCode: q.Get("partnerCode"),
		OrderID:     q.Get("orderId"),
		RequestID:   q.Get("requestId"),
		OrderInfo:   q.Get("orderInfo"),
		OrderType:   q.Get("orderType"),
		Message:     q.Get("message"),
		PayType:     q.Get("payType"),
		ExtraData:   q.Get("extraData"),
		Signature:   q.Get("signature"),
	}
	for name, dst := range map[string]*flexInt{
		"amount":       &p.Amount,
		"transId":      &p.TransID,
		"responseTime": &p.ResponseTime,
	} {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Callback{}, fmt.Errorf("%w: %s is not a number", ErrMalformed, name)
			}
			*dst = flexInt(n)
		}
	}
	if v := q.Get("resultCode"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: resultCode is not a number", ErrMalformed)
		}
		rc := flexInt(n)
		p.ResultCode = &rc
	}
	return c.checkPayload(p)
}

// SignIPN は IPNPayload に署名を入れる（サンドボックスとテスト用）
func (c *Client) SignIPN(p *IPNPayload) {
	p.Signature = sign(c.cfg.SecretKey, p.raw(c.cfg.AccessKey))
}

// ReturnQuery は署名済みのリダイレクトクエリを作る（サンドボックスとテスト用）
func (c *Client) ReturnQuery(p IPNPayload) url.Values {
	c.SignIPN(&p)
	q := url.Values{}
	q.Set("partnerCode", p.PartnerCode)
	q.Set("orderId", p.OrderID)
	q.Set("requestId", p.RequestID)
	q.Set("amount", p.Amount.String())
	q.Set("orderInfo", p.OrderInfo)
	q.Set("orderType", p.OrderType)
	q.Set("transId", p.TransID.String())
	if p.ResultCode != nil {
		q.Set("resultCode", p.ResultCode.String())
	}
	q.Set("message", p.Message)
	q.Set("payType", p.PayType)
	q.Set("responseTime", p.ResponseTime.String())
	q.Set("extraData", p.ExtraData)
	q.Set("signature", p.Signature)
	return q
}

// NewIPN はテストやサンドボックスで webhook を組み立てる。
func (c *Client) NewIPN(orderCode string, amount int64, resultCode int, message string) IPNPayload {
	rc := flexInt(resultCode)
	p := IPNPayload{
		PartnerCode:  c.cfg.PartnerCode,
		OrderID:      orderCode,
		RequestID:    c.newRequestID(),
		Amount:       flexInt(amount),
		OrderInfo:    "Payment for order " + orderCode,
		OrderType:    "momo_wallet",
		TransID:      flexInt(time.Now().UnixNano() % 1e10),
		ResultCode:   &rc,
		Message:      message,
		PayType:      "qr",
		ResponseTime: flexInt(time.Now().UnixMilli()),
	}
	c.SignIPN(&p)
	return p
}

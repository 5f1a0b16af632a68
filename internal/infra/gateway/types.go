package gateway

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// 署名なし・署名不一致
	ErrInvalidSignature = errors.New("gateway: invalid signature")
	// 必須項目なし・型が違う
	ErrMalformed = errors.New("gateway: malformed payload")
)

// RejectedError はゲートウェイが resultCode != 0 で断ったとき
type RejectedError struct {
	ResultCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: resultCode=%d message=%s", e.ResultCode, e.Message)
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// 決済がまだ終わっていないコード。状態照会の応答でだけ意味を持つ。
var pendingCodes = map[int]bool{
	1000: true, // ユーザーの確認待ち
	7000: true, // 処理中
	7002: true, // 提供元で処理中
	9000: true, // オーソリ済み・確定待ち
}

// ClassifyFinal は通知（IPN・リダイレクト）用。0 以外はすべて失敗。
func ClassifyFinal(resultCode int) Outcome {
	if resultCode == 0 {
		return OutcomeSuccess
	}
	return OutcomeFailed
}

// Classify は状態照会の resultCode を成功・処理中・失敗に分ける。
func Classify(resultCode int) Outcome {
	if resultCode == 0 {
		return OutcomeSuccess
	}
	if pendingCodes[resultCode] {
		return OutcomePending
	}
	return OutcomeFailed
}

type PaymentRequest struct {
	OrderCode string
	Amount    int64
	OrderInfo string
	ExtraData string
}

type PaymentResponse struct {
	RequestID  string
	PayURL     string
	ResultCode int
	Message    string
}

// Callback は webhook・リダイレクト・照会の結果を同じ形にしたもの
type Callback struct {
	OrderCode  string
	RequestID  string
	Amount     int64
	ResultCode int
	Message    string
	TransID    string
	ExtraData  string
}

// Outcome は状態照会の結果として解釈する。
func (c Callback) Outcome() Outcome {
	return Classify(c.ResultCode)
}

// FinalOutcome はゲートウェイから届いた通知の結果として解釈する。
func (c Callback) FinalOutcome() Outcome {
	return ClassifyFinal(c.ResultCode)
}

// ゲートウェイは数値を文字列で送ることもある
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s is not a number", ErrMalformed, string(b))
	}
	*f = flexInt(v)
	return nil
}

func (f flexInt) String() string {
	return strconv.FormatInt(int64(f), 10)
}

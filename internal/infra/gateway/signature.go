package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// kv は署名対象の1項目。順番はゲートウェイの仕様で固定。
type kv struct {
	key   string
	value string
}

// rawSignature は "k1=v1&k2=v2..." を作る（値はエスケープしない）
func rawSignature(fields []kv) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

func sign(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, raw, signature string) bool {
	if signature == "" {
		return false
	}
	expected := sign(secret, raw)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

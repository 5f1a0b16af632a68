package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EchoValidator は echo.Validator を満たす。リクエストDTOの validate タグで検証する。
type EchoValidator struct {
	v *validator.Validate
}

func New() *EchoValidator {
	v := validator.New()
	// エラーのフィールド名は json タグ名にする
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &EchoValidator{v: v}
}

func (ev *EchoValidator) Validate(i interface{}) error {
	return ev.v.Struct(i)
}

// Details は検証エラーを {"line_items[0].quantity": "gt"} の形にする。
// 検証エラーでなければ nil。
func Details(err error) map[string]any {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}
	out := make(map[string]any, len(ves))
	for _, fe := range ves {
		field := fe.Namespace()
		// 先頭の構造体名を落とす
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		out[field] = tag
	}
	return out
}

package client

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/encoding/json"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals a response body into dst and validates struct results.
// Any failure is reported as common.ErrRemoteDB.
func decode(v *validator.Validate, method string, body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", common.ErrRemoteDB, method, err)
	}
	rv := reflect.Indirect(reflect.ValueOf(dst))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("%w: %s: field %q failed %q", common.ErrRemoteDB, method, errs[0].Field(), errs[0].Tag())
		}
		return fmt.Errorf("%w: %s: %v", common.ErrRemoteDB, method, err)
	}
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/okian/framecoach/internal/domain/fault"
)

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

// validation returns the shared validator with English messages and json
// field names.
func validation() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// decodeJSON reads at most maxBytes of JSON into T and validates it. Every
// failure is an input fault carrying a client-safe message.
func decodeJSON[T any](r *http.Request, maxBytes int64) (T, error) {
	const op = "api.decode"
	var dst T

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dst, fault.New(op, fault.ErrInput, "request body is empty")
		}
		return dst, &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: "invalid JSON body"}
	}
	if dec.More() {
		return dst, fault.New(op, fault.ErrInput, "unexpected trailing data")
	}
	if err := validateStruct(dst); err != nil {
		return dst, err
	}
	return dst, nil
}

func validateStruct(v any) error {
	err := validation().validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fe.Translate(validation().translator)
		}
		return &fault.Error{Op: "api.validate", Kind: fault.ErrInput, Err: err, Detail: strings.Join(msgs, "; ")}
	}
	return &fault.Error{Op: "api.validate", Kind: fault.ErrInput, Err: err, Detail: ErrBadRequest.Error()}
}

package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var errBadRequest = errors.New("bad request")

// validationError lists the request fields that failed validation.
type validationError struct {
	fields []string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.fields, ", "))
}

func (e *validationError) Unwrap() error { return errBadRequest }

const maxBodyBytes = 64 << 10

var validate = newValidator()

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

// decodeRPC reads a JSON object body into dst and validates it. An empty
// body decodes as {}.
func decodeRPC(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Field()
			}
			return &validationError{fields: fields}
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

type localeRequest struct {
	Locale string `json:"p_locale" validate:"omitempty,max=16"`
}

type trailRequest struct {
	TrailID string `json:"p_trail_id" validate:"required,max=128"`
	Locale  string `json:"p_locale" validate:"omitempty,max=16"`
}

type blockRequest struct {
	BlockID string `json:"p_block_id" validate:"required,max=128"`
	Locale  string `json:"p_locale" validate:"omitempty,max=16"`
}

type phaseRequest struct {
	PhaseID string `json:"p_phase_id" validate:"required,max=128"`
	Locale  string `json:"p_locale" validate:"omitempty,max=16"`
}

type submitRequest struct {
	ChallengeID string          `json:"p_challenge_id" validate:"required,max=128"`
	Answers     json.RawMessage `json:"p_answers" validate:"required"`
	Locale      string          `json:"p_locale" validate:"omitempty,max=16"`
}

type grantRequest struct {
	AccountID string `json:"p_account_id" validate:"required,uuid"`
	ProductID string `json:"p_product_id" validate:"required,max=128"`
}

type resetRequest struct {
	AccountID string `json:"p_account_id" validate:"required,uuid"`
}

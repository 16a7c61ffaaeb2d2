package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
	"github.com/storylineapp/storyline-core/internal/validation"
)

type TestRequest struct {
	ServerURL string  `json:"server_url" validate:"required,url"`
	Code      string  `json:"code" validate:"required,len=6"`
	Rate      float64 `json:"rate" validate:"gt=0,lte=4"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		ServerURL: "https://media.example.com",
		Code:      "483921",
		Rate:      1.25,
	}

	err := v.Validate(req)
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	//nolint:govet // fieldalignment: Minor memory optimization not worth the complexity in test code
	tests := []struct {
		name        string
		req         TestRequest
		wantErrCode int
		wantField   string
	}{
		{
			name: "missing required field",
			req: TestRequest{
				ServerURL: "https://media.example.com",
				Code:      "", // Missing
				Rate:      1.0,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "code",
		},
		{
			name: "invalid url",
			req: TestRequest{
				ServerURL: "not-a-url",
				Code:      "483921",
				Rate:      1.0,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "server_url",
		},
		{
			name: "code wrong length",
			req: TestRequest{
				ServerURL: "https://media.example.com",
				Code:      "12345",
				Rate:      1.0,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "code",
		},
		{
			name: "rate out of range",
			req: TestRequest{
				ServerURL: "https://media.example.com",
				Code:      "483921",
				Rate:      5.0,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			assert.Error(t, err)

			var domainErr *domainerrors.Error
			if assert.True(t, domainerrors.As(err, &domainErr)) {
				assert.Equal(t, tt.wantErrCode, domainErr.Code.HTTPStatus())
				details, ok := domainErr.Details.(map[string]string)
				if assert.True(t, ok, "details should be a field error map") {
					assert.Contains(t, details, tt.wantField)
				}
			}
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		ServerURL: "",
		Code:      "483921",
		Rate:      1.0,
	}

	err := v.Validate(req)
	assert.Error(t, err)

	var domainErr *domainerrors.Error
	assert.True(t, domainerrors.As(err, &domainErr))

	// Should use JSON tag name "server_url", not struct field name "ServerURL"
	details, ok := domainErr.Details.(map[string]string)
	if assert.True(t, ok) {
		assert.Contains(t, details, "server_url")
		assert.NotContains(t, details, "ServerURL")
	}
}

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/stretchr/testify/require"
)

func TestIsRejection(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		rejection bool
	}{
		{"invalid_grant on 400", &provider.Error{Status: 400, Code: "invalid_grant"}, true},
		{"not_authorized on 401", &provider.Error{Status: 401, Code: "not_authorized"}, true},
		{"throttling 429 is transient", &provider.Error{Status: 429, Code: "too_many_requests"}, false},
		{"request timeout 408 is transient", &provider.Error{Status: 408, Code: "request_timeout"}, false},
		{"unknown code on 400 is transient", &provider.Error{Status: 400, Code: "provider_error"}, false},
		{"rejection code outside 400/401 is transient", &provider.Error{Status: 403, Code: "invalid_grant"}, false},
		{"5xx is transient", &provider.Error{Status: 502, Code: "provider_error"}, false},
		{"wrapped rejection still detected", fmt.Errorf("renew: %w", &provider.Error{Status: 400, Code: "invalid_grant"}), true},
		{"plain error", errors.New("connection refused"), false},
		{"context cancellation", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.rejection, provider.IsRejection(tc.err))
		})
	}
}

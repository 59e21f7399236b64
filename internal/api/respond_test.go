package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/pagination"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: goal x", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: missing field name", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: 120", domain.ErrInvalidAllocation), http.StatusBadRequest},
		{fmt.Errorf("%w: Total would be: 110%%", domain.ErrInsufficientAllocation), http.StatusBadRequest},
		{fmt.Errorf("%w: decode failed", pagination.ErrInvalidToken), http.StatusBadRequest},
		{fmt.Errorf("%w: kept losing", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: timeout", domain.ErrStorage), http.StatusInternalServerError},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, StatusFor(tc.err), tc.err.Error())
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	response, err := Error(fmt.Errorf("%w: dialing dynamodb: connection refused", domain.ErrStorage))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
	assert.NotContains(t, response.Body, "dynamodb")

	response, err = Error(fmt.Errorf("%w: missing field name", domain.ErrInvalidInput))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Contains(t, response.Body, "missing field name")
}

func TestIdentityFromCognitoClaims(t *testing.T) {
	request := events.APIGatewayProxyRequest{
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"claims": map[string]interface{}{"sub": "user-42"},
			},
		},
	}

	userID, err := Identity(request)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestIdentityFromPrincipalID(t *testing.T) {
	request := events.APIGatewayProxyRequest{
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{"principalId": "user-42"},
		},
	}

	userID, err := Identity(request)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestIdentityMissing(t *testing.T) {
	_, err := Identity(events.APIGatewayProxyRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

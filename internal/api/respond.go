// Package api shapes Lambda proxy requests and responses for the domain
// services and maps domain error kinds onto HTTP statuses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/pkg/pagination"
)

// errorBody is the JSON envelope for error responses.
type errorBody struct {
	Error string `json:"error"`
}

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAllocation),
		errors.Is(err, domain.ErrInsufficientAllocation),
		errors.Is(err, pagination.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// JSON builds a proxy response with a JSON body.
func JSON(status int, body interface{}) (events.APIGatewayProxyResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"error":"failed to encode response"}`,
		}, nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(payload),
	}, nil
}

// Error builds a proxy response for a failed operation. Internal errors
// are not echoed to the client.
func Error(err error) (events.APIGatewayProxyResponse, error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	return JSON(status, errorBody{Error: message})
}

// Identity extracts the already-verified user id from the API Gateway
// authorizer context. Token verification happens upstream; by the time a
// request reaches a handler only the subject claim matters.
func Identity(request events.APIGatewayProxyRequest) (string, error) {
	authorizer := request.RequestContext.Authorizer

	if claims, ok := authorizer["claims"].(map[string]interface{}); ok {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	if sub, ok := authorizer["principalId"].(string); ok && sub != "" {
		return sub, nil
	}

	return "", fmt.Errorf("%w: no authenticated user on request", domain.ErrInvalidInput)
}

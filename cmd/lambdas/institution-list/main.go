package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/api"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/internal/institutions"
	"github.com/goalvault/backend/pkg/storage/dynamo"
)

// defaultPageSize caps a listing page when the client does not ask for a
// specific limit.
const defaultPageSize = 20

// Response is the body of an institution listing call. NextToken is
// omitted on the final page.
type Response struct {
	Institutions []*domain.Institution `json:"institutions"`
	NextToken    string                `json:"nextToken,omitempty"`
}

var (
	log     zerolog.Logger
	service *institutions.Service
)

func init() {
	log = zerolog.New(os.Stdout).With().Timestamp().Str("handler", "institution-list").Logger()

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")

	institutionsTable := os.Getenv("INSTITUTIONS_TABLE")
	if institutionsTable == "" {
		institutionsTable = "Institutions"
	}

	store, err := dynamo.New(dynamo.Config{
		Region:       region,
		TableName:    institutionsTable,
		PartitionKey: "userId",
		SortKey:      "institutionId",
		Endpoint:     endpoint,
	})
	if err != nil {
		fmt.Printf("Error creating institutions store: %v\n", err)
		os.Exit(1)
	}

	service = institutions.NewService(store, nil, log)
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.Identity(request)
	if err != nil {
		return api.Error(err)
	}

	limit := int32(defaultPageSize)
	if raw := request.QueryStringParameters["limit"]; raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			return api.Error(fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
		}
		limit = int32(parsed)
	}

	page, next, err := service.List(ctx, userID, limit, request.QueryStringParameters["nextToken"])
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("institution listing failed")
		return api.Error(err)
	}

	return api.JSON(http.StatusOK, Response{
		Institutions: page,
		NextToken:    next,
	})
}

func main() {
	lambda.Start(handleRequest)
}

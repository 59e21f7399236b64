package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/allocation"
	"github.com/goalvault/backend/internal/api"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/internal/goals"
	"github.com/goalvault/backend/pkg/storage/dynamo"
)

// Request is the body of a goal creation call.
type Request struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Allocations map[string]int `json:"allocations"`
}

var (
	log     zerolog.Logger
	service *goals.Service
)

func init() {
	log = zerolog.New(os.Stdout).With().Timestamp().Str("handler", "goal-create").Logger()

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")

	goalsTable := os.Getenv("GOALS_TABLE")
	if goalsTable == "" {
		goalsTable = "Goals"
	}
	institutionsTable := os.Getenv("INSTITUTIONS_TABLE")
	if institutionsTable == "" {
		institutionsTable = "Institutions"
	}

	goalStore, err := dynamo.New(dynamo.Config{
		Region:       region,
		TableName:    goalsTable,
		PartitionKey: "userId",
		SortKey:      "goalId",
		Endpoint:     endpoint,
	})
	if err != nil {
		fmt.Printf("Error creating goals store: %v\n", err)
		os.Exit(1)
	}

	institutionStore, err := dynamo.New(dynamo.Config{
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

	engine := allocation.NewEngine(institutionStore)
	service = goals.NewService(goalStore, institutionStore, engine, log)
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.Identity(request)
	if err != nil {
		return api.Error(err)
	}

	var body Request
	if err := json.Unmarshal([]byte(request.Body), &body); err != nil {
		return api.Error(fmt.Errorf("%w: malformed request body", domain.ErrInvalidInput))
	}

	goal, err := service.Create(ctx, userID, body.Name, body.Description, body.Allocations)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("goal creation failed")
		return api.Error(err)
	}

	return api.JSON(http.StatusCreated, goal)
}

func main() {
	lambda.Start(handleRequest)
}

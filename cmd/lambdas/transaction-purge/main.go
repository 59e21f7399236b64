package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/api"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/internal/institutions"
	"github.com/goalvault/backend/internal/ledger"
	"github.com/goalvault/backend/pkg/storage/dynamo"
)

// Response is the body of a transaction purge call.
type Response struct {
	InstitutionID string `json:"institutionId"`
	Purged        bool   `json:"purged"`
}

var (
	log            zerolog.Logger
	institutionSvc *institutions.Service
	transactions   *ledger.Ledger
)

func init() {
	log = zerolog.New(os.Stdout).With().Timestamp().Str("handler", "transaction-purge").Logger()

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")

	institutionsTable := os.Getenv("INSTITUTIONS_TABLE")
	if institutionsTable == "" {
		institutionsTable = "Institutions"
	}
	transactionsTable := os.Getenv("TRANSACTIONS_TABLE")
	if transactionsTable == "" {
		transactionsTable = "Transactions"
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

	transactionStore, err := dynamo.New(dynamo.Config{
		Region:       region,
		TableName:    transactionsTable,
		PartitionKey: "institutionId",
		SortKey:      "createdAt",
		Endpoint:     endpoint,
	})
	if err != nil {
		fmt.Printf("Error creating transactions store: %v\n", err)
		os.Exit(1)
	}

	transactions = ledger.New(transactionStore, log)
	institutionSvc = institutions.NewService(institutionStore, transactions, log)
}

func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := api.Identity(request)
	if err != nil {
		return api.Error(err)
	}

	institutionID := request.PathParameters["institutionId"]
	if institutionID == "" {
		return api.Error(fmt.Errorf("%w: missing path parameter institutionId", domain.ErrInvalidInput))
	}

	// The transactions table is keyed by institution alone, so ownership
	// has to be established against the institutions table first.
	if _, err := institutionSvc.Get(ctx, userID, institutionID); err != nil {
		return api.Error(err)
	}

	if err := transactions.DeleteAllForInstitution(ctx, institutionID); err != nil {
		log.Error().Err(err).Str("institutionId", institutionID).Msg("transaction purge failed")
		return api.Error(err)
	}

	return api.JSON(http.StatusOK, Response{
		InstitutionID: institutionID,
		Purged:        true,
	})
}

func main() {
	lambda.Start(handleRequest)
}

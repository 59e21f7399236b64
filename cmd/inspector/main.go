// Command inspector prints a user's institutions and goals as tables.
// It is an operator tool for eyeballing allocation state, including the
// partially-committed states the goal service logs for reconciliation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/goalvault/backend/internal/allocation"
	"github.com/goalvault/backend/internal/domain"
	"github.com/goalvault/backend/internal/goals"
	"github.com/goalvault/backend/internal/institutions"
	"github.com/goalvault/backend/pkg/storage"
	"github.com/goalvault/backend/pkg/storage/dynamo"
	"github.com/goalvault/backend/pkg/storage/memory"
)

func main() {
	userID := flag.String("user", "", "User id to inspect (required)")
	backend := flag.String("store", "dynamodb", "Store backend: dynamodb or memory")
	region := flag.String("region", "us-east-1", "AWS region")
	endpoint := flag.String("endpoint", "", "DynamoDB endpoint override (e.g. local)")
	institutionsTable := flag.String("institutions-table", "Institutions", "Institutions table name")
	goalsTable := flag.String("goals-table", "Goals", "Goals table name")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	factory := storage.NewFactory()
	factory.Register("dynamodb", dynamo.Builder)
	factory.Register("memory", memory.Builder)

	institutionStore, err := factory.CreateStore(*backend, map[string]interface{}{
		"region":       *region,
		"endpoint":     *endpoint,
		"tableName":    *institutionsTable,
		"partitionKey": "userId",
		"sortKey":      "institutionId",
	})
	if err != nil {
		fmt.Printf("Error creating institutions store: %v\n", err)
		os.Exit(1)
	}

	goalStore, err := factory.CreateStore(*backend, map[string]interface{}{
		"region":       *region,
		"endpoint":     *endpoint,
		"tableName":    *goalsTable,
		"partitionKey": "userId",
		"sortKey":      "goalId",
	})
	if err != nil {
		fmt.Printf("Error creating goals store: %v\n", err)
		os.Exit(1)
	}

	institutionSvc := institutions.NewService(institutionStore, nil, log)
	goalSvc := goals.NewService(goalStore, institutionStore, allocation.NewEngine(institutionStore), log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := printInstitutions(ctx, institutionSvc, *userID); err != nil {
		fmt.Printf("Error listing institutions: %v\n", err)
		os.Exit(1)
	}
	if err := printGoals(ctx, goalSvc, *userID); err != nil {
		fmt.Printf("Error listing goals: %v\n", err)
		os.Exit(1)
	}
}

func printInstitutions(ctx context.Context, svc *institutions.Service, userID string) error {
	var all []*domain.Institution
	token := ""
	for {
		page, next, err := svc.List(ctx, userID, 100, token)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		token = next
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Institution", "Name", "Balance", "Allocated %", "Linked Goals"})
	for _, institution := range all {
		table.Append([]string{
			institution.InstitutionID,
			institution.Name,
			fmt.Sprintf("%.2f", institution.StartingBalance),
			fmt.Sprintf("%d", institution.AllocatedPercent),
			strings.Join(institution.LinkedGoals, ", "),
		})
	}

	fmt.Printf("Institutions for user %s (%d):\n", userID, len(all))
	table.Render()
	return nil
}

func printGoals(ctx context.Context, svc *goals.Service, userID string) error {
	var all []*domain.Goal
	token := ""
	for {
		page, next, err := svc.List(ctx, userID, 100, token)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		token = next
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Goal", "Name", "Allocations", "Created"})
	for _, goal := range all {
		allocations := make([]string, 0, len(goal.LinkedInstitutions))
		for institutionID, percent := range goal.LinkedInstitutions {
			allocations = append(allocations, fmt.Sprintf("%s=%d%%", institutionID, percent))
		}
		table.Append([]string{
			goal.GoalID,
			goal.Name,
			strings.Join(allocations, ", "),
			time.Unix(goal.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
	}

	fmt.Printf("\nGoals for user %s (%d):\n", userID, len(all))
	table.Render()
	return nil
}

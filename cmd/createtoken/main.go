package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
	"github.com/SaddoSenpai/LMArenaBridge/internal/storage/jsonfile"
)

// Mints a token directly against the store file, for bootstrapping without a
// running server. Do not run this while the server owns the same file.
func main() {
	storePath := flag.String("store", "./dashboard_data.json", "Path to the store file")
	name := flag.String("name", "", "Display name for the token holder")
	email := flag.String("email", "", "Email for the token holder")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := jsonfile.New(*storePath, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	tokens := service.NewTokenService(store, logger)

	created, id, err := tokens.Create(context.Background(), token.UserInfo{Name: *name, Email: *email})
	if err != nil {
		log.Fatalf("Failed to create token: %v", err)
	}

	fmt.Printf("Generated token (SAVE THIS securely!):\n%s\n\n", created.Secret)
	fmt.Printf("Token ID: %s\n", id)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/models"
	"saas-agency-platform/utils"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  indexes       - Create MongoDB indexes for all collections")
		fmt.Println("  vector-index  - Print the Atlas vector search index definition")
		fmt.Println("  seed-admin    - Create the initial agency admin user")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch command {
	case "indexes":
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer client.Disconnect(nil)

		if err := config.CreateIndexes(client, cfg.DBName); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		fmt.Println("Indexes created successfully!")

	case "vector-index":
		// Atlas search indexes cannot be created through the driver; paste
		// this definition into the Atlas UI or the Atlas CLI.
		fmt.Printf(`Create this vector search index on %s.brand_chunks (name: %s):

{
  "fields": [
    {
      "type": "vector",
      "path": "vector",
      "numDimensions": %d,
      "similarity": "cosine"
    },
    {
      "type": "filter",
      "path": "brand_id"
    }
  ]
}
`, cfg.DBName, cfg.VectorIndexName, cfg.VectorDimensions)

	case "seed-admin":
		email := os.Getenv("ADMIN_EMAIL")
		password := os.Getenv("ADMIN_PASSWORD")
		if email == "" || password == "" {
			log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
		}

		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		ctx := context.Background()
		defer client.Disconnect(ctx)

		users := client.Database(cfg.DBName).Collection("users")
		var existing models.User
		if err := users.FindOne(ctx, bson.M{"email": email}).Decode(&existing); err == nil {
			fmt.Printf("Admin user %s already exists\n", email)
			return
		}

		hash, err := utils.HashPassword(password, cfg.BcryptCost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		_, err = users.InsertOne(ctx, models.User{
			Email:        email,
			PasswordHash: hash,
			Role:         "admin",
			CreatedAt:    time.Now(),
		})
		if err != nil {
			log.Fatalf("Failed to create admin user: %v", err)
		}
		fmt.Printf("Admin user %s created\n", email)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/database"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

func main() {
	// Load .env file
	_ = godotenv.Load("../.env")

	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize database
	dbConfig := &database.Config{
		DSN:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.Connect(dbConfig, zap.NewNop())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Create a pricing override for the cheapest tier
	override := &models.ModelPricing{
		ModelID:              "qwen-turbo",
		InputPer1K:           0.00004,
		OutputPer1K:          0.00012,
		FreeRequestsPerMonth: 2000,
		FreeTierResetDay:     1,
	}
	if err := db.Create(override).Error; err != nil {
		log.Println("Pricing override might already exist:", err)
	} else {
		fmt.Println("Created pricing override:", override.ModelID)
	}

	// Create a settled demo session
	breakdown, _ := json.Marshal(map[string]map[string]interface{}{
		"gpt-4o-mini":     {"requests": 14, "tokens": 21840, "cost": 0.0131},
		"claude-sonnet-4": {"requests": 2, "tokens": 9600, "cost": 0.1584},
	})
	completed := time.Now().Add(-45 * time.Minute)
	session := &models.UsageSession{
		SessionKey:         "demo-" + uuid.New().String()[:8],
		Status:             usage.StatusCompleted,
		StartedAt:          completed.Add(-20 * time.Minute),
		CompletedAt:        &completed,
		TotalRequests:      16,
		SuccessfulRequests: 16,
		TotalTokens:        31440,
		TotalCost:          0.1715,
		ModelBreakdown:     breakdown,
	}
	if err := db.Create(session).Error; err != nil {
		log.Println("Session might already exist:", err)
	} else {
		fmt.Println("Created demo session:", session.SessionKey)
	}

	// Create a warning alert
	alertCtx, _ := json.Marshal(map[string]interface{}{
		"period": time.Now().Format("2006-01"), "utilization": 0.82,
	})
	alert := &models.Alert{
		Kind:    models.AlertKindWarning,
		Message: "Monthly budget utilization crossed 80%",
		Context: alertCtx,
	}
	if err := db.Create(alert).Error; err != nil {
		log.Println("Alert might already exist:", err)
	} else {
		fmt.Println("Created alert:", alert.Kind)
	}

	fmt.Println("\nSeed data created successfully!")
	fmt.Println("You can now inspect budget and session state with orchctl")
}

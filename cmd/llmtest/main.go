// Command llmtest sends one triage prompt through the configured model
// stack and prints the reply. Smoke test for API keys and connectivity.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/avdeev-dm/triage-bot/internal/config"
	"github.com/avdeev-dm/triage-bot/internal/llm"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	symptoms := "Болит голова и температура 37.5 уже два дня"
	if len(os.Args) > 1 {
		symptoms = strings.Join(os.Args[1:], " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	primary, err := llm.NewDeepSeekClient(llm.DeepSeekConfig{
		BaseURL: cfg.DeepSeekAPIURL,
		APIKey:  cfg.DeepSeekAPIKey,
		Model:   cfg.DeepSeekModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		log.Fatalf("deepseek client: %v", err)
	}

	var client llm.Client = primary
	if cfg.GeminiAPIKey != "" {
		secondary, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			log.Fatalf("gemini client: %v", err)
		}
		client = llm.NewFallbackClient(primary, secondary, logger)
	}

	gateway := llm.NewGateway(client, llm.GatewayConfig{
		Timeout:     cfg.LLMTimeout,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}, logger)

	start := time.Now()
	reply, genuine := gateway.Complete(ctx, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: cfg.SystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Пациент: Тест\nСимптомы: %s", symptoms)},
	})
	elapsed := time.Since(start)

	fmt.Printf("genuine: %v\nlatency: %s\nreply:\n%s\n", genuine, elapsed.Round(time.Millisecond), reply)
	if !genuine {
		os.Exit(1)
	}
}

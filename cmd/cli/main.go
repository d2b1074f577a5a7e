package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/config"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

const usage = "expected 'export' or 'token' subcommands"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenAgent := tokenCmd.String("agent", "", "agent ID to embed (generated when empty)")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "token lifetime")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if cfg.DatabaseURL == "" {
			log.Fatal("DATABASE_URL is not set, nothing to export")
		}
		repo, err := sqlite.NewArchiveRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to db: %v", err)
		}
		defer repo.Close()
		doExport(repo)
	case "token":
		tokenCmd.Parse(os.Args[2:])
		if cfg.AgentJWTSecret == "" {
			log.Fatal("AGENT_JWT_SECRET is not set")
		}
		agentID := *tokenAgent
		if agentID == "" {
			agentID = ulid.Make().String()
		}
		doToken(handler.NewAgentTokens(cfg.AgentJWTSecret), agentID, *tokenTTL)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

type exportDocument struct {
	ExportedAt time.Time              `json:"exported_at"`
	Links      []ports.ArchivedLink   `json:"links"`
	Accesses   []ports.ArchivedAccess `json:"accesses"`
}

func doExport(archive ports.AccessArchive) {
	links, accesses, err := archive.Dump(context.Background())
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	doc := exportDocument{ExportedAt: time.Now().UTC(), Links: links, Accesses: accesses}
	if err := encoder.Encode(doc); err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
	log.Printf("Exported %d links and %d accesses", len(links), len(accesses))
}

func doToken(tokens *handler.AgentTokens, agentID string, ttl time.Duration) {
	token, expiresAt, err := tokens.Issue(agentID, ttl)
	if err != nil {
		log.Fatalf("Token failed: %v", err)
	}
	fmt.Println(token)
	log.Printf("Token for agent %s expires at %s", agentID, expiresAt.Format(time.RFC3339))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	addr := os.Getenv("CELERIX_STORE_ADDR")
	if addr == "" {
		addr = "localhost:7001"
	}

	client, err := sdk.Connect(addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	switch command {
	case "GET":
		if len(args) < 1 {
			log.Fatal("Usage: celerix-telemetry GET <documentPath>")
		}
		doc, err := client.Get(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(doc)

	case "LIST":
		if len(args) < 1 {
			log.Fatal("Usage: celerix-telemetry LIST <collectionPath>")
		}
		docs, err := client.List(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(docs)

	case "ADD":
		if len(args) < 2 {
			log.Fatal("Usage: celerix-telemetry ADD <collectionPath> <json>")
		}
		doc, err := schema.UnmarshalDocument([]byte(args[1]))
		if err != nil {
			log.Fatalf("Document must be a JSON object: %v", err)
		}
		id, err := client.Add(ctx, args[0], doc)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(id)

	case "MERGE":
		if len(args) < 2 {
			log.Fatal("Usage: celerix-telemetry MERGE <documentPath> <json>")
		}
		fields, err := schema.UnmarshalDocument([]byte(args[1]))
		if err != nil {
			log.Fatalf("Fields must be a JSON object: %v", err)
		}
		if err := client.Merge(ctx, args[0], fields); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "PING":
		if err := client.Ping(ctx); err != nil {
			log.Fatal(err)
		}
		fmt.Println("PONG")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Celerix Telemetry CLI - Interface for the telemetry document store")
	fmt.Println("\nUsage:")
	fmt.Println("  celerix-telemetry GET <documentPath>          e.g. users/u1/sensor-data/<id>")
	fmt.Println("  celerix-telemetry LIST <collectionPath>       e.g. users/u1/sensor-data")
	fmt.Println("  celerix-telemetry ADD <collectionPath> <json>")
	fmt.Println("  celerix-telemetry MERGE <documentPath> <json>")
	fmt.Println("  celerix-telemetry PING")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  CELERIX_STORE_ADDR    Address of the store (default: localhost:7001)")
	fmt.Println("  CELERIX_DISABLE_TLS   Set to true to disable TLS")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}

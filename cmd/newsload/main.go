package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"marketgateway/internal/httpx"
	"marketgateway/internal/news/store"
)

// newsload pushes a JSON file of pre-formed articles to a running
// gateway's bulk-load endpoint. Useful for seeding a fresh database.
func main() {
	var file string
	var server string
	var dryRun bool
	var timeout int

	flag.StringVar(&file, "file", "", "path to a JSON file with {\"articles\": [...]}")
	flag.StringVar(&server, "server", "http://localhost:8080", "gateway base URL")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report the batch without sending it")
	flag.IntVar(&timeout, "timeout", 30, "request timeout seconds")
	flag.Parse()

	if file == "" {
		log.Fatal("-file is required")
	}

	b, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("read %s: %v", file, err)
	}

	var batch struct {
		Articles []store.Article `json:"articles"`
	}
	if err := json.Unmarshal(b, &batch); err != nil {
		// Also accept a bare array.
		if err2 := json.Unmarshal(b, &batch.Articles); err2 != nil {
			log.Fatalf("parse %s: %v", file, err)
		}
	}
	if len(batch.Articles) == 0 {
		log.Fatal("no articles in input file")
	}

	withURL := 0
	for _, a := range batch.Articles {
		if a.URL != "" {
			withURL++
		}
	}
	log.Printf("parsed %d articles (%d with a url)", len(batch.Articles), withURL)

	if dryRun {
		sample := batch.Articles
		if len(sample) > 3 {
			sample = sample[:3]
		}
		out, _ := json.MarshalIndent(sample, "", "  ")
		fmt.Println(string(out))
		return
	}

	body, err := json.Marshal(batch)
	if err != nil {
		log.Fatalf("encode batch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client := httpx.New(time.Duration(timeout) * time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/news/bulk-load", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(ctx, req)
	if err != nil {
		log.Fatalf("bulk-load request: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("bulk-load failed: %d: %s", resp.StatusCode, string(respBody))
	}
	fmt.Println(string(respBody))
}

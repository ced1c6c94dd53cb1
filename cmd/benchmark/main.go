// Command benchmark calibrates the cache threshold against labelled tickets.
// Each ticket is matched against all the others (leave-one-out); for every
// threshold the report shows how often the cache would answer and how often
// that answer carries the right category.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"triage/config"
	"triage/internal/adapter/embedding"
	"triage/internal/domain"
)

type labelled struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

func main() {
	dir := flag.String("dir", ".", "Directory holding triage.yaml")
	dataset := flag.String("data", "", "JSON Lines file of {\"text\", \"category\"} objects")
	steps := flag.Int("steps", 10, "Number of thresholds between 0 and 1")
	flag.Parse()

	if *dataset == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -data tickets.jsonl [-dir .] [-steps 10]")
		fmt.Println("\nReports, per threshold:")
		fmt.Println("  hit rate   share of tickets the cache would answer")
		fmt.Println("  precision  share of cache answers with the correct category")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tickets, err := readDataset(*dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading dataset: %v\n", err)
		os.Exit(1)
	}
	if len(tickets) < 2 {
		fmt.Fprintln(os.Stderr, "Dataset needs at least two tickets")
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding.Provider, cfg.Embedding.Model,
		os.Getenv(cfg.Embedding.APIKeyEnv), cfg.Embedding.BaseURL, cfg.Embedding.Dimension)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	records := make([]domain.VectorRecord, len(tickets))
	for i, t := range tickets {
		vec, err := embedder.Embed(ctx, t.Text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embedding error on ticket %d: %v\n", i+1, err)
			os.Exit(1)
		}
		records[i] = domain.VectorRecord{Vector: vec, Text: t.Text, Category: t.Category, Seq: uint64(i + 1)}
	}

	// nearest other ticket for each ticket
	nearest := make([]domain.Neighbor, len(records))
	for i := range records {
		others := make([]domain.VectorRecord, 0, len(records)-1)
		others = append(others, records[:i]...)
		others = append(others, records[i+1:]...)
		nearest[i] = domain.Nearest(records[i].Vector, others, 1)[0]
	}

	fmt.Println("CACHE THRESHOLD CALIBRATION")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Tickets:   %d\n", len(tickets))
	fmt.Printf("Embedder:  %s (dimension %d)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Printf("Configured threshold: %.2f\n\n", cfg.Cache.Threshold)

	fmt.Printf("%-10s %-10s %-10s %s\n", "threshold", "hit rate", "precision", "wrong labels")
	fmt.Println(strings.Repeat("-", 60))
	for s := 1; s <= *steps; s++ {
		threshold := float64(s) / float64(*steps)
		hits, correct := 0, 0
		for i, n := range nearest {
			if n.Distance > threshold {
				continue
			}
			hits++
			if strings.EqualFold(n.Record.Category, records[i].Category) {
				correct++
			}
		}
		precision := 0.0
		if hits > 0 {
			precision = float64(correct) / float64(hits)
		}
		fmt.Printf("%-10.2f %-10s %-10s %d\n", threshold,
			percent(hits, len(records)), fmt.Sprintf("%.1f%%", precision*100), hits-correct)
	}
}

func percent(n, total int) string {
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func readDataset(path string) ([]labelled, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []labelled
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var t labelled
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if t.Text == "" || t.Category == "" {
			return nil, fmt.Errorf("line %d: text and category are required", line)
		}
		out = append(out, t)
	}
	return out, sc.Err()
}

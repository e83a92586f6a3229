package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"astra/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var server string
	var depth int
	flag.StringVar(&server, "server", "http://localhost:8000", "Base URL of the astra server")
	flag.IntVar(&depth, "depth", 1, "Crawl depth for the initial scrape")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: astra-chat [--server=http://localhost:8000] [--depth=1] <url>")
		os.Exit(1)
	}
	url := flag.Arg(0)

	client := tui.NewClient(server)
	fmt.Printf("Indexing %s ...\n", url)
	resp, err := client.Scrape(url, depth)
	if err != nil {
		log.Fatalf("scrape failed: %v", err)
	}
	if resp.CacheHit {
		fmt.Printf("Reusing indexed content (%d pages).\n", resp.PageCount)
	} else {
		fmt.Printf("Indexed %d page(s).\n", resp.PageCount)
	}

	m := tui.New(client, resp.ChatID, url, resp.Summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

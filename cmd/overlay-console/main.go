package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsoverlay/internal/dashboard"
	"newsoverlay/internal/util"
	"newsoverlay/pkg/overlay"
)

func main() {
	defaultServer := "http://localhost:8080"
	if v := os.Getenv("OVERLAY_SERVER"); v != "" {
		defaultServer = v
	}
	server := flag.String("server", defaultServer, "overlay-server base URL")
	symbol := flag.String("symbol", "", "ticker to show (default: first available)")
	date := flag.String("date", "", "also list the news for this day (YYYY-MM-DD)")
	refresh := flag.Bool("refresh", false, "force the server to reload before querying")
	width := flag.Int("width", 60, "headline column width")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, time.Minute)
	defer timeout()

	client := overlay.NewClient(*server)

	if *refresh {
		r, err := client.Refresh(ctx)
		if err != nil {
			log.Fatalf("refresh: %v", err)
		}
		fmt.Printf("reloaded %d rows, %d insights\n\n", r.Rows, r.Insights)
	}

	sym := *symbol
	if sym == "" {
		tickers, err := client.Tickers(ctx)
		if err != nil {
			log.Fatalf("listing tickers: %v", err)
		}
		if tickers.Default == "" {
			log.Fatal("server has no tickers")
		}
		sym = tickers.Default
	}

	chart, err := client.Chart(ctx, sym)
	if err != nil {
		log.Fatalf("chart: %v", err)
	}
	fmt.Print(dashboard.RenderChart(*chart))

	if *date != "" {
		d, err := util.ParseDate(*date)
		if err != nil {
			log.Fatalf("%v", err)
		}
		news, err := client.News(ctx, sym, d)
		if err != nil {
			log.Fatalf("news: %v", err)
		}
		fmt.Println()
		fmt.Print(dashboard.RenderNews(*news, *width))
	}
}

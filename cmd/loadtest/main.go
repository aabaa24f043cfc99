package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"limitguard/internal/loadtest"

	"github.com/alecthomas/kong"
)

type CLI struct {
	URL         string        `help:"Endpoint limitado." default:"http://localhost:8800/api/test" env:"LOADTEST_URL"`
	Requests    int           `short:"n" help:"Total de requisições." default:"200"`
	Connections int           `short:"c" help:"Requisições simultâneas." default:"100"`
	Duration    time.Duration `short:"d" help:"Tempo máximo do teste." default:"5s"`
	Expect      int64         `help:"Máximo de 2xx aceito." default:"15"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("loadtest"),
		kong.Description("Dispara requisições concorrentes e confere se o rate limit segura."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := loadtest.Run(ctx, loadtest.Options{
		URL:         cli.URL,
		Requests:    cli.Requests,
		Connections: cli.Connections,
		Duration:    cli.Duration,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(res)
	fmt.Printf("success (2xx): %d\n", res.Success)
	fmt.Printf("blocked (429): %d\n", res.Limited)
	if res.Passed(cli.Expect) {
		fmt.Println("PASSED: strict rate limit enforced")
		return
	}
	fmt.Println("FAILED: too many requests let through")
	os.Exit(1)
}

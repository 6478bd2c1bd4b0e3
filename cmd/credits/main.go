package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

// credits is an admin CLI for account balances.
//
// Usage:
//
//	credits balance --account 1
//	credits grant   --account 1 --amount 500 [--reason "Top-up"]
//	credits history --account 1 [--page 1] [--limit 20]
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	l := ledger.New(ledger.NewPostgresStore(db), cfg.Credits.DefaultBalance)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "balance":
		cmdBalance(ctx, l, args[1:])
	case "grant":
		cmdGrant(ctx, l, args[1:])
	case "history":
		cmdHistory(ctx, l, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func accountFlag(fs *flag.FlagSet) *int64 {
	return fs.Int64("account", 0, "account id")
}

func requireAccount(id int64) {
	if id <= 0 {
		fmt.Fprintln(os.Stderr, "error: --account is required")
		os.Exit(1)
	}
}

func cmdBalance(ctx context.Context, l *ledger.Ledger, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	account := accountFlag(fs)
	fs.Parse(args)
	requireAccount(*account)

	b, err := l.GetBalance(ctx, *account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read balance: %v\n", err)
		os.Exit(1)
	}
	printBalance(b)
}

func cmdGrant(ctx context.Context, l *ledger.Ledger, args []string) {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	account := accountFlag(fs)
	amount := fs.Int64("amount", 0, "credits to add")
	reason := fs.String("reason", "Admin grant", "transaction description")
	fs.Parse(args)
	requireAccount(*account)

	txn, err := l.Grant(ctx, *account, *amount, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to grant credits: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Granted %d credits (transaction %d).\n\n", txn.Amount, txn.ID)

	b, err := l.GetBalance(ctx, *account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read balance: %v\n", err)
		os.Exit(1)
	}
	printBalance(b)
}

func cmdHistory(ctx context.Context, l *ledger.Ledger, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	account := accountFlag(fs)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "rows per page")
	fs.Parse(args)
	requireAccount(*account)

	p, err := pagination.New(*page, *limit, 20, 100)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid paging: %v\n", err)
		os.Exit(1)
	}
	res, err := l.Transactions(ctx, *account, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list transactions: %v\n", err)
		os.Exit(1)
	}
	if len(res.Transactions) == 0 {
		fmt.Println("No transactions.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tAMOUNT\tDESCRIPTION\tCREATED")
	fmt.Fprintln(w, strings.Repeat("-", 8)+"\t"+strings.Repeat("-", 9)+"\t"+strings.Repeat("-", 6)+"\t"+strings.Repeat("-", 11)+"\t"+strings.Repeat("-", 7))
	for _, t := range res.Transactions {
		sign := "-"
		if t.Kind == ledger.KindGrant {
			sign = "+"
		}
		fmt.Fprintf(w, "%d\t%s\t%s%d\t%s\t%s\n", t.ID, t.Kind, sign, t.Amount, t.Description, t.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
	fmt.Printf("\npage %d of %d (%d total)\n", res.Pagination.Page, res.Pagination.TotalPages, res.Pagination.Total)
}

func printBalance(b ledger.Balance) {
	fmt.Printf("  Account:   %d\n", b.AccountID)
	fmt.Printf("  Total:     %d\n", b.Total)
	fmt.Printf("  Available: %d\n", b.Available)
	fmt.Printf("  Used:      %d\n", b.Used)
	fmt.Printf("  Updated:   %s\n", b.UpdatedAt.Format(time.RFC3339))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: credits [-config path] <command> [flags]

Commands:
  balance  --account ID
  grant    --account ID --amount N [--reason TEXT]
  history  --account ID [--page N] [--limit N]`)
}

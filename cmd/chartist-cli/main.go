package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"chartist/internal/config"
	"chartist/internal/domain"
	"chartist/internal/feed"
	"chartist/internal/store"
	"chartist/internal/util"
	"chartist/pkg/chartist"
)

const version = "0.1.0"

const defaultServerURL = "http://localhost:8080"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chartist-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run         Run a backtest (several symbols run as a batch)\n")
		fmt.Fprintf(os.Stderr, "  list        List stored backtests\n")
		fmt.Fprintf(os.Stderr, "  show        Show one stored backtest and its trades\n")
		fmt.Fprintf(os.Stderr, "  strategies  List strategies known to the server\n")
		fmt.Fprintf(os.Stderr, "  fetch       Download bars from Alpaca into the local archive\n")
		fmt.Fprintf(os.Stderr, "  symbols     List symbols in the local archive\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\nThe server URL is taken from -server or $CHARTIST_URL (default %s).\n", defaultServerURL)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("chartist-cli %s\n", version)
	case "run":
		err = runCmd(ctx, args)
	case "list":
		err = listCmd(ctx, args)
	case "show":
		err = showCmd(ctx, args)
	case "strategies":
		err = strategiesCmd(ctx, args)
	case "fetch":
		err = fetchCmd(ctx, args)
	case "symbols":
		err = symbolsCmd(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("CHARTIST_URL")
	if def == "" {
		def = defaultServerURL
	}
	return fs.String("server", def, "chartist-server base URL")
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	server := serverFlag(fs)
	start := fs.String("start", "", "start date, YYYY-MM-DD (required)")
	end := fs.String("end", "", "end date, YYYY-MM-DD (required)")
	timeframe := fs.String("timeframe", "", "bar timeframe, e.g. 1Day or 1Hour (server default if empty)")
	strat := fs.String("strategy", "", "strategy name (server default if empty)")
	balance := fs.String("balance", "", "initial balance (server default if empty)")
	risk := fs.String("risk", "", "risk per trade as a fraction, e.g. 0.01 (server default if empty)")
	asJSON := fs.Bool("json", false, "print the raw result as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chartist-cli run [options] SYMBOL [SYMBOL...]\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 || *start == "" || *end == "" {
		fs.Usage()
		os.Exit(2)
	}
	req := chartist.RunRequest{
		Symbol:    fs.Arg(0),
		Timeframe: *timeframe,
		StartDate: *start,
		EndDate:   *end,
		Strategy:  *strat,
	}
	var err error
	if req.InitialBalance, err = optionalDecimal(*balance); err != nil {
		return fmt.Errorf("-balance: %w", err)
	}
	if req.RiskPerTrade, err = optionalDecimal(*risk); err != nil {
		return fmt.Errorf("-risk: %w", err)
	}

	client := chartist.NewClient(*server)
	if fs.NArg() > 1 {
		resp, err := client.RunBatch(ctx, chartist.BatchRunRequest{Symbols: fs.Args(), RunRequest: req})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(resp)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tID\tTRADES\tWIN%\tRETURN%\tMAX DD%\tERROR")
		for _, it := range resp.Items {
			if it.Result == nil {
				fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", it.Symbol, it.Error)
				continue
			}
			s := it.Result.Stats
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.2f\t%.2f\t%s\n", it.Symbol, it.Result.ID,
				s.TotalTrades, s.WinRate, s.TotalReturnPercentage, s.MaxDrawdownPercentage, it.Error)
		}
		tw.Flush()
		fmt.Printf("\n%d succeeded, %d failed\n", resp.Succeeded, resp.Failed)
		return nil
	}

	resp, err := client.RunBacktest(ctx, req)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(resp)
	}
	printSummary(resp.Result)
	if resp.Warning != "" {
		fmt.Printf("\nwarning: %s\n", resp.Warning)
	}
	return nil
}

func listCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := serverFlag(fs)
	symbol := fs.String("symbol", "", "only list backtests of this symbol")
	limit := fs.Int("limit", 20, "maximum number of backtests")
	fs.Parse(args)

	list, err := chartist.NewClient(*server).ListBacktests(ctx, strings.ToUpper(*symbol), *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tSTRATEGY\tTIMEFRAME\tPERIOD\tTRADES\tRETURN%\tCREATED")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s..%s\t%d\t%.2f\t%s\n",
			r.ID, r.Symbol, r.Strategy, r.Timeframe,
			r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly),
			r.Stats.TotalTrades, r.Stats.TotalReturnPercentage,
			r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func showCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	server := serverFlag(fs)
	asJSON := fs.Bool("json", false, "print result, trades, equity curve and analysis as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chartist-cli show [options] ID\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	id := fs.Arg(0)
	client := chartist.NewClient(*server)

	res, err := client.GetBacktest(ctx, id)
	if err != nil {
		return err
	}
	if res.Trades, err = client.ListTrades(ctx, id); err != nil {
		return err
	}
	if *asJSON {
		if res.EquityCurve, err = client.ListEquityCurve(ctx, id); err != nil {
			return err
		}
		if res.AnalysisHistory, err = client.ListAnalysis(ctx, id); err != nil {
			return err
		}
		return printJSON(res)
	}

	printSummary(res)
	if len(res.Trades) == 0 {
		return nil
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIDE\tSIZE\tENTRY\tENTRY TIME\tEXIT\tEXIT TIME\tREASON\tPNL\tPNL%")
	for _, p := range res.Trades {
		if p.Exit == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Side, p.Size, p.EntryPrice, p.EntryTime.Format(time.DateTime),
			p.Exit.Price, p.Exit.Time.Format(time.DateTime), p.Exit.Reason,
			p.Exit.PnL.StringFixed(2), p.Exit.PnLPercentage)
	}
	return tw.Flush()
}

func strategiesCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	resp, err := chartist.NewClient(*server).ListStrategies(ctx)
	if err != nil {
		return err
	}
	for _, name := range resp.Strategies {
		marker := " "
		if name == resp.Default {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	return nil
}

// fetchCmd talks to Alpaca directly and archives bars without a server.
func fetchCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file (default $"+config.EnvConfigPath+")")
	start := fs.String("start", "", "start date, YYYY-MM-DD (required)")
	end := fs.String("end", "", "end date, YYYY-MM-DD (default today)")
	timeframe := fs.String("timeframe", "1Day", "bar timeframe")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chartist-cli fetch [options] SYMBOL [SYMBOL...]\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() == 0 || *start == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	from, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	to := time.Now().UTC()
	if *end != "" {
		if to, err = time.Parse(time.DateOnly, *end); err != nil {
			return fmt.Errorf("-end: %w", err)
		}
		to = to.Add(24*time.Hour - time.Nanosecond)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	provider := feed.NewAlpacaProvider(cfg.Alpaca, pstore)
	for _, sym := range fs.Args() {
		bars, err := provider.FetchBars(ctx, sym, *timeframe, from, to)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %5d bars archived under %s\n", strings.ToUpper(sym), len(bars), cfg.Storage.DataDir)
	}
	return nil
}

func symbolsCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("symbols", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file (default $"+config.EnvConfigPath+")")
	timeframe := fs.String("timeframe", "1Day", "bar timeframe")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	tf, err := feed.CanonicalTimeframe(*timeframe)
	if err != nil {
		return err
	}
	symbols, err := store.NewParquetStore(cfg.Storage.DataDir).ListSymbols(ctx, tf)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func printSummary(r *domain.BacktestResult) {
	s := r.Stats
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", r.ID)
	fmt.Fprintf(tw, "Symbol\t%s (%s, %s)\n", r.Symbol, r.Timeframe, r.Strategy)
	fmt.Fprintf(tw, "Period\t%s .. %s\n", r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly))
	fmt.Fprintf(tw, "Balance\t%s -> %s\n", r.InitialBalance.StringFixed(2), r.FinalBalance.StringFixed(2))
	fmt.Fprintf(tw, "Return\t%s (%.2f%%)\n", s.TotalReturn.StringFixed(2), s.TotalReturnPercentage)
	fmt.Fprintf(tw, "Trades\t%d (%d won, %d lost, win rate %.1f%%)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate)
	fmt.Fprintf(tw, "Avg win / loss\t%s / %s\n", s.AverageWin.StringFixed(2), s.AverageLoss.StringFixed(2))
	fmt.Fprintf(tw, "Profit factor\t%s\n", s.ProfitFactor)
	fmt.Fprintf(tw, "Max drawdown\t%s (%.2f%%)\n", s.MaxDrawdown.StringFixed(2), s.MaxDrawdownPercentage)
	tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront"
	"github.com/vitwit/storefront/checkout"
	"github.com/vitwit/storefront/config"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one checkout and returns the process exit code. Everything it
// opens is closed before it returns, including in-process reconciliations
// started by the attempt.
func run(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer, opts ...storefront.Option) int {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		code    = fs.String("code", "", "Share code of the product to buy")
		payTo   = fs.String("pay-to", "", "Seller wallet for an ad-hoc product (memory database only)")
		amount  = fs.String("amount", "", "Price of the ad-hoc product in the native currency")
		yes     = fs.Bool("yes", false, "Approve the transfer without prompting")
		verbose = fs.Bool("v", false, "Log at debug level to stderr")
		form    checkout.Form
	)
	fs.StringVar(&form.CustomerName, "name", "", "Customer name")
	fs.StringVar(&form.CustomerEmail, "email", "", "Customer email")
	fs.StringVar(&form.CustomerPhone, "phone", "", "Customer phone")
	fs.StringVar(&form.Street, "street", "", "Shipping street")
	fs.StringVar(&form.City, "city", "", "Shipping city")
	fs.StringVar(&form.State, "state", "", "Shipping state")
	fs.StringVar(&form.ZipCode, "zip", "", "Shipping zip code")
	fs.StringVar(&form.Country, "country", "", "Shipping country")
	fs.StringVar(&form.Notes, "notes", "", "Order notes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var log logger.Logger = logger.NoopLogger{}
	if *verbose {
		zl, err := logger.NewZapLogger("debug", "console")
		if err != nil {
			fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
			return 1
		}
		defer func() { _ = zl.Sync() }()
		log = zl
	}

	base := []storefront.Option{
		storefront.WithLogger(log),
		storefront.WithStateListener(func(t checkout.Transition) {
			if msg := t.To.Message(); msg != "" {
				fmt.Fprintln(stderr, msg)
			}
		}),
	}
	if !*yes {
		base = append(base, storefront.WithApproval(promptApproval(cfg.Chain, stdin, stderr)))
	}

	sf, err := storefront.New(ctx, cfg, append(base, opts...)...)
	if err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return 1
	}
	defer sf.Close()

	if *code == "" {
		*code, err = adHocProduct(ctx, sf, cfg, *payTo, *amount)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			fs.Usage()
			return 2
		}
	}

	sess, err := sf.Checkout(ctx, *code)
	if err != nil {
		fmt.Fprintf(stderr, "checkout: %v\n", err)
		return 1
	}

	out, err := sess.Submit(ctx, form)
	if err != nil && out == nil {
		fmt.Fprintf(stderr, "checkout: %v\n", err)
		return 1
	}

	report(stdout, stderr, cfg.Chain, out)
	if out.State != checkout.StateSuccess {
		return 1
	}
	return 0
}

// report prints the outcome as JSON and, for a failure or warning that
// carries a transaction, where to look it up.
func report(stdout, stderr io.Writer, chain types.ChainSpec, out *checkout.Outcome) {
	if body, err := utils.NormalizeJSON(out); err == nil {
		fmt.Fprintln(stdout, string(body))
	}

	for _, pe := range []*types.PaymentError{out.Err, out.Warning} {
		if pe == nil {
			continue
		}
		label := "error"
		if pe == out.Warning {
			label = "warning"
		}
		fmt.Fprintf(stderr, "%s: %s\n", label, pe.Error())
		if link := chain.ExplorerTxURL(pe.TxHash); link != "" {
			fmt.Fprintf(stderr, "transaction: %s\n", link)
		}
	}
}

// adHocProduct lists a throwaway product in an in-memory store so a payment
// can be tried without a catalog.
func adHocProduct(ctx context.Context, sf *storefront.Storefront, cfg config.Config, payTo, amount string) (string, error) {
	if payTo == "" || amount == "" {
		return "", fmt.Errorf("either -code or both -pay-to and -amount are required")
	}
	if cfg.Database.Driver != "memory" {
		return "", fmt.Errorf("ad-hoc products need the memory database")
	}
	price, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid -amount: %w", err)
	}
	p := &types.Product{
		SellerID:      "cli",
		Name:          "Ad-hoc payment",
		Price:         price,
		WalletAddress: payTo,
	}
	if err := sf.Store().CreateProduct(ctx, p); err != nil {
		return "", err
	}
	return p.UniqueCode, nil
}

func promptApproval(chain types.ChainSpec, in io.Reader, prompt io.Writer) func(context.Context, types.TransferRequest) bool {
	reader := bufio.NewReader(in)
	return func(_ context.Context, req types.TransferRequest) bool {
		amount := utils.FromBaseUnits(req.Value, chain.NativeCurrency.Decimals)
		fmt.Fprintf(prompt, "Send %s %s from %s to %s on %s? [y/N] ",
			amount.String(), chain.NativeCurrency.Symbol, req.From.Hex(), req.To.Hex(), chain.Name)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// Command cartctl drives the storefront cart from a terminal: it keeps the
// cart in local storage and mirrors it to the cart API once signed in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/bloomhouse/cartsync/config"
	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/internal/gateway"
	"github.com/bloomhouse/cartsync/internal/localstore"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

const usage = `Usage: cartctl [-token TOKEN] <command> [flags] [args]

Commands:
  list                                   show the cart
  add [-qty N] [-variant V] [-date D] [-time T] [-card MSG] [-sender S] [-customization C] <productId>
  remove [-variant V] [-customization C] <productId>
  qty [-variant V] <productId> <quantity>
  inc [-variant V] <productId>
  dec [-variant V] <productId>
  clear                                  empty the cart
  login [-remember] -token TOKEN         store a credential and sync
  logout                                 forget the credential
  sync                                   merge the local and remote carts now
  locale [-set en|ar]                    show or change the display locale
  instructions [TEXT]                    show or change delivery instructions
  watch                                  follow cart changes made elsewhere
`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Initialize(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
		EnableColor: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cartctl:", err)
		stop()
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, cfg *config.ClientConfig, args []string, out io.Writer) error {
	global := flag.NewFlagSet("cartctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	sessionToken := global.String("token", "", "bearer token for this invocation only")
	if err := global.Parse(args); err != nil || global.NArg() == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}

	a, err := newApp(ctx, cfg, *sessionToken, out)
	if err != nil {
		return err
	}
	defer a.close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "list":
		return a.list(ctx)
	case "add":
		return a.add(ctx, rest)
	case "remove":
		return a.remove(ctx, rest)
	case "qty":
		return a.setQuantity(ctx, rest)
	case "inc", "dec":
		return a.step(ctx, cmd, rest)
	case "clear":
		a.rec.Clear(ctx)
		return a.list(ctx)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		a.creds.Clear(ctx)
		a.bus.Publish(events.AuthChanged{Type: events.AuthLogout})
		fmt.Fprintln(a.out, "Signed out; the cart stays on this device.")
		return nil
	case "sync":
		return a.sync(ctx)
	case "locale":
		return a.locale(ctx, rest)
	case "instructions":
		return a.instructions(ctx, rest)
	case "watch":
		return a.watch(ctx)
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) list(ctx context.Context) error {
	snapshot := a.rec.Snapshot()
	if len(snapshot) == 0 {
		fmt.Fprintln(a.out, "Cart is empty.")
		return nil
	}

	arabic := a.prefs.Locale(ctx) == localstore.LocaleArabic
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tVARIANT\tQTY\tPRICE\tSYNCED")
	for _, item := range snapshot {
		name := item.NameEn
		if arabic && item.NameAr != "" {
			name = item.NameAr
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%t\n",
			item.ProductID, name, item.SelectedVariant, item.Quantity, item.Price, item.Synced())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\nItems: %d  Total: %.2f", a.rec.CartCount(), a.rec.CartTotal())
	if savings := a.rec.TotalSavings(); savings > 0 {
		fmt.Fprintf(a.out, "  You save: %.2f", savings)
	}
	fmt.Fprintln(a.out)
	if text := a.prefs.DeliveryInstructions(ctx); text != "" {
		fmt.Fprintf(a.out, "Delivery instructions: %s\n", text)
	}
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	qty := fs.Int("qty", 1, "quantity")
	var opts cart.Options
	fs.StringVar(&opts.SelectedVariant, "variant", "", "variant name")
	fs.StringVar(&opts.DeliveryDate, "date", "", "delivery date")
	fs.StringVar(&opts.DeliveryTime, "time", "", "delivery time slot")
	fs.StringVar(&opts.CardMessage, "card", "", "card message")
	fs.StringVar(&opts.SenderInfo, "sender", "", "sender shown on the card")
	fs.StringVar(&opts.Customization, "customization", "", "customization")
	productID, err := parseProductArg(fs, args, 1)
	if err != nil {
		return err
	}

	raw, err := a.client.FetchProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to load product %s: %w", productID, err)
	}
	a.rec.AddLine(ctx, cart.NormalizeProduct(raw), *qty, opts)
	return a.list(ctx)
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := newFlagSet("remove")
	variant := fs.String("variant", "", "variant name")
	customization := fs.String("customization", "", "customization")
	productID, err := parseProductArg(fs, args, 1)
	if err != nil {
		return err
	}
	a.rec.RemoveLine(ctx, productID, *variant, *customization)
	return a.list(ctx)
}

func (a *app) setQuantity(ctx context.Context, args []string) error {
	fs := newFlagSet("qty")
	variant := fs.String("variant", "", "variant name")
	productID, err := parseProductArg(fs, args, 2)
	if err != nil {
		return err
	}
	quantity, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("%w: quantity must be a number", errUsage)
	}
	a.rec.SetQuantity(ctx, productID, *variant, quantity)
	return a.list(ctx)
}

func (a *app) step(ctx context.Context, cmd string, args []string) error {
	fs := newFlagSet(cmd)
	variant := fs.String("variant", "", "variant name")
	productID, err := parseProductArg(fs, args, 1)
	if err != nil {
		return err
	}
	if cmd == "inc" {
		a.rec.Increment(ctx, productID, *variant)
	} else {
		a.rec.Decrement(ctx, productID, *variant)
	}
	return a.list(ctx)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	token := fs.String("token", "", "bearer token")
	remember := fs.Bool("remember", false, "keep the credential after this invocation")
	if err := fs.Parse(args); err != nil || *token == "" {
		return fmt.Errorf("%w: login needs -token", errUsage)
	}

	if err := a.creds.Set(ctx, *token, *remember); err != nil {
		return err
	}
	a.bus.Publish(events.AuthChanged{Type: events.AuthLogin})
	if err := a.rec.Drain(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", a.creds.UserID(ctx))
	return a.list(ctx)
}

func (a *app) sync(ctx context.Context) error {
	// A sync started on launch would swallow the forced one.
	if err := a.rec.Drain(ctx); err != nil {
		return err
	}
	if err := a.rec.ForceSync(ctx); err != nil {
		if errors.Is(err, gateway.ErrNotAuthenticated) {
			return fmt.Errorf("not signed in; run cartctl login first")
		}
		return err
	}
	return a.list(ctx)
}

func (a *app) locale(ctx context.Context, args []string) error {
	fs := newFlagSet("locale")
	set := fs.String("set", "", "en or ar")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *set != "" {
		if err := a.prefs.SetLocale(ctx, *set); err != nil {
			return err
		}
	}
	fmt.Fprintln(a.out, a.prefs.Locale(ctx))
	return nil
}

func (a *app) instructions(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, a.prefs.DeliveryInstructions(ctx))
		return nil
	}
	fmt.Fprintln(a.out, a.prefs.SetDeliveryInstructions(ctx, args[0]))
	return nil
}

func (a *app) watch(ctx context.Context) error {
	if err := a.rec.Drain(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Watching the cart; press Ctrl+C to stop.")
	return a.client.WatchCart(ctx, func(rc *gateway.RemoteCart) {
		a.rec.Refresh(ctx, rc)
		fmt.Fprintf(a.out, "Cart updated: %d items, total %.2f\n", a.rec.CartCount(), a.rec.CartTotal())
	})
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseProductArg parses flags and returns the first of want positional
// arguments, the product id.
func parseProductArg(fs *flag.FlagSet, args []string, want int) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != want || fs.Arg(0) == "" {
		return "", fmt.Errorf("%w: %s needs %d argument(s)", errUsage, fs.Name(), want)
	}
	return fs.Arg(0), nil
}

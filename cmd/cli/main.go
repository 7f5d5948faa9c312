// Command skycart is a storefront CLI client: local session and cart state
// backed by a durable key-value bridge, REST calls against the shop backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/avolkov/skycart/internal/api"
	"github.com/avolkov/skycart/internal/cart"
	"github.com/avolkov/skycart/internal/gate"
	"github.com/avolkov/skycart/internal/kvstore"
	"github.com/avolkov/skycart/internal/kvstore/postgres"
	"github.com/avolkov/skycart/internal/migrate"
	"github.com/avolkov/skycart/internal/session"
)

// ---- config dir / seal salt ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "skycart")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "skycart")
}

func sealSaltPath() string { return filepath.Join(cfgDir(), "seal_salt") }

// loadOrCreateSealSalt returns the per-installation seal salt, generating it
// on first use.
func loadOrCreateSealSalt() ([]byte, error) {
	b, err := os.ReadFile(sealSaltPath())
	if err == nil && len(b) == kvstore.SealSaltLen {
		return b, nil
	}
	salt, err := kvstore.Rand(kvstore.SealSaltLen)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(sealSaltPath(), salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// ---- output helpers ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// stderrNotifier is the CLI's user-facing message surface.
type stderrNotifier struct{}

func (stderrNotifier) Notify(msg string) { fmt.Fprintln(os.Stderr, "• "+msg) }

func usage() {
	fmt.Fprintf(os.Stderr, `skycart CLI
Usage:
  skycart [-addr URL] [-store DIR | -dsn DSN] [-seal] [-v] <cmd> [args]

Commands:
  version
  register  -name <name> -email <email> -p <password>
  login     -email <email> -p <password>
  logout
  whoami
  products
  add       -id <product> [-qty N]
  rm        -id <product>
  qty       -id <product> -n <N>
  cart
  clear
  checkout

The cart snapshot store is a directory by default; -dsn selects a PostgreSQL
bridge for shared terminals. With -seal, values are encrypted at rest using
the passphrase from SKYCART_SEAL_PASS.
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

type app struct {
	sessions *session.Store
	cart     *cart.Store
	api      *api.Client
	close    func()
}

// buildApp wires bridge → session store → cart store → hydrate, in that order,
// so the cart observes the initial identity transition.
func buildApp(ctx context.Context, addr, storeDir, dsn string, seal bool, log *zap.Logger) (*app, error) {
	var (
		kv      kvstore.Store
		cleanup = func() {}
	)
	if dsn != "" {
		if err := migrate.Up(ctx, dsn); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		kv = postgres.NewStore(db)
		cleanup = db.Close
	} else {
		fileKV, err := kvstore.NewFile(storeDir)
		if err != nil {
			return nil, err
		}
		kv = fileKV
	}

	if seal {
		pass := os.Getenv("SKYCART_SEAL_PASS")
		if pass == "" {
			cleanup()
			return nil, fmt.Errorf("-seal requires SKYCART_SEAL_PASS")
		}
		salt, err := loadOrCreateSealSalt()
		if err != nil {
			cleanup()
			return nil, err
		}
		kv, err = kvstore.NewSealed(kv, kvstore.DeriveSealKey([]byte(pass), salt))
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	sessions := session.New(kv, log)
	carts := cart.New(sessions, kv, stderrNotifier{}, log)
	sessions.Hydrate(ctx)

	cli := api.New(addr, log)
	if sess, _ := sessions.Current(); !sess.Anonymous() {
		cli.SetToken(sess.Token)
	}
	return &app{sessions: sessions, cart: carts, api: cli, close: cleanup}, nil
}

func main() {
	addr := flag.String("addr", "http://localhost:4000", "backend base URL")
	storeDir := flag.String("store", cfgDir(), "snapshot directory (file bridge)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (selects the Postgres bridge)")
	seal := flag.Bool("seal", false, "encrypt snapshots at rest (needs SKYCART_SEAL_PASS)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("skycart %s (%s)\n", version, buildDate)
		return
	}

	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := buildApp(ctx, *addr, *storeDir, *dsn, *seal, log)
	if err != nil {
		fail(err)
	}
	defer a.close()

	switch cmd {

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "full name")
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *email == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -email and -p")
			os.Exit(1)
		}
		user, token, err := a.api.Register(ctx, *name, *email, *p)
		if err != nil {
			fail(err)
		}
		a.sessions.Set(ctx, &user, token)
		fmt.Println(user.ID)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *email == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -email and -p")
			os.Exit(1)
		}
		user, token, err := a.api.Login(ctx, *email, *p)
		if err != nil {
			fail(err)
		}
		a.sessions.Set(ctx, &user, token)
		fmt.Println("ok")

	case "logout":
		a.sessions.Clear(ctx)
		fmt.Println("ok")

	case "whoami":
		sess, loading := a.sessions.Current()
		switch gate.Decide(loading, sess.User) {
		case gate.Allowed:
			printJSON(sess.User)
		case gate.Denied:
			fmt.Println("not logged in")
		default:
			fmt.Println("session still loading")
		}

	case "products":
		list, err := a.api.Products(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(list)

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		qty := fs.Int("qty", 1, "quantity")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		p, err := a.api.Product(ctx, *id)
		if err != nil {
			fail(err)
		}
		if err := a.cart.Add(ctx, p, *qty); err != nil {
			fail(err)
		}

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		if err := a.cart.Remove(ctx, *id); err != nil {
			fail(err)
		}

	case "qty":
		fs := flag.NewFlagSet("qty", flag.ExitOnError)
		id := fs.String("id", "", "product id")
		n := fs.Int("n", -1, "new quantity (0 removes)")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" || *n < 0 {
			fmt.Fprintln(os.Stderr, "need -id and -n")
			os.Exit(1)
		}
		if err := a.cart.UpdateQuantity(ctx, *id, *n); err != nil {
			fail(err)
		}

	case "cart":
		type row struct {
			Product  string `json:"product"`
			Qty      int    `json:"qty"`
			Price    string `json:"price"`
			Subtotal string `json:"subtotal"`
		}
		rows := []row{}
		for _, it := range a.cart.Items() {
			rows = append(rows, row{
				Product:  it.ProductID,
				Qty:      it.Quantity,
				Price:    it.Price.StringFixed(2),
				Subtotal: it.Subtotal().StringFixed(2),
			})
		}
		printJSON(rows)
		fmt.Printf("items=%d total=%s\n", a.cart.Count(), a.cart.Total().StringFixed(2))

	case "clear":
		if err := a.cart.Clear(ctx); err != nil {
			fail(err)
		}

	case "checkout":
		sess, loading := a.sessions.Current()
		if gate.Decide(loading, sess.User) != gate.Allowed {
			fail(fmt.Errorf("login required for checkout"))
		}
		items := a.cart.Items()
		order, err := a.api.Checkout(ctx, items)
		if err != nil {
			fail(err)
		}
		if err := a.cart.Clear(ctx); err != nil {
			fail(err)
		}
		printJSON(order)
		if order.PaymentURL != "" {
			fmt.Fprintln(os.Stderr, "complete payment at: "+order.PaymentURL)
		}

	default:
		usage()
	}
}

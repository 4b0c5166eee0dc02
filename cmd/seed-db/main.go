// Command seed-db migrates the database and loads the dashboard sample
// customers and orders.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/catalog-admin/internal/storage/postgres"
)

type seedFile struct {
	Customers []postgres.SeedCustomer `json:"customers"`
	Orders    []postgres.SeedOrder    `json:"orders"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "file", "db/seed/dashboard.json", "path to the seed JSON file, optionally gzipped (.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	seed, err := loadSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewDashboardRepository(pool)

	slog.Info("upserting customers", slog.Int("count", len(seed.Customers)))
	if err := repo.UpsertCustomers(ctx, seed.Customers); err != nil {
		return err
	}
	slog.Info("upserting orders", slog.Int("count", len(seed.Orders)))
	return repo.UpsertOrders(ctx, seed.Orders)
}

func loadSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decodeSeed(r)
}

// decodeSeed parses the seed document and checks that every order refers to
// a customer in the same file.
func decodeSeed(r io.Reader) (*seedFile, error) {
	var seed seedFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}

	customers := make(map[string]struct{}, len(seed.Customers))
	for _, c := range seed.Customers {
		if c.ID == "" || c.Email == "" {
			return nil, errors.Errorf("customer %q: id and email are required", c.Name)
		}
		customers[c.ID] = struct{}{}
	}
	numbers := make(map[int64]string, len(seed.Orders))
	for _, o := range seed.Orders {
		if _, ok := customers[o.CustomerID]; !ok {
			return nil, errors.Errorf("order %q: unknown customer %q", o.ID, o.CustomerID)
		}
		if prev, dup := numbers[o.Number]; dup {
			return nil, errors.Errorf("order %q: number %d already used by %q", o.ID, o.Number, prev)
		}
		numbers[o.Number] = o.ID
	}
	return &seed, nil
}

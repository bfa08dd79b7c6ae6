package store

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
)

// SeedOptions sizes the mock data set.
type SeedOptions struct {
	Start    time.Time
	End      time.Time
	Products int
	Stores   int
	Seed     int64
}

var (
	categories = []string{"fresh", "grocery", "household", "beverages"}
	cities     = []string{"Lyon", "Lille", "Nantes", "Paris", "Toulouse"}
	// relative demand from Monday to Sunday
	weekdayFactor = [7]float64{0.8, 0.85, 0.9, 1, 1.2, 1.4, 0.6}
)

// Seed replaces the origin tables with a deterministic mock data set:
// every product sells every day in every store following a Poisson law
// whose rate depends on the product, the store and the weekday.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.Products <= 0 || opts.Stores <= 0 {
		return errors.Newf("seed needs products and stores, got %d and %d", opts.Products, opts.Stores)
	}
	if opts.End.Before(opts.Start) {
		return errors.Newf("seed end %s is before start %s",
			opts.End.Format(config.DateLayout), opts.Start.Format(config.DateLayout))
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin seed")
	}
	defer tx.Rollback()

	for _, t := range []string{"transactions", "products", "stores"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return errors.Wrapf(err, "clear %s", t)
		}
	}

	rates := make([]float64, opts.Products)
	for p := 0; p < opts.Products; p++ {
		rates[p] = 0.5 + rng.Float64()*6
		price := math.Round((1+rng.Float64()*19)*100) / 100
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (product_id, product_name, category, gross_price) VALUES (?, ?, ?, ?)`,
			p+1, fmt.Sprintf("product-%03d", p+1), categories[p%len(categories)], price); err != nil {
			return errors.Wrap(err, "insert product")
		}
	}
	storeFactor := make([]float64, opts.Stores)
	for st := 0; st < opts.Stores; st++ {
		storeFactor[st] = 0.7 + rng.Float64()*0.6
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stores (store_id, store_name, city) VALUES (?, ?, ?)`,
			st+1, fmt.Sprintf("store-%02d", st+1), cities[st%len(cities)]); err != nil {
			return errors.Wrap(err, "insert store")
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (date, product_id, store_id, nb_sold_pieces) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare transactions")
	}
	defer stmt.Close()

	var count int
	for d := opts.Start; !d.After(opts.End); d = d.AddDate(0, 0, 1) {
		day := d.Format(config.DateLayout)
		wf := weekdayFactor[(int(d.Weekday())+6)%7]
		for p := range rates {
			for st := range storeFactor {
				n := poisson(rng, rates[p]*storeFactor[st]*wf)
				if n == 0 {
					continue
				}
				if _, err := stmt.ExecContext(ctx, day, p+1, st+1, n); err != nil {
					return errors.Wrap(err, "insert transaction")
				}
				count++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit seed")
	}
	s.log.Infow("Origin store seeded",
		"products", opts.Products,
		"stores", opts.Stores,
		logger.FieldRows, count,
	)
	return nil
}

// poisson draws from a Poisson law with Knuth's method.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// Counts returns the number of rows of each origin table.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, t := range []string{"products", "stores", "transactions"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", t)
		}
		out[t] = n
	}
	return out, nil
}

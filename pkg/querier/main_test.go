package querier_test

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

var (
	logger *slog.Logger
)

func TestMain(m *testing.M) {
	flag.Parse()
	verbose := false
	if vFlag := flag.Lookup("test.v"); vFlag != nil && vFlag.Value.String() == "true" {
		verbose = true
	}
	if verbose {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC3339,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	os.Exit(m.Run())
}

type mockWarehouse struct {
	ExecuteFunc func(ctx context.Context, sql string) (*rowset.Set, error)
	calls       int
}

func (m *mockWarehouse) Execute(ctx context.Context, sql string) (*rowset.Set, error) {
	m.calls++
	return m.ExecuteFunc(ctx, sql)
}

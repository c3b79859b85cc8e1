package tabular

import (
	"context"
	"fmt"
	"profileflow/internal/infra/tabular/memory"
	"profileflow/internal/infra/tabular/postgres"
	"profileflow/internal/infra/tabular/sheets"
	"profileflow/internal/infra/tabular/sqlite"
	"sync"

	"google.golang.org/api/option"
)

// Options selects and configures a driver.
type Options struct {
	Driver Driver
	// SQLitePath is the database file when Driver is sqlite.
	SQLitePath string
	// PostgresDSN is the connection string when Driver is postgres.
	PostgresDSN string
	// SheetsCredentialsFile is a service account JSON key when Driver is sheets.
	SheetsCredentialsFile string
	// SheetsClientOptions are appended to the Sheets client options.
	SheetsClientOptions []option.ClientOption
}

// Catalog opens named tables on one shared backend connection.
type Catalog struct {
	driver Driver
	open   func(name string) Store
	close  func() error

	mu     sync.Mutex
	memory map[string]*memory.Store
}

// Open connects to the configured driver (default memory).
func Open(ctx context.Context, opts Options) (*Catalog, error) {
	if opts.Driver == "" {
		opts.Driver = DriverMemory
	}
	c := &Catalog{driver: opts.Driver, close: func() error { return nil }}
	switch opts.Driver {
	case DriverMemory:
		c.memory = make(map[string]*memory.Store)
		c.open = c.memoryTable
	case DriverSQLite:
		db, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.open = func(name string) Store { return db.Table(name) }
		c.close = db.Close
	case DriverPostgres:
		db, err := postgres.Open(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.open = func(name string) Store { return db.Table(name) }
		c.close = db.Close
	case DriverSheets:
		client, err := sheets.NewClient(ctx, opts.SheetsCredentialsFile, opts.SheetsClientOptions...)
		if err != nil {
			return nil, err
		}
		c.open = func(name string) Store { return client.Table(name) }
	default:
		return nil, fmt.Errorf("unknown tabular driver %s", opts.Driver)
	}
	return c, nil
}

// Driver reports the catalog's backend.
func (c *Catalog) Driver() Driver { return c.driver }

// Table returns the store for name. Memory tables are created on first use
// and shared by later calls.
func (c *Catalog) Table(name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("tabular: empty table name")
	}
	return c.open(name), nil
}

// Close releases the backend connection.
func (c *Catalog) Close() error { return c.close() }

func (c *Catalog) memoryTable(name string) Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.memory[name]; ok {
		return s
	}
	s := memory.New(name)
	c.memory[name] = s
	return s
}

// NewMemory returns a standalone in-memory table seeded with header and rows.
func NewMemory(name string, header []string, rows ...[]string) Store {
	return memory.NewWithRows(name, header, rows...)
}

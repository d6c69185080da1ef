package store

import "fmt"

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	StateFile   string
	BoltPath    string
	DatabaseDSN string
}

// Open returns the backend selected by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryWithOptions(MemoryOptions{StateFile: opts.StateFile}), nil
	case DriverBolt:
		if opts.BoltPath == "" {
			return nil, fmt.Errorf("bolt store requires a path")
		}
		return OpenBolt(opts.BoltPath)
	case DriverPostgres:
		if opts.DatabaseDSN == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return OpenPostgres(opts.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

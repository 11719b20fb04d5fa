package index

import (
	"database/sql/driver"
	"os"
	"sync"

	"modernc.org/sqlite"
)

var (
	byteAggOnce sync.Once
	byteAggErr  error
)

// registerByteAggregate installs BYTE_PATH against the global
// modernc.org/sqlite driver. modernc.org/sqlite registers user-defined
// functions at the driver level, not per-connection, so this mirrors
// refsvtab.Register's sync.Once singleton: the first call wins, every
// later call (from every Database, including concurrent ones in tests)
// observes the same registration.
func registerByteAggregate() error {
	byteAggOnce.Do(func() {
		byteAggErr = sqlite.RegisterAggregateFunction(
			"BYTE_PATH",
			1,
			true,
			func() sqlite.AggregateFunction { return &bytePathAggregate{} },
		)
	})
	return byteAggErr
}

// bytePathAggregate concatenates the BLOB component bytes it sees, in
// call order, joined by the platform path separator. PathByIdView drives
// it over rows scanned via ancestors_child_depth_ancestor, which yields
// ascending reldepth per child_id — root first, the entry itself last.
type bytePathAggregate struct {
	joined []byte
}

func (a *bytePathAggregate) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	if len(args) == 0 {
		return nil
	}
	component, ok := args[0].([]byte)
	if !ok {
		return nil
	}
	if len(a.joined) > 0 {
		a.joined = append(a.joined, os.PathSeparator)
	}
	a.joined = append(a.joined, component...)
	return nil
}

func (a *bytePathAggregate) WindowValue(_ *sqlite.FunctionContext) (driver.Value, error) {
	return append([]byte(nil), a.joined...), nil
}

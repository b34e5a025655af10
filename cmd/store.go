package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/resilience"
	"github.com/sells-group/indemnizatii/internal/store"
)

// openStore validates the store settings, connects and applies pending
// migrations.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate("db"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.Store, resilience.FromConfig(c.Retry))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate")
	}
	return st, nil
}

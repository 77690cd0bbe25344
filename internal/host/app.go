// Package host is the demo plugin host: a small reverse proxy whose request
// flow stands in for the engine's scheduler. Every request is admitted into
// the in-memory engine and driven through the hook stages in order, so
// plugins observe and mutate real traffic through the wrapper layer.
package host

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
)

const contextKeyTxnID = "_edgeshim_txn_id"

// AppOptions controls the Fiber application.
type AppOptions struct {
	Pipeline   *Pipeline
	ListenPort int
}

// NewApp builds the Fiber application: panic recovery, transaction-ID
// middleware, and the catch-all route into the stage pipeline.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(txnIDMiddleware())

	app.All("/*", opts.Pipeline.Handle)

	return app, nil
}

// txnIDMiddleware mints the transaction identity the engine side uses for
// the whole request and echoes it back to the client.
func txnIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := uuid.NewString()
		c.Locals(contextKeyTxnID, id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}

// TxnID returns the transaction identifier stored by the middleware.
func TxnID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyTxnID); value != nil {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return uuid.NewString()
}

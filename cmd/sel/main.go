// Command sel evaluates expressions from the command line or serves a small
// evaluation API.
//
//	sel -e 'order.items.![price]' -data order.json
//	sel -serve -addr :8080 -metrics-addr :9090
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/json"
	"golang.org/x/time/rate"

	"github.com/oarkflow/sel"
	"github.com/oarkflow/sel/logger"
	"github.com/oarkflow/sel/metrics"
)

func main() {
	var (
		expr        = flag.String("e", "", "expression to evaluate")
		dataFile    = flag.String("data", "", "JSON file providing the root object (defaults to stdin when piped)")
		serve       = flag.Bool("serve", false, "run the evaluation HTTP API instead of a one-shot eval")
		addr        = flag.String("addr", ":8080", "listen address for the evaluation API")
		metricsAddr = flag.String("metrics-addr", ":9090", "listen address for /metrics")
		rps         = flag.Float64("rps", 50, "allowed evaluation requests per second")
		burst       = flag.Int("burst", 100, "request burst allowance")
	)
	flag.Parse()

	log := logger.NewDefaultLogger()

	if *serve {
		runServer(log, *addr, *metricsAddr, *rps, *burst)
		return
	}

	if *expr == "" {
		fmt.Fprintln(os.Stderr, "usage: sel -e <expression> [-data file.json] | sel -serve")
		os.Exit(2)
	}

	root, err := loadRoot(*dataFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sel:", err)
		os.Exit(1)
	}
	out, err := sel.Eval(*expr, root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sel:", err)
		os.Exit(1)
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		fmt.Println(out)
		return
	}
	fmt.Println(string(encoded))
}

func loadRoot(path string) (any, error) {
	var raw []byte
	var err error
	switch {
	case path != "":
		raw, err = os.ReadFile(path)
	default:
		stat, statErr := os.Stdin.Stat()
		if statErr == nil && stat.Mode()&os.ModeCharDevice == 0 {
			raw, err = io.ReadAll(os.Stdin)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse root data: %w", err)
	}
	return root, nil
}

type evalRequest struct {
	Expression string         `json:"expression"`
	Root       any            `json:"root"`
	Variables  map[string]any `json:"variables"`
}

type evalResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func runServer(log logger.Logger, addr, metricsAddr string, rps float64, burst int) {
	limiter := newIPLimiter(rps, burst)

	app := fiber.New(fiber.Config{
		AppName:               "sel",
		DisableStartupMessage: true,
	})

	app.Use(func(c *fiber.Ctx) error {
		if !limiter.allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/eval", func(c *fiber.Ctx) error {
		var req evalRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(evalResponse{Error: "invalid request body: " + err.Error()})
		}
		if req.Expression == "" {
			return c.Status(fiber.StatusBadRequest).JSON(evalResponse{Error: "expression is required"})
		}
		expr, err := sel.Parse(req.Expression)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(evalResponse{Error: err.Error()})
		}
		ctx := sel.NewStandardContext(req.Root)
		for k, v := range req.Variables {
			ctx.SetVariable(k, v)
		}
		out, err := expr.GetValue(ctx, req.Root)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(evalResponse{Error: err.Error()})
		}
		return c.JSON(evalResponse{Result: out})
	})

	go func() {
		metrics.HandleHTTP()
		log.Info("metrics listener started", logger.Field{Key: "addr", Value: metricsAddr})
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Error("metrics listener failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	log.Info("evaluation API started", logger.Field{Key: "addr", Value: addr})
	if err := app.Listen(addr); err != nil {
		log.Error("server failed", logger.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ksred/bistro-api/internal/config"
	"github.com/ksred/bistro-api/internal/database"
	"github.com/ksred/bistro-api/internal/inventory"
	"github.com/ksred/bistro-api/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	minOrders  = 10
	maxOrders  = 60
	numWorkers = 5
	maxLines   = 3
)

var errAlreadyPaid = errors.New("order already paid")

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// routeStats tracks latency for one API route
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate returns min, max, mean, median, p95 and p99
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95 = rs.durations[int(math.Ceil(float64(len(rs.durations))*0.95))-1]
	p99 = rs.durations[int(math.Ceil(float64(len(rs.durations))*0.99))-1]
	return
}

// apiError is a non-2xx answer from the server
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.status, e.code, e.message)
}

type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"login":  {name: "Login"},
			"seed":   {name: "Seed"},
			"create": {name: "Create Order"},
			"send":   {name: "Send Order"},
			"pay":    {name: "Pay Order"},
			"read":   {name: "Read"},
		},
	}
}

// call sends body as JSON and decodes the data field of the envelope into out
func (sc *simulationClient) call(stat, method, path string, body, out interface{}) error {
	start := time.Now()
	err := sc.do(method, path, body, out)

	failed := err != nil
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.code == "ALREADY_SETTLED" {
		failed = false
		err = errAlreadyPaid
	}
	sc.stats[stat].record(time.Since(start), failed)
	return err
}

func (sc *simulationClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		e := &apiError{status: resp.StatusCode}
		if envelope.Error != nil {
			e.code, e.message = envelope.Error.Code, envelope.Error.Message
		}
		return e
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func (sc *simulationClient) login() error {
	var token struct {
		Token string `json:"token"`
	}
	if err := sc.call("login", http.MethodPost, "/auth/login", map[string]string{"email": "sim@bistro.local"}, &token); err != nil {
		return err
	}
	sc.authToken = token.Token
	return nil
}

type recipeLine struct {
	ingredient string
	perUnit    decimal.Decimal
}

type menuItem struct {
	id    string
	name  string
	lines []recipeLine
}

type menu struct {
	opening     map[string]decimal.Decimal // ingredient name -> opening stock
	ingredients map[string]string          // ingredient name -> id
	items       []menuItem
	tables      []string
}

func (sc *simulationClient) seedMenu() (*menu, error) {
	m := &menu{
		opening: map[string]decimal.Decimal{
			"Flour": decimal.NewFromInt(200),
			"Sugar": decimal.NewFromInt(100),
		},
		ingredients: make(map[string]string),
	}

	for _, name := range []string{"Flour", "Sugar"} {
		var ing struct {
			ID string `json:"id"`
		}
		body := map[string]interface{}{
			"name":         name,
			"unit":         "kg",
			"current_qty":  m.opening[name],
			"min_quantity": m.opening[name].Div(decimal.NewFromInt(4)),
		}
		if err := sc.call("seed", http.MethodPost, "/inventory/ingredients", body, &ing); err != nil {
			return nil, fmt.Errorf("ingredient %s: %w", name, err)
		}
		m.ingredients[name] = ing.ID
	}

	recipes := []struct {
		name  string
		price string
		lines []recipeLine
	}{
		{"Cake", "4.50", []recipeLine{{"Flour", decimal.RequireFromString("0.5")}, {"Sugar", decimal.RequireFromString("0.3")}}},
		{"Bread", "2.25", []recipeLine{{"Flour", decimal.RequireFromString("0.3")}}},
	}
	for _, r := range recipes {
		items := make([]map[string]interface{}, 0, len(r.lines))
		for _, l := range r.lines {
			items = append(items, map[string]interface{}{"ingredient_id": m.ingredients[l.ingredient], "quantity": l.perUnit})
		}
		var created struct {
			ID string `json:"id"`
		}
		body := map[string]interface{}{"name": r.name, "price": decimal.RequireFromString(r.price), "items": items}
		if err := sc.call("seed", http.MethodPost, "/recipes", body, &created); err != nil {
			return nil, fmt.Errorf("recipe %s: %w", r.name, err)
		}
		m.items = append(m.items, menuItem{id: created.ID, name: r.name, lines: r.lines})
	}

	var outlet struct {
		ID string `json:"id"`
	}
	if err := sc.call("seed", http.MethodPost, "/pos/outlets", map[string]string{"name": "Simulation Bistro"}, &outlet); err != nil {
		return nil, fmt.Errorf("outlet: %w", err)
	}
	for i := 0; i < numWorkers; i++ {
		var table struct {
			ID string `json:"id"`
		}
		body := map[string]string{"outlet_id": outlet.ID, "number": fmt.Sprintf("T%d", i+1)}
		if err := sc.call("seed", http.MethodPost, "/pos/tables", body, &table); err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
		m.tables = append(m.tables, table.ID)
	}
	return m, nil
}

type tally struct {
	mu             sync.Mutex
	created        int
	settled        int
	alreadyPaid    int
	failed         int
	revenue        decimal.Decimal
	expectedDeduct map[string]decimal.Decimal
}

func (t *tally) addDeductions(m *menu, qty map[string]int64) {
	for _, item := range m.items {
		n, ok := qty[item.id]
		if !ok {
			continue
		}
		for _, l := range item.lines {
			t.expectedDeduct[l.ingredient] = t.expectedDeduct[l.ingredient].Add(l.perUnit.Mul(decimal.NewFromInt(n)))
		}
	}
}

// runWorker opens orders on one table, sends them to the kitchen and then
// settles each twice in parallel. Exactly one of the two pays must win.
func runWorker(workerID int, numOrders int, sc *simulationClient, m *menu, t *tally) {
	logger := log.With().Int("worker_id", workerID).Logger()
	tableID := m.tables[workerID%len(m.tables)]

	for i := 0; i < numOrders; i++ {
		lines := rand.Intn(maxLines) + 1
		qty := make(map[string]int64)
		items := make([]map[string]interface{}, 0, lines)
		for j := 0; j < lines; j++ {
			item := m.items[rand.Intn(len(m.items))]
			n := int64(rand.Intn(3) + 1)
			qty[item.id] += n
			items = append(items, map[string]interface{}{"recipe_id": item.id, "quantity": n})
		}

		var order struct {
			ID    string          `json:"id"`
			Total decimal.Decimal `json:"total"`
		}
		if err := sc.call("create", http.MethodPost, "/pos/orders", map[string]interface{}{"table_id": tableID, "items": items}, &order); err != nil {
			logger.Error().Err(err).Msg("Failed to create order")
			t.mu.Lock()
			t.failed++
			t.mu.Unlock()
			continue
		}
		if err := sc.call("send", http.MethodPost, "/pos/orders/"+order.ID+"/send", nil, nil); err != nil {
			logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to send order")
		}

		results := make(chan error, 2)
		for k := 0; k < 2; k++ {
			go func() {
				results <- sc.call("pay", http.MethodPost, "/pos/orders/"+order.ID+"/pay", map[string]string{"method": "card"}, nil)
			}()
		}

		wins := 0
		t.mu.Lock()
		t.created++
		for k := 0; k < 2; k++ {
			err := <-results
			switch {
			case err == nil:
				wins++
				t.settled++
			case errors.Is(err, errAlreadyPaid):
				t.alreadyPaid++
			default:
				t.failed++
				logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to pay order")
			}
		}
		if wins == 1 {
			t.revenue = t.revenue.Add(order.Total)
			t.addDeductions(m, qty)
		}
		t.mu.Unlock()

		if wins != 1 {
			logger.Error().Int("wins", wins).Str("order_id", order.ID).Msg("Order settled an unexpected number of times")
			continue
		}
		logger.Info().
			Str("order_id", order.ID).
			Str("total", order.Total.String()).
			Msg("Order settled")

		time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
	}
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	keys := make([]string, 0, len(sc.stats))
	for k := range sc.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stats := sc.stats[k]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Microsecond),
			max.Round(time.Microsecond),
			mean.Round(time.Microsecond),
			median.Round(time.Microsecond),
			p95.Round(time.Microsecond),
			p99.Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// startServer serves the API on a random local port backed by a fresh
// SQLite file and returns its base URL
func startServer(dir string) (string, *server.Server, func(), error) {
	cfg := config.Config{
		Env:            "simulation",
		Database:       config.Database{Driver: config.DriverSQLite, DSN: filepath.Join(dir, "simulation.db")},
		JWTSecret:      "simulation-secret",
		AuthRequired:   true,
		AllowedOrigins: []string{"*"},
		LogLevel:       zerolog.WarnLevel,
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, nil, err
	}

	srv := server.New(db, cfg)
	httpServer := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to serve")
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return "http://" + listener.Addr().String(), srv, stop, nil
}

func main() {
	dir, err := os.MkdirTemp("", "bistro-sim-")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	baseURL, srv, stop, err := startServer(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	defer stop()

	// Request logs are noisy at simulation volume
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	sc := newSimulationClient(baseURL)
	if err := sc.login(); err != nil {
		log.Fatal().Err(err).Msg("Failed to log in")
	}
	m, err := sc.seedMenu()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed menu")
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Str("base_url", baseURL).Msg("Starting simulation")

	t := &tally{revenue: decimal.Zero, expectedDeduct: make(map[string]decimal.Decimal)}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, targetOrders/numWorkers, sc, m, t)
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	var ingredients []struct {
		Name   string          `json:"name"`
		Unit   string          `json:"unit"`
		OnHand decimal.Decimal `json:"on_hand"`
	}
	if err := sc.call("read", http.MethodGet, "/inventory/ingredients", nil, &ingredients); err != nil {
		log.Fatal().Err(err).Msg("Failed to read stock levels")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("RESTAURANT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Order Statistics
----------------
Orders Created:   %d
Settled:          %d
Already Paid:     %d
Failures:         %d
Revenue:          %s
Duration:         %v

Stock Levels
------------
`, t.created, t.settled, t.alreadyPaid, t.failed, t.revenue.StringFixed(2), duration.Round(time.Millisecond))

	consistent := true
	for _, ing := range ingredients {
		want := m.opening[ing.Name].Sub(t.expectedDeduct[ing.Name])
		mark := "ok"
		if !ing.OnHand.Equal(want) {
			mark = "MISMATCH"
			consistent = false
		}
		fmt.Printf("%-8s %12s %-3s (expected %s) %s\n", ing.Name, ing.OnHand.String(), ing.Unit, want.String(), mark)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	lowCount, err := inventory.NewProcessor(srv.Inventory, time.Minute).CheckLowStock(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Low stock check failed")
	}

	log.Info().
		Int("orders", t.created).
		Int("settled", t.settled).
		Int("already_paid", t.alreadyPaid).
		Int("low_stock", lowCount).
		Bool("ledger_consistent", consistent).
		Dur("duration", duration).
		Msg("Simulation completed")

	sc.printPerformanceStats()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/petrijr/stepflow"
)

var errCardDeclined = errors.New("card declined")

type demoOptions struct {
	name       string
	failCharge bool
	logger     *slog.Logger
	observers  []stepflow.Observer
}

// carrier quotes shipping for an order total.
type carrier struct {
	name    string
	base    float64
	rate    float64
	latency time.Duration
}

var carriers = []carrier{
	{name: "post", base: 4.5, rate: 0.02, latency: 40 * time.Millisecond},
	{name: "courier", base: 9.0, rate: 0.00, latency: 25 * time.Millisecond},
	{name: "freight", base: 2.0, rate: 0.06, latency: 60 * time.Millisecond},
}

func demoSeed(orderID string) map[string]any {
	return map[string]any{
		"order_id":   orderID,
		"quantities": []int{2, 1, 3},
		"unit_price": 12.5,
	}
}

// newDemoWorkflow builds an order pipeline that touches every kind of step:
// plain steps bound by name, a conditional, a parallel fan-out, retries with
// backoff, a fallback, an error handler and an exit step.
func newDemoWorkflow(opts demoOptions) *stepflow.Workflow {
	name := opts.name
	if name == "" {
		name = "orders"
	}
	wfOpts := []stepflow.Option{stepflow.WithName(name)}
	if opts.logger != nil {
		wfOpts = append(wfOpts, stepflow.WithLogger(opts.logger))
	}
	for _, o := range opts.observers {
		wfOpts = append(wfOpts, stepflow.WithObserver(o))
	}
	wf := stepflow.New(wfOpts...)

	wf.AddStep(stepflow.Fn2(subtotal, "quantities", "unit_price"))
	wf.AddStep(stepflow.Fn1(isLarge, "subtotal"))
	wf.AddCondStep(
		stepflow.Branch(stepflow.Fn1(discounted, "subtotal")),
		stepflow.Branch(stepflow.Fn1(fullPrice, "subtotal")),
		stepflow.Named("total"),
	)

	quotes := make([]stepflow.Action, 0, len(carriers))
	for _, c := range carriers {
		quotes = append(quotes, stepflow.Fn1(c.quote, "total").Named("quote_"+c.name))
	}
	wf.AddParallelStep("quotes", stepflow.ModeThread, quotes, stepflow.Timeout(time.Second))
	wf.AddStep(stepflow.Fn1(cheapest, "quotes"))

	// The backorder fallback stands in for the reservation and the order
	// carries on to the charge.
	wf.AddStep(stepflow.Fn1(reserveStock, "order_id"), stepflow.ContinueOnError())
	if _, err := wf.AddFallback("reserveStock", stepflow.Fn1(backorder, "order_id")); err != nil {
		panic(err)
	}

	wf.AddStep(
		stepflow.Fn2(newCharger(opts.failCharge).charge, "total", "cheapest").Named("charge"),
		stepflow.WithRetry(stepflow.Retry(2).WithConstantBackoff(10*time.Millisecond)),
		stepflow.Timeout(time.Second),
	)

	wf.AddErrorStep(stepflow.Fn1(notifyFailure, "normal_error"))
	wf.AddExitStep(stepflow.FnState(receipt))

	return wf
}

func subtotal(ctx context.Context, quantities []int, unitPrice float64) (float64, error) {
	n := 0
	for _, q := range quantities {
		if q < 0 {
			return 0, fmt.Errorf("negative quantity %d", q)
		}
		n += q
	}
	return float64(n) * unitPrice, nil
}

func isLarge(ctx context.Context, subtotal float64) (bool, error) {
	return subtotal >= 50, nil
}

func discounted(ctx context.Context, subtotal float64) (float64, error) {
	return round(subtotal * 0.9), nil
}

func fullPrice(ctx context.Context, subtotal float64) (float64, error) {
	return subtotal, nil
}

func (c carrier) quote(ctx context.Context, total float64) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(c.latency):
	}
	return round(c.base + total*c.rate), nil
}

func cheapest(ctx context.Context, quotes []any) (float64, error) {
	best := math.Inf(1)
	for _, q := range quotes {
		v, ok := q.(float64)
		if !ok {
			return 0, fmt.Errorf("unexpected quote %v (%T)", q, q)
		}
		best = min(best, v)
	}
	if math.IsInf(best, 1) {
		return 0, errors.New("no quotes")
	}
	return best, nil
}

func reserveStock(ctx context.Context, orderID string) (string, error) {
	return "", fmt.Errorf("warehouse offline, cannot reserve %s", orderID)
}

func backorder(ctx context.Context, orderID string) (string, error) {
	return "backorder:" + orderID, nil
}

// charger declines one attempt in three, starting with the first, or every
// attempt when failing is set.
type charger struct {
	failing  bool
	attempts atomic.Int64
}

func newCharger(failing bool) *charger {
	return &charger{failing: failing}
}

func (c *charger) charge(ctx context.Context, total, shipping float64) (string, error) {
	n := c.attempts.Add(1)
	if c.failing || n%3 == 1 {
		return "", errCardDeclined
	}
	return fmt.Sprintf("charged %.2f", round(total+shipping)), nil
}

func notifyFailure(ctx context.Context, rec stepflow.ScopeFailure) (string, error) {
	return fmt.Sprintf("notified support: %s failed: %v", rec.Step, rec.Err), nil
}

func receipt(ctx context.Context, st *stepflow.State) (string, error) {
	if st.Failed() {
		return fmt.Sprintf("order %v not completed", st.Get("order_id")), nil
	}
	return fmt.Sprintf("order %v: %v, %v", st.Get("order_id"), st.Get("charge"), st.Get("backorder")), nil
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

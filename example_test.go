package stepflow_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/petrijr/stepflow"
)

func sayHello(ctx context.Context, name string) (string, error) {
	return "Hello, " + name, nil
}

func decorateMessage(ctx context.Context, msg string) (string, error) {
	return strings.ToUpper(msg) + "!", nil
}

// Example demonstrates chaining steps through the shared state: each step
// reads the result of the previous one by name.
func Example() {
	wf := stepflow.New(stepflow.WithName("greeting"))
	defer wf.Close()

	wf.AddStep(stepflow.Fn1(sayHello, "name"))
	wf.AddStep(stepflow.Fn1(decorateMessage, "sayHello"))

	if err := wf.Run(context.Background(), map[string]any{"name": "Gopher"}); err != nil {
		log.Fatal(err)
	}

	out, _ := wf.ValueOf("decorateMessage")
	fmt.Println(out)

	// Output:
	// HELLO, GOPHER!
}

// Example_errorAndExitScopes demonstrates recovering from a failing step in
// the error scope while the exit scope always runs.
func Example_errorAndExitScopes() {
	wf := stepflow.New()
	defer wf.Close()

	wf.AddStep(stepflow.Fn0(func(ctx context.Context) (int, error) {
		return 0, errors.New("payment declined")
	}).Named("charge"))

	wf.AddErrorStep(stepflow.Fn1(func(ctx context.Context, rec stepflow.ScopeFailure) (string, error) {
		return "notified about " + rec.Step, nil
	}, "normal_error").Named("notify"))

	wf.AddExitStep(stepflow.Value("cleanup", "released locks"))

	err := wf.Run(context.Background(), nil)

	st := wf.State()
	fmt.Println("run error:", err)
	fmt.Println("error flag:", st.Get(stepflow.KeyError))
	fmt.Println(st.Get("notify"))
	fmt.Println(st.Get("cleanup"))

	// Output:
	// run error: <nil>
	// error flag: true
	// notified about charge
	// released locks
}

// Example_parallel demonstrates fanning out to the goroutine pool; results
// come back in the order the actions were listed.
func Example_parallel() {
	wf := stepflow.New()
	defer wf.Close()

	square := func(n int) stepflow.Action {
		return stepflow.Fn0(func(ctx context.Context) (int, error) {
			return n * n, nil
		}).Named(fmt.Sprintf("square%d", n))
	}

	wf.AddParallelStep("squares", stepflow.ModeThread, []stepflow.Action{
		square(1), square(2), square(3),
	})

	if err := wf.Run(context.Background(), nil); err != nil {
		log.Fatal(err)
	}

	out, _ := wf.ValueOf("squares")
	fmt.Println(out)

	// Output:
	// [1 4 9]
}

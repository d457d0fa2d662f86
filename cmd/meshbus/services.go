package main

import (
	"fmt"

	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/failure"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

// Names of the built-in services
const (
	echoService = "echo"
	calcService = "calc"
)

// anySource matches local senders and senders behind any gate.
var anySource = network.Join(network.All(), network.Via("*", "*"))

// connectServices attaches the built-in services to r:
//   - echo/echo replies with the data it received
//   - calc/sum replies with the sum of a list of numbers
func connectServices(r *router.Router) error {
	echo := network.NewEndpoint()
	if err := r.Connect(echoService, echo); err != nil {
		return fmt.Errorf("failed to connect %s: %w", echoService, err)
	}
	if _, err := echo.ListenFunc(anySource, "echo", func(call *network.Call) {
		call.Reply(call.Data)
	}); err != nil {
		return err
	}

	calc := network.NewEndpoint()
	if err := r.Connect(calcService, calc); err != nil {
		return fmt.Errorf("failed to connect %s: %w", calcService, err)
	}
	if _, err := calc.ListenFunc(anySource, "sum", func(call *network.Call) {
		total, err := sum(call.Data)
		if err != nil {
			call.Refuse(err)
			return
		}
		call.Reply(total)
	}); err != nil {
		return err
	}
	return nil
}

// sum adds the numbers of a list. Lists arrive as []any once they crossed a
// JSON transport and keep their Go type when sent in process.
func sum(data any) (float64, error) {
	var total float64
	switch values := data.(type) {
	case []any:
		for _, v := range values {
			n, ok := number(v)
			if !ok {
				return 0, failure.New("sum expects a list of numbers", data)
			}
			total += n
		}
	case []int:
		for _, v := range values {
			total += float64(v)
		}
	case []float64:
		for _, v := range values {
			total += v
		}
	default:
		return 0, failure.New("sum expects a list of numbers", data)
	}
	return total, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

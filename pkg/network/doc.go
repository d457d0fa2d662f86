// Package network defines the public contracts of the meshbus message bus.
//
// This package holds the types shared by every component of a bus:
//   - Address and Selector: who a message comes from and who it goes to
//   - Participant and Gate: what a Router connects under a name
//   - Handler and Call: what a listener receives, and how it answers
//   - Executor: where handlers, callbacks and timeouts run
//   - Signals and Endpoint: a ready-made Participant for application code
//
// A Call is resolved at most once. The first of Reply, Refuse or the call
// timeout wins and every later attempt is dropped. A Reply may carry new
// options, which opens the next leg of a request/reply chain:
//
//	pinger := network.NewEndpoint()
//	_ = r.Connect("pinger", pinger)
//
//	_ = pinger.Send(network.Node("ponger"), "turn", 0,
//		network.WithSuccess(func(reply *network.Call) {
//			reply.Reply(reply.Data.(int)+1, network.WithTimeout(time.Second))
//		}),
//		network.WithError(func(err *failure.Error) {
//			log.Println("call refused:", err)
//		}),
//		network.WithTimeout(time.Second),
//	)
//
// Addressing:
//   - "a" is the local node a
//   - "*" at the node level is every listener, or every sender when listening
//   - {gate: "g", node: "a"} is node a behind gate g
//   - {gate: "*", node: "a"} is node a behind every registered gate
//
// Topics may also be "*", which matches every topic in addition to the
// literal one.
package network

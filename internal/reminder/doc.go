// Package reminder coordinates the background work of the bot: one job
// goroutine per stored task (wait, fire, reschedule or retire) and one
// ping coordinator per recipient (repeat attention pings until stopped).
//
// The package consumes narrow capabilities (Store, transport.Delivery)
// and owns the only shared mutable state in the process: the registry
// maps and the active-pinger count.
package reminder

// Package heartbeat publishes the liveness of a process worker's child to NATS KV.
//
// The child writes its current time under "<namespace>.heartbeat" in the flag
// bucket at a fixed interval. The parent reads the key with Last to tell a
// child that is still looping from one that hangs inside an iteration, which
// exit status and flags alone cannot show.
//
// # Publisher Lifecycle
//
//  1. Create publisher with New(kv, namespace, interval)
//  2. Start publishing with Start(ctx)
//  3. Stop publishing with Stop(), which deletes the key
//
// Example:
//
//	publisher := heartbeat.New(kv, instanceID, time.Second)
//	if err := publisher.Start(ctx); err != nil {
//	    return err
//	}
//	defer publisher.Stop()
//
//	// In the parent:
//	last, err := heartbeat.Last(ctx, kv, instanceID)
package heartbeat

// Package client implements the runtime side of a pulse connection.
//
// A Service owns the connection to a monitoring server, advertises the
// counter directory once the server acknowledges the stream metadata, and
// streams periodic captures for whatever counters the server selects.
//
//	dir := directory.New()
//	store := counters.NewStore()
//	// register categories and counters, then:
//	store.TrackDirectory(dir)
//
//	svc := client.New(client.Config{
//		ProcessName: "inference",
//		Endianness:  wire.Native(),
//		Directory:   dir,
//		Counters:    store,
//	})
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	defer svc.Stop()
//
// The Service moves through Uninitialised, NotConnected, WaitingForAck and
// Active. A transport or protocol failure returns it to NotConnected; callers
// that want to recover call Start again, for example from a connection.Keeper.
package client

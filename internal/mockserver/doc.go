// Package mockserver is a reference monitoring server for tests and the
// pulse-mock command.
//
// A Server accepts connections on a Unix socket or TCP address. Each
// connection becomes a Session that detects the client's byte order from its
// Stream Metadata, replies with a Connection Ack, then records everything the
// client sends: the counter directory, selection echoes and captures.
//
//	srv, _ := mockserver.NewServer(mockserver.Config{Network: "tcp", Address: "127.0.0.1:0"})
//	_ = srv.Start(ctx)
//	sess, _ := srv.WaitForSession(ctx)
//	_ = sess.SendPeriodicCounterSelection(protocol.PeriodicCounterSelection{Period: 100000, CounterIDs: ids})
//	caps, _ := sess.WaitForCapture(ctx, 10)
package mockserver

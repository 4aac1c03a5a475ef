// Package command dispatches received packets to registered handlers.
//
// Handlers are keyed by (family, id, version). The version comes from a
// VersionResolver consulted for every packet, so the peer's advertised packet
// versions select the handler implementation:
//
//	reg := command.NewRegistry()
//	reg.MustRegister(packet.FamilyControl, packet.IDConnectionAck, v1, ackHandler)
//
//	rx := command.NewReceiver(command.ReceiverConfig{
//	    Reader:   conn,
//	    Registry: reg,
//	})
//	rx.Start()
//	defer rx.Stop()
//
// A Receiver runs one goroutine reading packets in order. It stops on the
// first unknown command, handler error or fatal connection error; Err reports
// the cause.
package command

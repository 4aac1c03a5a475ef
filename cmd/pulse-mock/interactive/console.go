// Package interactive provides the pulse-mock command console.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pulse-protocol/pulse-go/internal/mockserver"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
)

// Console drives a mock server from a readline prompt.
type Console struct {
	srv *mockserver.Server
	rl  *readline.Instance
	out io.Writer

	// current is the session commands act on. Empty means the newest.
	current string
}

// New creates a console for srv.
func New(srv *mockserver.Server) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pulse> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{srv: srv, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether it asked to quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "sessions", "ls":
		c.cmdSessions()
	case "use":
		c.cmdUse(args)
	case "dir", "directory":
		c.cmdDirectory()
	case "request", "req":
		c.cmdRequest()
	case "select", "sel":
		c.cmdSelect(args)
	case "off":
		c.cmdSelect([]string{"0"})
	case "captures", "cap":
		c.cmdCaptures(args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Pulse Mock Server Commands:
  Sessions:
    sessions               - List client sessions
    use <id-prefix>        - Act on a specific session (default: newest)
    status                 - Show the current session

  Directory:
    request                - Send Request Counter Directory
    dir                    - Print the last counter directory

  Capture:
    select <period-us> <uid>...  - Send a counter selection
    off                    - Send the disabling selection
    captures [n]           - Print the last n captures (default 5)

  General:
    help                   - Show this help
    quit                   - Exit`)
}

// session resolves the session commands act on.
func (c *Console) session() *mockserver.Session {
	if c.current != "" {
		if s, ok := c.srv.Session(c.current); ok {
			return s
		}
	}
	active := c.srv.ActiveSessions()
	if len(active) == 0 {
		fmt.Fprintln(c.out, "No connected sessions")
		return nil
	}
	return active[len(active)-1]
}

func (c *Console) cmdSessions() {
	all := c.srv.Sessions()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "No sessions")
		return
	}
	for _, s := range all {
		state := "connected"
		select {
		case <-s.Done():
			state = "closed"
		default:
		}
		name := ""
		if m, ok := s.Metadata(); ok {
			name = fmt.Sprintf("%s (pid %d)", m.ProcessName, m.PID)
		}
		marker := " "
		if s.ID() == c.current {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %s  %-9s %-6s %s\n", marker, shortID(s.ID()), state, s.Endianness(), name)
	}
}

func (c *Console) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: use <id-prefix>")
		return
	}
	for _, s := range c.srv.Sessions() {
		if strings.HasPrefix(s.ID(), args[0]) {
			c.current = s.ID()
			fmt.Fprintf(c.out, "Using session %s\n", s.ID())
			return
		}
	}
	fmt.Fprintf(c.out, "No session matches %q\n", args[0])
}

func (c *Console) cmdStatus() {
	s := c.session()
	if s == nil {
		return
	}
	fmt.Fprintf(c.out, "Session:    %s\n", s.ID())
	fmt.Fprintf(c.out, "Byte order: %s\n", s.Endianness())
	if m, ok := s.Metadata(); ok {
		fmt.Fprintf(c.out, "Process:    %s (pid %d, version %s)\n", m.ProcessName, m.PID, m.Version)
		if m.Info != "" {
			fmt.Fprintf(c.out, "Info:       %s\n", m.Info)
		}
	}
	if d, ok := s.Directory(); ok {
		fmt.Fprintf(c.out, "Directory:  %d categories, %d counters\n", len(d.Categories), d.CounterCount())
	}
	if sel, ok := s.Selection(); ok {
		fmt.Fprintf(c.out, "Selection:  %dus %v\n", sel.Period, sel.CounterIDs)
	}
	fmt.Fprintf(c.out, "Captures:   %d\n", s.CaptureCount())
	if err := s.Err(); err != nil {
		fmt.Fprintf(c.out, "Ended:      %v\n", err)
	}
}

func (c *Console) cmdRequest() {
	s := c.session()
	if s == nil {
		return
	}
	if err := s.SendRequestCounterDirectory(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Requested counter directory")
}

func (c *Console) cmdDirectory() {
	s := c.session()
	if s == nil {
		return
	}
	d, ok := s.Directory()
	if !ok {
		fmt.Fprintln(c.out, "No directory received (try 'request')")
		return
	}
	FormatDirectory(c.out, d)
}

func (c *Console) cmdSelect(args []string) {
	sel, err := ParseSelection(args)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\nUsage: select <period-us> <uid>...\n", err)
		return
	}
	s := c.session()
	if s == nil {
		return
	}
	if err := s.SendPeriodicCounterSelection(sel); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if sel.Enabled() {
		fmt.Fprintf(c.out, "Selected %d counters every %dus\n", len(sel.CounterIDs), sel.Period)
	} else {
		fmt.Fprintln(c.out, "Capture disabled")
	}
}

func (c *Console) cmdCaptures(args []string) {
	n := 5
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintln(c.out, "Usage: captures [n]")
			return
		}
		n = v
	}
	s := c.session()
	if s == nil {
		return
	}
	caps := s.Captures()
	if len(caps) > n {
		caps = caps[len(caps)-n:]
	}
	for _, cp := range caps {
		FormatCapture(c.out, cp)
	}
	fmt.Fprintf(c.out, "(%d total)\n", s.CaptureCount())
}

// ParseSelection parses "<period-us> <uid>...". A lone period of 0 is the
// disabling selection.
func ParseSelection(args []string) (protocol.PeriodicCounterSelection, error) {
	if len(args) == 0 {
		return protocol.PeriodicCounterSelection{}, fmt.Errorf("period required")
	}
	period, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return protocol.PeriodicCounterSelection{}, fmt.Errorf("invalid period %q", args[0])
	}
	sel := protocol.PeriodicCounterSelection{Period: uint32(period)}
	for _, a := range args[1:] {
		uid, err := strconv.ParseUint(a, 10, 16)
		if err != nil {
			return protocol.PeriodicCounterSelection{}, fmt.Errorf("invalid counter uid %q", a)
		}
		sel.CounterIDs = append(sel.CounterIDs, uint16(uid))
	}
	if period != 0 && len(sel.CounterIDs) == 0 {
		return protocol.PeriodicCounterSelection{}, fmt.Errorf("counter uids required")
	}
	return sel, nil
}

// FormatDirectory prints a directory tree.
func FormatDirectory(w io.Writer, d directory.Snapshot) {
	for _, dev := range d.Devices {
		fmt.Fprintf(w, "Device %d %q cores=%d\n", dev.UID, dev.Name, dev.Cores)
	}
	for _, set := range d.CounterSets {
		fmt.Fprintf(w, "CounterSet %d %q count=%d\n", set.UID, set.Name, set.Count)
	}
	for _, cat := range d.Categories {
		fmt.Fprintf(w, "Category %q", cat.Name)
		if cat.DeviceUID != 0 {
			fmt.Fprintf(w, " device=%d", cat.DeviceUID)
		}
		if cat.CounterSetUID != 0 {
			fmt.Fprintf(w, " set=%d", cat.CounterSetUID)
		}
		fmt.Fprintln(w)
		for _, rec := range cat.Counters {
			uids := strconv.Itoa(int(rec.UID))
			if rec.MaxUID != rec.UID {
				uids = fmt.Sprintf("%d-%d", rec.UID, rec.MaxUID)
			}
			fmt.Fprintf(w, "  [%s] %s (%s", uids, rec.Name, rec.Class)
			if rec.Units != "" {
				fmt.Fprintf(w, ", %s", rec.Units)
			}
			fmt.Fprintf(w, ") %s\n", rec.Description)
		}
	}
}

// FormatCapture prints one capture on a line.
func FormatCapture(w io.Writer, c protocol.PeriodicCounterCapture) {
	fmt.Fprintf(w, "t=%d", c.Timestamp)
	for _, v := range c.Values {
		fmt.Fprintf(w, " %d=%d", v.UID, v.Value)
	}
	fmt.Fprintln(w)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

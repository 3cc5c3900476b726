package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/renmiamu/dvnet/core"
	"github.com/renmiamu/dvnet/state"
)

const consoleHelp = `commands:
  send <peer> <file>  transfer a file to peer
  check               show transfers in progress
  routes              show the routing table
  exit                stop the node`

// NewConsole reads commands from in, one per line, until exit or EOF
func NewConsole(in io.Reader, out io.Writer) core.Console {
	return func(ctx context.Context, n *core.Node) error {
		c := &console{out: out, node: n}
		defer c.wg.Wait()
		sc := bufio.NewScanner(in)
		for ctx.Err() == nil {
			c.printf("> ")
			if !sc.Scan() {
				return sc.Err()
			}
			if c.exec(ctx, sc.Text()) {
				return nil
			}
		}
		return nil
	}
}

type console struct {
	mu   sync.Mutex
	out  io.Writer
	node *core.Node
	wg   sync.WaitGroup
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// exec runs one command line and reports whether the console should stop
func (c *console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "send":
		if len(fields) != 3 {
			c.printf("usage: send <peer> <file>\n")
			return false
		}
		dst, path := state.NodeId(fields[1]), fields[2]
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			res, err := c.node.SendFile(ctx, dst, path)
			if err != nil {
				c.printf("send to %s failed: %v\n", dst, err)
				return
			}
			c.printf("%s\n", res)
		}()
	case "check":
		c.printf("%s", formatProgress(c.node.Progress()))
	case "routes":
		c.printf("%s\n", c.node.Router.StringRoutes())
	case "exit", "quit":
		return true
	case "help":
		c.printf("%s\n", consoleHelp)
	default:
		c.printf("unknown command %q, type help for a list\n", fields[0])
	}
	return false
}

func formatProgress(p core.Progress) string {
	if len(p.Outbound) == 0 && len(p.Inbound) == 0 {
		return "no transfers in progress\n"
	}
	var sb strings.Builder
	for _, o := range p.Outbound {
		fmt.Fprintf(&sb, "to %s: %d segments unacknowledged %v\n", o.Dst, len(o.Unacked), o.Unacked)
	}
	for _, i := range p.Inbound {
		fmt.Fprintf(&sb, "from %s: %d/%d segments, missing %v\n", i.Src, len(i.Received), i.Total, i.Missing)
	}
	return sb.String()
}

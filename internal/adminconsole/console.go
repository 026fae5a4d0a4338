// Package adminconsole is the gateway's interactive operator REPL,
// generalized from the teacher's mediaserver/cli.go media-management
// commands to gateway operational commands (stats, cache purge, exit).
package adminconsole

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/arlojanssen/refstream/internal/catalog"
)

// ErrReadCancelled wraps the cause given to Interrupt, surfaced from
// CancelableReader.Read once the console is torn down.
type ErrReadCancelled struct {
	cause error
}

func (e ErrReadCancelled) Error() string { return "read cancelled" }
func (e ErrReadCancelled) Unwrap() error { return e.cause }

var errReadCancelled ErrReadCancelled

var errExit = errors.New("admin console exit")

// CancelableReader is stdin wrapped so that Interrupt can unblock a
// pending Read, the same shape as the teacher's mediaserver.CancelableReader.
type CancelableReader struct {
	cancel <-chan error
	data   chan []byte
	err    error
	r      io.Reader
}

func (c *CancelableReader) begin() {
	buf := make([]byte, 1024)
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			tmp := make([]byte, n)
			copy(tmp, buf[:n])
			c.data <- tmp
		}
		if err != nil {
			c.err = err
			close(c.data)
			return
		}
	}
}

func (c *CancelableReader) Read(p []byte) (int, error) {
	select {
	case err := <-c.cancel:
		return 0, ErrReadCancelled{cause: err}
	case d, ok := <-c.data:
		if !ok {
			return 0, c.err
		}
		copy(p, d)
		return len(d), nil
	}
}

func newCancelableReader(cancel <-chan error, r io.Reader) *CancelableReader {
	c := &CancelableReader{cancel: cancel, r: r, data: make(chan []byte)}
	go c.begin()
	return c
}

// Stats is a snapshot the "stats" command prints; callers (cmd/refstreamd)
// provide a function that builds one on demand.
type Stats struct {
	InFlightRequests int
}

// Console is the admin REPL, run as its own oklog/run actor.
type Console struct {
	cacheCatalog  *catalog.CachedCatalog
	statsFn       func() Stats
	reader        *CancelableReader
	cancelReader  chan<- error
	interruptOnce sync.Once
}

// New builds a Console. cache may be nil if no Redis-backed catalog cache
// is configured, in which case purge-cache reports that there is nothing
// to purge.
func New(cache *catalog.CachedCatalog, statsFn func() Stats) *Console {
	c := make(chan error, 1)
	return &Console{
		cacheCatalog: cache,
		statsFn:      statsFn,
		reader:       newCancelableReader(c, os.Stdin),
		cancelReader: c,
	}
}

// Run starts the REPL. After Interrupt it returns the cause passed to
// Interrupt (errExit for the exit command); any other return is an
// unrecoverable read error.
func (c *Console) Run() error {
	log.Println("starting refstream admin console")
	defer log.Println("admin console stopped")

	cli.OsExiter = func(int) {}

	cmd := &cli.Command{
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "print a snapshot of in-flight request counters",
				Action: func(ctx context.Context, _ *cli.Command) error {
					s := c.statsFn()
					fmt.Printf("in-flight requests: %d\n", s.InFlightRequests)
					return nil
				},
			},
			{
				Name:  "purge-cache",
				Usage: "evict one data object from the catalog cache",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "dataObject"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if c.cacheCatalog == nil {
						fmt.Println("no catalog cache configured")
						return nil
					}
					id := cmd.StringArg("dataObject")
					if err := c.cacheCatalog.Purge(ctx, id); err != nil {
						return err
					}
					fmt.Printf("purged %s\n", id)
					return nil
				},
			},
			{
				Name: "exit",
				Action: func(context.Context, *cli.Command) error {
					c.Interrupt(errExit)
					return nil
				},
			},
		},
	}

	reader := bufio.NewReader(c.reader)
	for {
		fmt.Print("refstream> ")

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.As(err, &errReadCancelled) {
				return errors.Unwrap(err)
			}
			return err
		}

		input = strings.TrimSpace(input)
		args := append([]string{"refstream"}, strings.Fields(input)...)
		if err := cmd.Run(context.Background(), args); err != nil {
			log.Println(err)
		}
	}
}

// Interrupt tears the console down, safe to call more than once.
func (c *Console) Interrupt(cause error) {
	c.interruptOnce.Do(func() {
		log.Printf("stopping admin console: %v\n", cause)
		c.cancelReader <- cause
	})
}

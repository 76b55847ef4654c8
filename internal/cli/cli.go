// Package cli is the interactive front end of a peer.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rudransh-shrivastava/p2p-ci/internal/peer"
	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/schollz/progressbar/v3"
)

const Prompt = "p2p> "

// Node is the part of a peer the prompt drives.
type Node interface {
	Add(ctx context.Context, id, title string) (*protocol.IndexResponse, error)
	Lookup(ctx context.Context, id, title string) (*protocol.IndexResponse, error)
	List(ctx context.Context) (*protocol.IndexResponse, error)
	LocalDocuments(ctx context.Context) ([]store.Document, error)
	Get(ctx context.Context, id, host string, opts ...peer.FetchOption) (store.Document, error)
	Details(ctx context.Context) (peer.Details, error)
}

type CLI struct {
	node Node
	in   io.Reader
	out  io.Writer
	quit func()

	// Progress receives the download bar for get. Nil disables it.
	Progress io.Writer
}

// NewCLI reads commands from in and writes replies to out. quit runs on "exit".
func NewCLI(node Node, in io.Reader, out io.Writer, quit func()) *CLI {
	if quit == nil {
		quit = func() {}
	}
	return &CLI{node: node, in: in, out: out, quit: quit}
}

// Run prompts until EOF, "exit" or ctx is done.
func (c *CLI) Run(ctx context.Context) error {
	sc := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, Prompt)
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		if err := c.RunLine(ctx, sc.Text()); errors.Is(err, io.EOF) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunLine executes one command. Failures are printed as "ERR <message>" and
// returned; "exit" returns io.EOF.
func (c *CLI) RunLine(ctx context.Context, line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return c.fail(err)
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "add":
		return c.add(ctx, args)
	case "lookup":
		return c.lookup(ctx, args)
	case "list":
		return c.list(ctx, args)
	case "get":
		return c.get(ctx, args)
	case "details":
		return c.details(ctx, args)
	case "help":
		c.help()
		return nil
	case "exit", "quit":
		c.quit()
		return io.EOF
	default:
		return c.fail(fmt.Errorf("unknown command %q, try help", cmd))
	}
}

func (c *CLI) add(ctx context.Context, args []string) error {
	args = joinRFC(args)
	if len(args) < 2 {
		return c.fail(errors.New("usage: add ID TITLE"))
	}
	res, err := c.node.Add(ctx, args[0], strings.Join(args[1:], " "))
	return c.printIndex(res, err)
}

func (c *CLI) lookup(ctx context.Context, args []string) error {
	args = joinRFC(args)
	if len(args) < 1 {
		return c.fail(errors.New("usage: lookup ID [TITLE]"))
	}
	res, err := c.node.Lookup(ctx, args[0], strings.Join(args[1:], " "))
	return c.printIndex(res, err)
}

func (c *CLI) list(ctx context.Context, args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "local") {
		docs, err := c.node.LocalDocuments(ctx)
		if err != nil {
			return c.fail(err)
		}
		c.printDocuments(docs)
		return nil
	}

	res, err := c.node.List(ctx)
	if err := c.printIndex(res, err); err != nil {
		return err
	}
	if len(res.Records) == 0 {
		fmt.Fprintln(c.out, "(index is empty)")
	}
	return nil
}

func (c *CLI) get(ctx context.Context, args []string) error {
	args = joinRFC(args)
	if len(args) != 2 {
		return c.fail(errors.New("usage: get ID HOST"))
	}

	var opts []peer.FetchOption
	var bar *progressbar.ProgressBar
	if c.Progress != nil {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(c.Progress),
			progressbar.OptionSetDescription("downloading "+args[0]),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, peer.WithProgress(bar))
	}

	doc, err := c.node.Get(ctx, args[0], args[1], opts...)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		var se *peer.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(c.out, "%s %d %s\n", protocol.Version, se.Status, se.Phrase)
			return err
		}
		return c.fail(err)
	}

	fmt.Fprintf(c.out, "%s %d %s\n", protocol.Version, protocol.StatusOK, protocol.StatusOK.Phrase())
	fmt.Fprintf(c.out, "%s: %s\n", protocol.HeaderLastModified, protocol.FormatTime(doc.LastModified))
	fmt.Fprintf(c.out, "%s: %d\n", protocol.HeaderContentLength, doc.ContentLength)
	fmt.Fprintf(c.out, "%s: %s\n", protocol.HeaderContentType, doc.ContentType)
	fmt.Fprintf(c.out, "saved %s %q\n", doc.ID, doc.Title)
	return nil
}

func (c *CLI) details(ctx context.Context, args []string) error {
	target := "peer"
	if len(args) > 0 {
		target = strings.ToLower(args[0])
	}

	switch target {
	case "peer":
		d, err := c.node.Details(ctx)
		if err != nil {
			return c.fail(err)
		}
		fmt.Fprintf(c.out, "server:    %s\n", d.ServerAddr)
		fmt.Fprintf(c.out, "upload:    %s\n", d.UploadAddr)
		fmt.Fprintf(c.out, "advertise: %s %d\n", d.AdvertiseHost, d.Port)
		fmt.Fprintf(c.out, "os:        %s\n", d.OS)
		fmt.Fprintf(c.out, "documents: %d\n", d.Documents)
		return nil
	case "docs":
		docs, err := c.node.LocalDocuments(ctx)
		if err != nil {
			return c.fail(err)
		}
		for _, d := range docs {
			fmt.Fprintf(c.out, "%s %q %s %d bytes, modified %s\n",
				d.ID, d.Title, d.ContentType, d.ContentLength, protocol.FormatTime(d.LastModified))
		}
		return nil
	default:
		return c.fail(errors.New("usage: details [peer|docs]"))
	}
}

func (c *CLI) help() {
	fmt.Fprint(c.out, `commands:
  add ID TITLE         announce a document (created locally if missing)
  lookup ID [TITLE]    find peers holding ID
  list [local]         list the index, or this peer's documents
  get ID HOST          download ID from HOST
  details [peer|docs]  show this peer or its documents
  help                 show this text
  exit                 leave the index and quit
`)
}

// printIndex writes res as wire text. Non-200 statuses are printed, not failed.
func (c *CLI) printIndex(res *protocol.IndexResponse, err error) error {
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprint(c.out, res.String())
	return nil
}

func (c *CLI) printDocuments(docs []store.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(c.out, "(no local documents)")
		return
	}
	for _, d := range docs {
		fmt.Fprintf(c.out, "%s %s\n", d.ID, d.Title)
	}
}

func (c *CLI) fail(err error) error {
	fmt.Fprintf(c.out, "ERR %v\n", err)
	return err
}

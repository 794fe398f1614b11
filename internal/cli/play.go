package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/ceoorcto/internal/client"
	"github.com/okian/ceoorcto/pkg/logger"
)

type playOptions struct {
	statePath string
	location  string
	dwell     time.Duration
	preload   bool
	analytics bool
}

func newPlayCommand(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play CEO or CTO in the terminal",
		Long: `Two people are shown side by side. Pick the CTO.

Commands at the prompt:
  1, l, left     pick the left person
  2, r, right    pick the right person
  loc <name>     switch category (loc random for everyone)
  reset          start a new game
  q, quit        leave`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.statePath, "state", "", "File that keeps visit flags and cached batches between runs (empty = memory)")
	f.StringVar(&opts.location, "location", "", "Starting category")
	f.DurationVar(&opts.dwell, "dwell", client.DefaultDwell, "How long a result is shown")
	f.BoolVar(&opts.preload, "preload", true, "Check profile images ahead of time and report broken ones")
	f.BoolVar(&opts.analytics, "analytics", false, "Log gameplay events")
	return cmd
}

func runPlay(ctx context.Context, root *rootOptions, opts *playOptions, in io.Reader, out io.Writer) error {
	var storage client.Storage = client.NewMemoryStorage()
	if opts.statePath != "" {
		fs, err := client.OpenFileStorage(opts.statePath)
		if err != nil {
			return err
		}
		storage = fs
	}

	api, err := client.NewHTTPClient(root.url)
	if err != nil {
		return err
	}
	log := logger.Named("play")

	flusher := client.NewAsyncFlusher(ctx, api, client.WithFlushLogger(log))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := flusher.Close(closeCtx); err != nil {
			log.Warn(closeCtx, "stats not submitted", logger.Error(err))
		}
	}()

	var sessionOpts []client.SessionOption
	if opts.preload {
		loader := imageLoader(root.url, client.HTTPImageLoader{Client: &http.Client{Timeout: 5 * time.Second}})
		sessionOpts = append(sessionOpts, client.WithPreloader(client.NewPreloader(loader, client.WithAssetReporter(api))))
	}
	session := client.NewSession(storage, sessionOpts...)

	var analytics client.Analytics = client.NopAnalytics{}
	if opts.analytics {
		analytics = client.NewLogAnalytics(log)
	}
	c := client.NewController(session, api,
		client.WithFlusher(flusher),
		client.WithAnalytics(analytics),
		client.WithLocation(opts.location),
		client.WithDwell(opts.dwell),
		client.WithLogger(log),
	)
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	lines := bufio.NewScanner(in)
	for {
		v, err := c.Await(ctx, settled)
		if err != nil {
			return err
		}
		renderView(out, v)
		if !lines.Scan() {
			return lines.Err()
		}
		word, arg, _ := strings.Cut(strings.TrimSpace(lines.Text()), " ")
		switch strings.ToLower(word) {
		case "1", "l", "left":
			err = pick(out, c, client.Left)
		case "2", "r", "right":
			err = pick(out, c, client.Right)
		case "loc", "location":
			err = c.SetLocation(arg)
		case "reset", "n", "new":
			err = c.Reset()
		case "q", "quit", "exit":
			fmt.Fprintf(out, "Bye. Final streak %d.\n", c.View().Streak)
			return nil
		default:
			fmt.Fprintln(out, "Type 1 or 2 to pick, reset, loc <name> or q.")
		}
		if err != nil && !errors.Is(err, client.ErrSelectionIgnored) {
			return err
		}
	}
}

// settled accepts views that wait on the player.
func settled(v client.View) bool {
	switch {
	case v.Err != nil, v.State == client.StateGameOver:
		return true
	case v.State == client.StateDisplaying:
		return v.Result == nil
	}
	return false
}

func pick(out io.Writer, c *client.Controller, side client.Side) error {
	res, err := c.Select(side)
	if err != nil {
		return err
	}
	renderResult(out, res)
	return nil
}

// imageLoader resolves the server's relative image paths before loading.
func imageLoader(base string, next client.ImageLoader) client.ImageLoader {
	baseURL, err := url.Parse(base)
	return client.ImageLoaderFunc(func(ctx context.Context, raw string) error {
		ref, perr := url.Parse(raw)
		if perr != nil {
			return perr
		}
		if err == nil && !ref.IsAbs() {
			ref = baseURL.ResolveReference(ref)
		}
		return next.Load(ctx, ref.String())
	})
}

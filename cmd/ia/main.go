package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigbass1997/iars"
	"github.com/urfave/cli"
	"gocloud.dev/blob"

	// object storage drivers for the mirror command
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	ErrInternal = 1
	ErrBadUsage = 2
)

func main() {
	err := _main(os.Args)
	if err == nil {
		os.Exit(0)
	}

	fmt.Fprintln(os.Stderr, err)
	if ecErr, ok := err.(cli.ExitCoder); ok {
		os.Exit(ecErr.ExitCode())
	}
	os.Exit(ErrInternal)
}

func _main(args []string) error {
	// We're going to take care of exiting ourselves
	cli.OsExiter = func(c int) {}

	app := cli.NewApp()

	app.Name = "ia"
	app.Version = "0.1.0"
	app.Usage = "interact with Internet Archive items and tasks"

	app.OnUsageError = func(c *cli.Context, err error, isSubcommand bool) error {
		return cli.NewExitError(err, ErrBadUsage)
	}

	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		if c.NArg() == 0 {
			return cli.NewExitError("must specify command", ErrBadUsage)
		}
		return cli.NewExitError(fmt.Sprintf("%s is not a command", c.Args().Get(0)), ErrBadUsage)
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "access-key",
			EnvVar: "IAS3_ACCESS_KEY,AWS_ACCESS_KEY_ID",
			Usage:  "set IAS3 access key to `ACCESS_KEY`",
		},
		cli.StringFlag{
			Name:   "secret-key",
			EnvVar: "IAS3_SECRET_KEY,AWS_SECRET_ACCESS_KEY",
			Usage:  "set IAS3 secret key to `SECRET_KEY`",
		},
		cli.StringFlag{
			Name:   "config, c",
			EnvVar: "IA_CONFIG",
			Usage:  "load keys from YAML `FILE`",
		},
		cli.StringFlag{
			Name:  "user-agent",
			Usage: "override the User-Agent header",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "upload",
			Aliases:   []string{"u"},
			Usage:     "upload a local file to an item",
			ArgsUsage: "IDENTIFIER FILE",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "remote, r",
					Usage: "store the file at `PATH` within the item (defaults to the file's base name)",
				},
				cli.StringFlag{
					Name:  "content-type",
					Usage: "set the Content-Type of the upload to `TYPE`",
				},
				cli.StringSliceFlag{
					Name:  "meta, m",
					Usage: "add item metadata `KEY:VALUE` (repeatable; only applied when the upload creates the item)",
				},
				cli.BoolFlag{
					Name:  "no-derive",
					Usage: "do not queue a derive task after the upload",
				},
				cli.BoolFlag{
					Name:  "no-create",
					Usage: "fail instead of creating the item when it does not exist",
				},
				cli.BoolFlag{
					Name:  "keep-old",
					Usage: "keep a backup of any file the upload replaces",
				},
			},
			Action: upload,
		},
		{
			Name:      "download",
			Aliases:   []string{"d"},
			Usage:     "download a file from an item",
			ArgsUsage: "IDENTIFIER PATH",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "output, o",
					Usage: "`FILENAME` to write output to.  If not provided, Standard Output will be assumed",
				},
			},
			Action: download,
		},
		{
			Name:      "list",
			Aliases:   []string{"ls"},
			Usage:     "list the files within an item",
			ArgsUsage: "IDENTIFIER",
			Action:    list,
		},
		{
			Name:      "delete",
			Usage:     "delete a file from an item",
			ArgsUsage: "IDENTIFIER PATH",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "cascade",
					Usage: "also delete files derived from this one",
				},
				cli.BoolFlag{
					Name:  "keep-old",
					Usage: "keep a backup of the deleted file",
				},
			},
			Action: remove,
		},
		{
			Name:      "metadata",
			Aliases:   []string{"md"},
			Usage:     "print an item's metadata record as JSON",
			ArgsUsage: "IDENTIFIER",
			Action:    metadata,
		},
		{
			Name:  "tasks",
			Usage: "search catalog tasks",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "identifier, i",
					Usage: "only tasks for item `IDENTIFIER` (wildcards * and % allowed)",
				},
				cli.StringFlag{
					Name:  "cmd",
					Usage: "only tasks running `COMMAND` (e.g. derive.php)",
				},
				cli.StringFlag{
					Name:  "status",
					Usage: "only tasks in `STATUS` (queued, running, error, paused)",
				},
				cli.BoolFlag{
					Name:  "history",
					Usage: "include completed tasks (requires --identifier)",
				},
				cli.IntFlag{
					Name:  "limit",
					Usage: "rows per page, up to 500",
					Value: 50,
				},
			},
			Action: tasks,
		},
		{
			Name:      "task-log",
			Usage:     "print the log of a single task",
			ArgsUsage: "TASK_ID",
			Action:    taskLog,
		},
		{
			Name:      "submit",
			Usage:     "queue a task against an item",
			ArgsUsage: "IDENTIFIER COMMAND",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "arg, a",
					Usage: "command argument `KEY=VALUE` (repeatable)",
				},
				cli.IntFlag{
					Name:  "priority, p",
					Usage: "task priority, -10 through 10",
				},
			},
			Action: submit,
		},
		{
			Name:      "mirror",
			Usage:     "copy all of an item's files into an object storage bucket",
			ArgsUsage: "IDENTIFIER BUCKET_URL",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "prefix",
					Usage: "store objects under `PREFIX` within the bucket",
				},
				cli.BoolFlag{
					Name:  "force, f",
					Usage: "re-copy files that already exist in the bucket with the right size",
				},
			},
			Action: mirror,
		},
	}

	return app.Run(args)
}

// credentials resolves the access/secret key pair and user agent
// from flags, environment, and the optional config file, in that
// order. creds is nil when no complete key pair is available.
func credentials(c *cli.Context) (creds *iars.Credentials, userAgent string, err error) {
	pair := iars.Credentials{
		Access: c.GlobalString("access-key"),
		Secret: c.GlobalString("secret-key"),
	}
	userAgent = c.GlobalString("user-agent")

	if path := c.GlobalString("config"); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		if pair.Access == "" {
			pair.Access = cfg.AccessKey
		}
		if pair.Secret == "" {
			pair.Secret = cfg.SecretKey
		}
		if userAgent == "" {
			userAgent = cfg.UserAgent
		}
	}

	if pair.Access == "" || pair.Secret == "" {
		return nil, userAgent, nil
	}
	return &pair, userAgent, nil
}

// item builds an Item from the first positional argument, with
// whatever credentials are available.
func item(c *cli.Context) (*iars.Item, error) {
	ident := c.Args().Get(0)
	if ident == "" {
		return nil, cli.NewExitError("missing item identifier", ErrBadUsage)
	}

	it, err := iars.NewItem(ident)
	if err != nil {
		return nil, cli.NewExitError(err, ErrBadUsage)
	}

	creds, ua, err := credentials(c)
	if err != nil {
		return nil, cli.NewExitError(err, ErrBadUsage)
	}
	it.WithCredentials(creds).WithUserAgent(ua)
	return it, nil
}

func upload(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: ia upload IDENTIFIER FILE", ErrBadUsage)
	}

	it, err := item(c)
	if err != nil {
		return err
	}
	it.WithKeepOldVersions(c.Bool("keep-old"))

	f, err := os.Open(c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	defer f.Close()

	ino, err := f.Stat()
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	if !ino.Mode().IsRegular() {
		return cli.NewExitError(fmt.Sprintf("can't upload file of type %s", ino.Mode()), ErrBadUsage)
	}

	remote := c.String("remote")
	if remote == "" {
		remote = filepath.Base(f.Name())
	}

	meta := make(map[string]string)
	for _, pair := range c.StringSlice("meta") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			return cli.NewExitError(fmt.Sprintf("metadata %q is not KEY:VALUE", pair), ErrBadUsage)
		}
		meta[k] = v
	}

	err = it.Upload(&iars.UploadRequest{
		Path:           remote,
		Body:           f,
		Size:           ino.Size(),
		ContentType:    c.String("content-type"),
		Metadata:       meta,
		AutoMakeBucket: !c.Bool("no-create"),
		Derive:         !c.Bool("no-derive"),
	})
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}

	fmt.Printf("https://archive.org/download/%s/%s\n", it.Identifier(), remote)
	return nil
}

func download(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: ia download IDENTIFIER PATH", ErrBadUsage)
	}

	it, err := item(c)
	if err != nil {
		return err
	}

	f, err := it.Download(c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	defer f.Body.Close()

	out := io.Writer(os.Stdout)
	if name := c.String("output"); name != "" {
		of, err := os.Create(name)
		if err != nil {
			return cli.NewExitError(err, ErrInternal)
		}
		defer of.Close()
		out = of
	}

	if _, err := io.Copy(out, f.Body); err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	return nil
}

func list(c *cli.Context) error {
	it, err := item(c)
	if err != nil {
		return err
	}

	files, err := it.List()
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	for i := range files {
		fmt.Printf("%12d  %s  %s\n", files[i].Size, files[i].LastModified, files[i].Path)
	}
	return nil
}

func remove(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: ia delete IDENTIFIER PATH", ErrBadUsage)
	}

	it, err := item(c)
	if err != nil {
		return err
	}
	it.WithKeepOldVersions(c.Bool("keep-old")).WithCascadeDelete(c.Bool("cascade"))

	if err := it.Delete(c.Args().Get(1)); err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	return nil
}

func metadata(c *cli.Context) error {
	it, err := item(c)
	if err != nil {
		return err
	}

	meta, err := it.Metadata()
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	return nil
}

func parseStatus(name string) (iars.TaskStatus, error) {
	switch name {
	case "queued":
		return iars.TaskQueued, nil
	case "running":
		return iars.TaskRunning, nil
	case "error":
		return iars.TaskError, nil
	case "paused":
		return iars.TaskPaused, nil
	}
	return 0, fmt.Errorf("unknown task status %q", name)
}

func tasks(c *cli.Context) error {
	creds, ua, err := credentials(c)
	if err != nil {
		return cli.NewExitError(err, ErrBadUsage)
	}

	search := iars.SearchTasks().
		WithCredentials(creds).
		WithUserAgent(ua).
		WithCategories(true, true, c.Bool("history")).
		WithLimit(c.Int("limit"))

	if ident := c.String("identifier"); ident != "" {
		search.ForIdentifier(ident)
	}
	if cmd := c.String("cmd"); cmd != "" {
		search.ForCommand(cmd)
	}
	if name := c.String("status"); name != "" {
		status, err := parseStatus(name)
		if err != nil {
			return cli.NewExitError(err, ErrBadUsage)
		}
		search.ForStatus(status)
	}

	cursor := ""
	for {
		page, err := search.Do(cursor)
		if err != nil {
			return cli.NewExitError(err, ErrInternal)
		}

		if cursor == "" && page.Summary != nil {
			s := page.Summary
			fmt.Printf("queued %d  running %d  error %d  paused %d\n",
				s.Queued, s.Running, s.Error, s.Paused)
		}
		for i := range page.Catalog {
			tk := &page.Catalog[i]
			fmt.Printf("%10d  %-7s  %-16s  %s  %s\n",
				tk.TaskID, tk.Status, tk.Cmd, tk.SubmitTime, tk.Identifier)
		}
		for i := range page.History {
			tk := &page.History[i]
			fmt.Printf("%10d  %-7s  %-16s  %s  %s\n",
				tk.TaskID, "done", tk.Cmd, tk.SubmitTime, tk.Identifier)
		}

		if page.Cursor == "" {
			return nil
		}
		cursor = page.Cursor
	}
}

func taskLog(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: ia task-log TASK_ID", ErrBadUsage)
	}

	var id int64
	if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &id); err != nil {
		return cli.NewExitError(fmt.Sprintf("bad task id %q", c.Args().Get(0)), ErrBadUsage)
	}

	creds, _, err := credentials(c)
	if err != nil {
		return cli.NewExitError(err, ErrBadUsage)
	}

	log, err := iars.TaskLog(id, creds)
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	fmt.Print(log)
	return nil
}

func submit(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: ia submit IDENTIFIER COMMAND", ErrBadUsage)
	}

	creds, _, err := credentials(c)
	if err != nil {
		return cli.NewExitError(err, ErrBadUsage)
	}

	args := make(map[string]string)
	for _, pair := range c.StringSlice("arg") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return cli.NewExitError(fmt.Sprintf("argument %q is not KEY=VALUE", pair), ErrBadUsage)
		}
		args[k] = v
	}

	id, err := iars.SubmitTask(
		c.Args().Get(0),
		iars.CustomCommand(c.Args().Get(1), args),
		c.Int("priority"),
		creds,
	)
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	fmt.Println(id)
	return nil
}

func mirror(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: ia mirror IDENTIFIER BUCKET_URL", ErrBadUsage)
	}

	it, err := item(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	defer bucket.Close()

	n, err := mirrorItem(ctx, it, bucket, c.String("prefix"), c.Bool("force"), os.Stderr)
	if err != nil {
		return cli.NewExitError(err, ErrInternal)
	}
	fmt.Fprintf(os.Stderr, "mirrored %d file(s)\n", n)
	return nil
}

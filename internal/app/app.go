package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/connectcg/friendsync/internal/config"
	"github.com/connectcg/friendsync/internal/db"
	"github.com/connectcg/friendsync/internal/export"
	"github.com/connectcg/friendsync/internal/friends"
	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/session"
	"github.com/connectcg/friendsync/internal/storage"
)

// Run executes the friendsync command line with args.
func Run(ctx context.Context, args []string) error {
	return Execute(ctx, args, os.Stdout, os.Stderr)
}

// Execute runs the command tree with explicit output streams.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, c := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer c.close()
	return root.ExecuteContext(ctx)
}

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	cfg         config.Config
	logger      *slog.Logger
	deps        *dependencies
	cleanup     func() error
	dumpMetrics bool
}

func newRootCommand() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "friendsync",
		Short:         "Browse and manage friends and friend requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.dumpMetrics && c.deps != nil {
				return writeMetrics(cmd.OutOrStdout(), c.deps)
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.dumpMetrics, "metrics", false, "print client metrics after the command")

	root.AddCommand(
		c.friendsCommand(),
		c.requestsCommand(),
		c.decideCommand("accept", "Accept a pending friend request", true),
		c.decideCommand("reject", "Reject a pending friend request", false),
		c.unfriendCommand(),
		c.addCommand(),
		c.profileCommand(),
		c.exportCommand(),
		c.logoutCommand(),
		c.migrateCommand(),
	)
	return root, c
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	slog.SetDefault(c.logger)

	ctx := logging.WithLogger(cmd.Context(), c.logger)
	cmd.SetContext(ctx)

	if cmd.Name() == "migrate" {
		return nil
	}
	deps, cleanup, err := buildDependencies(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	c.deps, c.cleanup = deps, cleanup
	return nil
}

func (c *cli) close() {
	if c.cleanup == nil {
		return
	}
	if err := c.cleanup(); err != nil && c.logger != nil {
		c.logger.Warn("close snapshot store", slog.String("error", err.Error()))
	}
	c.cleanup = nil
}

// initSession loads the profile snapshot and the pending request set.
func (c *cli) initSession(cmd *cobra.Command) error {
	return c.deps.session.Init(cmd.Context())
}

// initForListing is initSession for commands that never show the friend
// count: a profile failure only costs the viewer id fallback.
func (c *cli) initForListing(cmd *cobra.Command) error {
	err := c.initSession(cmd)
	if err == nil || errors.Is(err, session.ErrClosed) {
		return err
	}
	logging.FromContext(cmd.Context()).Warn("listing without profile snapshot", slog.String("error", err.Error()))
	return nil
}

// initWithRequests is initSession for commands that act on the pending set,
// which is fetched again when Init could not load it.
func (c *cli) initWithRequests(cmd *cobra.Command) error {
	if err := c.initSession(cmd); err != nil {
		return err
	}
	return c.deps.session.EnsureRequests(cmd.Context())
}

type listFlags struct {
	name   string
	gender string
	city   string
	pages  int
}

func (f *listFlags) register(cmd *cobra.Command, defaultPages int) {
	cmd.Flags().StringVar(&f.name, "name", "", "only friends whose name contains this text")
	cmd.Flags().StringVar(&f.gender, "gender", "", "gender filter forwarded to the service")
	cmd.Flags().StringVar(&f.city, "city", "", "city id filter forwarded to the service")
	cmd.Flags().IntVar(&f.pages, "pages", defaultPages, "maximum number of pages to load (0 loads all)")
}

func (f listFlags) filter() models.Filter {
	return models.Filter{Name: f.name, Gender: f.gender, CityID: f.city}
}

// loadView opens a friends view and pages through it up to flags.pages.
func (c *cli) loadView(cmd *cobra.Command, args []string, flags listFlags) (*friends.Store, error) {
	var subject *string
	if len(args) > 0 {
		subject = &args[0]
	}

	view, err := c.deps.session.OpenFriends(subject, flags.filter())
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if err := view.Load(ctx); err != nil {
		return nil, err
	}
	for loaded := 1; view.State().HasMore && (flags.pages <= 0 || loaded < flags.pages); loaded++ {
		if err := view.LoadMore(ctx); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func (c *cli) friendsCommand() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "friends [subject-id]",
		Short: "List your friends or another user's friends",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initForListing(cmd); err != nil {
				return err
			}
			view, err := c.loadView(cmd, args, flags)
			if err != nil {
				return err
			}
			defer c.deps.session.CloseFriends(view)
			return printFriends(cmd.OutOrStdout(), view.State())
		},
	}
	flags.register(cmd, 1)
	return cmd
}

func (c *cli) requestsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requests",
		Short: "List pending inbound friend requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.initWithRequests(cmd); err != nil {
				return err
			}
			return printRequests(cmd.OutOrStdout(), c.deps.session.Requests().Requests())
		},
	}
}

func (c *cli) decideCommand(use, short string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initWithRequests(cmd); err != nil {
				return err
			}
			sess := c.deps.session
			decide := sess.RejectRequest
			if accept {
				decide = sess.AcceptRequest
			}
			if err := decide(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sed request %s, friends: %d\n", use, args[0], sess.Profile().FriendsCount())
			return nil
		},
	}
}

func (c *cli) unfriendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unfriend <friend-id>",
		Short: "Remove a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initSession(cmd); err != nil {
				return err
			}
			sess := c.deps.session
			if err := sess.Unfriend(cmd.Context(), nil, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed friend %s, friends: %d\n", args[0], sess.Profile().FriendsCount())
			return nil
		},
	}
}

func (c *cli) addCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id>",
		Short: "Send a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.deps.session.SendRequest(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent friend request to %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) profileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the cached profile snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.initSession(cmd); err != nil {
				return err
			}
			snap, ok := c.deps.session.Profile().Snapshot()
			if !ok {
				return errors.New("no profile snapshot available")
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "id\t%s\n", snap.UserID)
			fmt.Fprintf(w, "name\t%s\n", snap.FullName)
			fmt.Fprintf(w, "username\t%s\n", snap.Username)
			fmt.Fprintf(w, "friends\t%d\n", snap.FriendsCount)
			fmt.Fprintf(w, "updated\t%s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05"))
			return w.Flush()
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var (
		flags listFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export [subject-id]",
		Short: "Write a friends list and pending requests to an xlsx file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initForListing(cmd); err != nil {
				return err
			}
			view, err := c.loadView(cmd, args, flags)
			if err != nil {
				return err
			}
			defer c.deps.session.CloseFriends(view)

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := export.WriteFriends(file, view.State(), c.deps.session.Requests().Requests()); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d friends to %s\n", len(view.State().Items), out)
			return nil
		},
	}
	flags.register(cmd, 0)
	cmd.Flags().StringVarP(&out, "out", "o", "friends.xlsx", "output file")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached profile and pending requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.deps.session.Teardown(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the snapshot table for the postgres backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Snapshot.Backend != config.BackendPostgres {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to migrate for the %s backend\n", c.cfg.Snapshot.Backend)
				return nil
			}
			ctx := cmd.Context()
			pool, err := db.Connect(ctx, c.cfg.Snapshot.DatabaseURL, 1)
			if err != nil {
				return err
			}
			store := storage.NewPostgresStore(pool)
			defer store.Close()

			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "kv_store ready")
			return nil
		},
	}
}

func printFriends(out io.Writer, state friends.State) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUSERNAME\tSTATUS\tREQUEST")
	for _, item := range state.Items {
		request := ""
		if item.IsRequestReceiver != nil {
			if *item.IsRequestReceiver {
				request = "received " + item.RequestID
			} else {
				request = "sent"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.FullName, item.Username, item.RelationshipStatus, request)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	more := ""
	if state.HasMore {
		more = " (more available)"
	}
	_, err := fmt.Fprintf(out, "%d friends%s\n", len(state.Items), more)
	return err
}

func printRequests(out io.Writer, requests []models.FriendRequest) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST\tSENDER\tNAME\tUSERNAME")
	for _, req := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", req.RequestID, req.SenderID, req.SenderFullName, req.SenderUsername)
	}
	return w.Flush()
}

func writeMetrics(out io.Writer, deps *dependencies) error {
	families, err := deps.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

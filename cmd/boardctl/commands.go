package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"board-go-server/internal/client"
	"board-go-server/internal/collection"
	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app 一次命令执行需要的依赖
type app struct {
	apiURL  string
	token   string
	lang    string
	timeout time.Duration

	client  *client.Client
	store   *optimistic.Store
	mutator *optimistic.Mutator
	center  *notify.Center
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()
	a := &app{}

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Manage boards and users from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.apiURL, "api", envOr("BOARD_API_URL", "http://localhost:8080"), "board server base URL")
	root.PersistentFlags().StringVar(&a.token, "token", os.Getenv("BOARD_TOKEN"), "session token")
	root.PersistentFlags().StringVar(&a.lang, "lang", envOr("BOARD_LANG", "en"), "message language (en, zh)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", optimistic.DefaultTimeout, "timeout for each remote write")

	root.AddCommand(a.boardsCmd(), a.usersCmd())
	return root
}

func (a *app) init(stderr io.Writer) error {
	c, err := client.New(a.apiURL, a.token)
	if err != nil {
		return err
	}
	a.client = c
	a.store = optimistic.NewStore()
	a.center = notify.NewCenter(notify.SinkFunc(func(n notify.Notice) {
		fmt.Fprintf(stderr, "%s: %s\n", n.Kind, n.Body)
	}), notify.ParseLanguage(a.lang))
	a.mutator = optimistic.NewMutator(a.store, optimistic.WithNotifier(a.center), optimistic.WithTimeout(a.timeout))
	return nil
}

// ================= boards =================

func (a *app) boardsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "boards", Short: "List and edit boards"}

	var (
		search     string
		visibility string
		mine       bool
		limit      int
		all        bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List boards, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if visibility != "" {
				params["visibility"] = visibility
			}
			if mine {
				params["mine"] = "true"
			}
			items, err := a.collect(cmd.Context(), "boards", a.client.BoardsFetcher(), collection.Filter{Search: search, Params: params}, limit, all)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tVISIBILITY\tOWNER")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", it.ID, it.Fields["title"], it.Fields["visibility"], it.Fields["ownerId"])
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&search, "search", "", "title search")
	list.Flags().StringVar(&visibility, "visibility", "", "public or private")
	list.Flags().BoolVar(&mine, "mine", false, "only boards I own")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().BoolVar(&all, "all", false, "follow every page")

	setVisibility := &cobra.Command{
		Use:   "set-visibility <boardId> <public|private>",
		Short: "Change a board's visibility",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editBoard(cmd, args[0], "visibility", args[1])
		},
	}

	setPermission := &cobra.Command{
		Use:   "set-permission <boardId> <whoCanChat|whoCanAddNotes|whoCanEdit> <audience>",
		Short: "Change who may chat, add notes or edit on a board",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editBoard(cmd, args[0], "permissions."+args[1], args[2])
		},
	}

	cmd.AddCommand(list, setVisibility, setPermission)
	return cmd
}

func (a *app) editBoard(cmd *cobra.Command, boardID, path string, value any) error {
	board, err := a.client.GetBoard(cmd.Context(), boardID)
	if err != nil {
		return err
	}
	a.store.Put(boardID, board.Fields(), board.UpdatedAt)

	return a.apply(cmd, optimistic.Mutation{
		TargetID:  boardID,
		FieldPath: path,
		Next:      value,
		Persist:   a.client.BoardPersist(boardID, path, value),
	})
}

// ================= users =================

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "List users and manage roles (admin only)"}

	var (
		search string
		role   string
		limit  int
		all    bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if role != "" {
				params["role"] = role
			}
			items, err := a.collect(cmd.Context(), "users", a.client.UsersFetcher(), collection.Filter{Search: search, Params: params}, limit, all)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tSUSPENDED")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\n", it.ID, it.Fields["name"], it.Fields["email"], it.Fields["role"], it.Fields["suspended"])
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&search, "search", "", "name prefix")
	list.Flags().StringVar(&role, "role", "", "student, teacher or admin")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().BoolVar(&all, "all", false, "follow every page")

	setRole := &cobra.Command{
		Use:   "set-role <userId> <student|teacher|admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editUser(cmd, args[0], "role", args[1])
		},
	}

	var undo bool
	suspend := &cobra.Command{
		Use:   "suspend <userId>",
		Short: "Suspend a user, or reactivate with --undo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editUser(cmd, args[0], "suspended", !undo)
		},
	}
	suspend.Flags().BoolVar(&undo, "undo", false, "reactivate instead of suspending")

	cmd.AddCommand(list, setRole, suspend)
	return cmd
}

func (a *app) editUser(cmd *cobra.Command, userID, path string, value any) error {
	a.store.Put(userID, optimistic.Fields{}, time.Time{})

	return a.apply(cmd, optimistic.Mutation{
		TargetID:  userID,
		FieldPath: path,
		Next:      value,
		Persist:   a.client.UserPersist(userID, path, value),
	})
}

// ================= 公共 =================

// apply 发起修改并等待结算，回滚时返回错误（提示已经由 Center 输出）
func (a *app) apply(cmd *cobra.Command, mut optimistic.Mutation) error {
	intent, err := a.mutator.Apply(cmd.Context(), mut)
	if err != nil {
		return err
	}
	if err := intent.Wait(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", mut.TargetID, mut.FieldPath, intent.Value())
	return nil
}

// collect 加载一页，all 为 true 时一直翻到最后一页
func (a *app) collect(ctx context.Context, name string, fetcher collection.Fetcher, filter collection.Filter, limit int, all bool) ([]collection.Item, error) {
	view := collection.NewView(name, fetcher,
		collection.WithPageSize(limit),
		collection.WithNotifier(a.center),
	)
	defer view.Close()

	if err := view.LoadInitial(ctx, filter); err != nil {
		return nil, err
	}
	for all && view.HasMore() {
		if err := view.LoadMore(ctx); err != nil {
			return nil, err
		}
	}
	return view.Items(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

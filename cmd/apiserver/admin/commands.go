package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"connect-go/internal/lock"
	"connect-go/internal/models"
	"connect-go/internal/services"
	"connect-go/internal/storage"
)

type dbOpener func(configPath string) (*gorm.DB, error)

type rootOptions struct {
	configPath string
	jsonOutput bool
	open       dbOpener
	db         *gorm.DB
}

// newRootCmd 构建管理命令。open 可在测试中替换为 SQLite。
func newRootCmd(open dbOpener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maintenance commands for the connection service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.open(opts.configPath)
			if err != nil {
				return err
			}
			opts.db = db
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newMigrateCmd(opts),
		newReconcileCmd(opts),
		newFeedCmd(opts),
		newShowUserCmd(opts),
	)
	return root
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.AutoMigrateTables(opts.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <requestID>...",
		Short: "Re-apply the side effects of resolved connection requests",
		Long: `Removes stale active-list entries of each resolved request and, for accepted
requests, makes sure both directions of the connection exist. Pending requests
are left untouched. Safe to run repeatedly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger := services.NewConnectionRequestService(opts.db, lock.NewLocalPairLocker(0), nil, nil)
			var failed []string
			for _, arg := range args {
				id, err := storage.ParseID(arg)
				if err != nil {
					return fmt.Errorf("无效的请求ID %q: %w", arg, err)
				}
				if err := ledger.Reconcile(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "request %d: %v\n", id, err)
					failed = append(failed, arg)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "request %d reconciled\n", id)
			}
			if len(failed) > 0 {
				return fmt.Errorf("reconcile failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newFeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <userID>",
		Short: "Print the discovery feed computed for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := storage.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("无效的用户ID: %w", err)
			}
			users, err := services.NewFeedService(opts.db, nil).ComputeFeed(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), users)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "用户 %d 的推荐列表 (%d 人):\n", userID, len(users))
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d\t%s %s\t%s\n", u.ID, u.FirstName, u.LastName, u.Email)
			}
			return nil
		},
	}
}

// userReport is what show-user prints.
type userReport struct {
	User        models.UserPublic        `json:"user"`
	Connections []models.UserPublic      `json:"connections"`
	Received    []models.RequestWithUser `json:"receivedRequests"`
	Sent        []models.RequestWithUser `json:"sentRequests"`
}

func newShowUserCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show-user <userID>",
		Short: "Show a user's profile, connections and active requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := storage.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("无效的用户ID: %w", err)
			}
			ctx := cmd.Context()
			profile, err := services.NewUserService(storage.NewGormUserRepository(opts.db)).GetProfile(ctx, userID)
			if err != nil {
				return err
			}
			report := userReport{User: *profile}
			if report.Connections, err = services.NewFeedService(opts.db, nil).ListConnections(ctx, userID); err != nil {
				return err
			}
			ledger := services.NewConnectionRequestService(opts.db, nil, nil, nil)
			if report.Received, err = ledger.ListReceived(ctx, userID); err != nil {
				return err
			}
			if report.Sent, err = ledger.ListSent(ctx, userID); err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "用户 %d 信息:\n", userID)
			fmt.Fprintln(out, "--------------------------------------")
			fmt.Fprintf(out, "姓名: %s %s\n", profile.FirstName, profile.LastName)
			fmt.Fprintf(out, "邮箱: %s\n", profile.Email)
			fmt.Fprintf(out, "注册时间: %s\n", profile.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "连接数: %d\n", len(report.Connections))
			fmt.Fprintf(out, "待处理 (收到/发出): %d/%d\n", len(report.Received), len(report.Sent))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

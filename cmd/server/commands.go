package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/logger"
	"github.com/inkwell/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func openDatabase(opts *rootOptions) (*gorm.DB, error) {
	gdb, err := db.Open(opts.cfg.DatabasePath, logger.GormLevel(opts.cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return gdb, nil
}

func closeDatabase(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer closeDatabase(gdb)

			opts.log.Info().Str("path", opts.cfg.DatabasePath).Msg("schema migrated")
			return nil
		},
	}
}

type createUserOptions struct {
	Fullname string
	Email    string
	Password string
}

// newCreateUserCommand 创建初始账号，已存在相同邮箱时跳过
func newCreateUserCommand(opts *rootOptions) *cobra.Command {
	flags := &createUserOptions{}

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account if the email is not registered yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer closeDatabase(gdb)

			user, created, err := service.NewUserService(gdb).EnsureUser(cmd.Context(), service.SignupInput{
				Fullname: flags.Fullname,
				Email:    flags.Email,
				Password: flags.Password,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "user %s already exists\n", user.Username)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Fullname, "fullname", "", "display name (required)")
	cmd.Flags().StringVar(&flags.Email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&flags.Password, "password", "", "login password (required)")
	_ = cmd.MarkFlagRequired("fullname")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// newSweepTagsCommand 回收没有任何文章引用的标签
func newSweepTagsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-tags",
		Short: "Delete tags no post references anymore",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer closeDatabase(gdb)

			ctx := opts.log.WithContext(cmd.Context())
			result, err := service.NewTagService(gdb, nil).SweepOrphans(ctx)
			opts.log.Info().
				Int("deleted", len(result.Deleted)).
				Int("kept", len(result.Kept)).
				Int("failed", len(result.Failed)).
				Msg("tag sweep finished")
			if err != nil {
				return fmt.Errorf("sweep tags: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d tags\n", len(result.Deleted))
			return nil
		},
	}
}

type seedPost struct {
	title       string
	description string
	content     string
	tags        []string
}

// 示例文章
var seedPosts = []seedPost{
	{
		title:       "Building Fast Web Services in Go",
		description: "Framework choice, profiling and a few lessons from production.",
		content:     "## Why Go\n\nGo handles thousands of concurrent requests with very little ceremony.\n\n- goroutines\n- a small standard library surface\n- fast builds",
		tags:        []string{"go", "web", "performance"},
	},
	{
		title:       "Markdown Editors Compared",
		description: "What to look for when embedding an editor in a blog.",
		content:     "Editors differ mostly in **paste handling** and image uploads.\n\n| Editor | Tables |\n|---|---|\n| EasyMDE | yes |",
		tags:        []string{"web", "tools"},
	},
	{
		title:       "SQLite in Production",
		description: "WAL mode, busy timeouts and when to move on.",
		content:     "SQLite is a great default for single-node services.\n\nSet `_busy_timeout` and keep transactions short.",
		tags:        []string{"database", "go"},
	},
	{
		title:       "Notes on Writing",
		description: "Keeping a steady publishing habit.",
		content:     "Write small, publish often, revise later.",
		tags:        []string{"life"},
	},
}

type seedOptions struct {
	Email    string
	Password string
}

// newSeedCommand 生成演示数据，重复执行不会产生重复文章
func newSeedCommand(opts *rootOptions) *cobra.Command {
	flags := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with a demo author and posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDatabase(opts)
			if err != nil {
				return err
			}
			defer closeDatabase(gdb)

			created, err := seedDemoData(opts.log.WithContext(cmd.Context()), gdb, flags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d posts\n", created)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Email, "email", "demo@inkwell.local", "demo author email")
	cmd.Flags().StringVar(&flags.Password, "password", "Demo#2024pass", "demo author password")

	return cmd
}

func seedDemoData(ctx context.Context, gdb *gorm.DB, flags *seedOptions) (int, error) {
	author, _, err := service.NewUserService(gdb).EnsureUser(ctx, service.SignupInput{
		Fullname: "Demo Author",
		Email:    flags.Email,
		Password: flags.Password,
	})
	if err != nil {
		return 0, fmt.Errorf("seed author: %w", err)
	}

	posts := service.NewPostService(gdb, service.NewTagService(gdb, nil), nil)
	draft := false
	created := 0
	for _, p := range seedPosts {
		_, err := posts.Create(ctx, service.PostInput{
			UserID:      author.ID,
			Title:       p.title,
			Description: p.description,
			Content:     p.content,
			Format:      service.FormatMarkdown,
			Tags:        p.tags,
			Draft:       &draft,
		})
		if errors.Is(err, service.ErrPostTitleTaken) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed post %q: %w", p.title, err)
		}
		created++
	}
	return created, nil
}

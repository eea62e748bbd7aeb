package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"board-go-server/bootstrap"
	"board-go-server/domain/entity"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// models 按删除顺序排列：先删引用用户的表，最后删 users
var models = []any{&entity.Notification{}, &entity.Board{}, &entity.User{}}

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func newCmd() *cobra.Command {
	var (
		force    bool
		truncate bool
		only     []string
	)

	cmd := &cobra.Command{
		Use:          "cleardb",
		Short:        "Delete every row from the board server tables (development only)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := bootstrap.LoadEnv()
			if env.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			db := bootstrap.NewDatabase(env.DatabaseURL)

			tables, err := selectTables(tableNames(db), only)
			if err != nil {
				return err
			}
			if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), tables) {
				fmt.Fprintln(cmd.OutOrStdout(), "❌ 操作已取消")
				return nil
			}
			return clearTables(db, tables, truncate)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "跳过确认提示，强制执行清库")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "使用 TRUNCATE（更快，会重置自增ID）")
	cmd.Flags().StringSliceVar(&only, "tables", nil, "只清空这些表（逗号分隔）；留空表示全部")
	return cmd
}

// tableNames 用 gorm 的命名策略解析实体对应的表名
func tableNames(db *gorm.DB) []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		s, err := schema.Parse(m, &sync.Map{}, db.NamingStrategy)
		if err != nil {
			log.Printf("⚠️ 解析 %T 失败: %v", m, err)
			continue
		}
		names = append(names, s.Table)
	}
	return names
}

// selectTables 只允许已知的表，保持删除顺序
func selectTables(known, only []string) ([]string, error) {
	if len(only) == 0 {
		return known, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, t := range only {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		found := false
		for _, k := range known {
			if k == t {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown table %q (known: %s)", t, strings.Join(known, ", "))
		}
		wanted[t] = true
	}

	var out []string
	for _, k := range known {
		if wanted[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

func confirm(in io.Reader, out io.Writer, tables []string) bool {
	fmt.Fprintln(out, "⚠️  警告：此操作将删除以下表中的所有数据：")
	for _, t := range tables {
		fmt.Fprintf(out, "   - %s\n", t)
	}
	fmt.Fprint(out, "\n确认执行清库操作？(yes/no): ")

	input, _ := bufio.NewReader(in).ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "yes" || input == "y"
}

// clearTables DELETE 模式在一个事务里完成，任何一张表失败都整体回滚
func clearTables(db *gorm.DB, tables []string, truncate bool) error {
	if truncate {
		for _, t := range tables {
			if err := db.Exec(truncateSQL(db.Dialector.Name(), t)).Error; err != nil {
				return fmt.Errorf("truncate %s: %w", t, err)
			}
			log.Printf("✅ 已清空表: %s", t)
		}
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			res := tx.Exec(fmt.Sprintf("DELETE FROM %s", t))
			if res.Error != nil {
				return fmt.Errorf("delete from %s: %w", t, res.Error)
			}
			log.Printf("✅ 已清空表: %s (%d 行)", t, res.RowsAffected)
		}
		return nil
	})
}

// truncateSQL MySQL 不支持 RESTART IDENTITY / CASCADE
func truncateSQL(dialect, table string) string {
	if dialect == "mysql" {
		return fmt.Sprintf("TRUNCATE TABLE %s", table)
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)
}

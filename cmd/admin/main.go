package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/internal/services"
	"chat-relay/pkg/logger"

	"github.com/olekukonko/tablewriter"
)

const usage = `usage: admin <command> [flags]

commands:
  groups                                list every group
  messages [-group name] [-limit n]     list stored messages
  token -user-id id -username name      issue a token for a user
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	logger.Setup(logger.ParseLevel(cfg.LogLevel))

	if err := run(context.Background(), cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Fatal("admin command failed", "command", os.Args[1], "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string, out io.Writer) error {
	switch command {
	case "token":
		return issueToken(cfg, args, out)
	case "groups", "messages":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := services.NewGroupService(db, nil, cfg.Relay.HistoryLimit)
	loc := cfg.Relay.Location()

	if command == "groups" {
		groups, err := svc.ListGroups(ctx)
		if err != nil {
			return err
		}
		renderGroups(out, groups, loc)
		return nil
	}

	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	group := fs.String("group", "", "only list messages of this group")
	limit := fs.Int("limit", 100, "maximum number of messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	messages, err := svc.ListMessages(ctx, *group, *limit)
	if err != nil {
		return err
	}
	renderMessages(out, messages, loc)
	return nil
}

func issueToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.Int64("user-id", 0, "user id to embed in the token")
	username := fs.String("username", "", "display name to embed in the token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || *username == "" {
		return fmt.Errorf("-user-id and -username are required")
	}

	token, err := auth.NewService(cfg.JWT).IssueToken(*userID, *username)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderGroups(out io.Writer, groups []*models.Group, loc *time.Location) {
	table := newTable(out, []string{"ID", "Name", "Created"})
	for _, g := range groups {
		table.Append([]string{
			strconv.FormatInt(g.ID, 10),
			g.Name,
			g.CreatedAt.In(loc).Format(time.DateTime),
		})
	}
	table.Render()
}

func renderMessages(out io.Writer, messages []*models.Message, loc *time.Location) {
	table := newTable(out, []string{"ID", "Group", "User", "Time", "Content"})
	for _, m := range messages {
		table.Append([]string{
			strconv.FormatInt(m.ID, 10),
			m.GroupName,
			fmt.Sprintf("%s (%d)", m.Username, m.UserID),
			m.CreatedAt.In(loc).Format(time.DateTime),
			m.Content,
		})
	}
	table.Render()
}

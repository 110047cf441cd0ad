package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/simchat/internal/api"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/config"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/spf13/pflag"
)

// offline commands work on configuration files and need no daemon.
var offline = map[string]func(profile string, args []string) error{
	"init": cmdInit,
	"use":  cmdUse,
}

func main() {
	flags := pflag.NewFlagSet("simctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	profileFlag := flags.StringP("profile", "p", "", "profile name (overrides config default)")
	jsonFlag := flags.Bool("json", false, "output in JSON format")
	timeoutFlag := flags.Duration("timeout", 10*time.Second, "timeout for each daemon call")
	flags.Usage = printUsage
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	profile, err := session.Resolve(*profileFlag)
	if err != nil {
		fatal(err)
	}

	args := flags.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if cmd, ok := offline[args[0]]; ok {
		if err := cmd(profile, args[1:]); err != nil {
			fatal(err)
		}
		return
	}

	c, err := api.Dial(session.SocketPath(profile))
	if err != nil {
		fatal(fmt.Errorf("cannot connect to daemon for profile %q: %w", profile, err))
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		if err := cmdWatch(c, namespace); err != nil {
			fatal(err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	out, err := run(ctx, c, args)
	if err != nil {
		fatal(err)
	}
	if out == nil {
		return
	}
	if *jsonFlag {
		outputJSON(out)
		return
	}
	printHuman(out)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: simctl [--profile <name>] [--json] [--timeout <d>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init [flags]                  Write the profile configuration")
	fmt.Fprintln(os.Stderr, "  use                           Make the profile the default")
	fmt.Fprintln(os.Stderr, "  status                        Show connection status")
	fmt.Fprintln(os.Stderr, "  connect | disconnect          Go online / offline")
	fmt.Fprintln(os.Stderr, "  contacts [--fetch]            List contacts (refetch from the server)")
	fmt.Fprintln(os.Stderr, "  members <group-id>            Fetch group members")
	fmt.Fprintln(os.Stderr, "  open <conversation>           Focus a conversation, e.g. personal:7")
	fmt.Fprintln(os.Stderr, "  messages [conversation]       Show history (default: focused)")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text>    Send a message")
	fmt.Fprintln(os.Stderr, "  group <name> <user-id>...     Create a group")
	fmt.Fprintln(os.Stderr, "  notifications                 List pending requests")
	fmt.Fprintln(os.Stderr, "  accept | reject | dismiss <id>")
	fmt.Fprintln(os.Stderr, "  clear                         Dismiss every notification")
	fmt.Fprintln(os.Stderr, "  friend <user-id>              Send a friend request")
	fmt.Fprintln(os.Stderr, "  join <group-id>               Ask to join a group")
	fmt.Fprintln(os.Stderr, "  signout                       Forget identity and history")
	fmt.Fprintln(os.Stderr, "  watch [namespace]             Stream events, e.g. notice.")
}

func run(ctx context.Context, c *api.Client, args []string) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		return c.Status(ctx)
	case "connect":
		return nil, c.Connect(ctx)
	case "disconnect":
		return nil, c.Disconnect(ctx)
	case "contacts":
		if len(rest) > 0 && rest[0] == "--fetch" {
			return c.FetchContacts(ctx)
		}
		return c.ListContacts(ctx)
	case "members":
		id, err := needID(rest, "members <group-id>")
		if err != nil {
			return nil, err
		}
		return c.FetchMembers(ctx, id)
	case "open":
		if len(rest) != 1 {
			return nil, usageError("open <conversation>")
		}
		return c.SelectConversation(ctx, rest[0])
	case "messages":
		conversation := ""
		if len(rest) > 0 {
			conversation = rest[0]
		}
		return c.Messages(ctx, conversation)
	case "send":
		if len(rest) < 2 {
			return nil, usageError("send <conversation> <text>")
		}
		return c.SendMessage(ctx, rest[0], strings.Join(rest[1:], " "))
	case "group":
		if len(rest) < 1 {
			return nil, usageError("group <name> <user-id>...")
		}
		ids, err := parseIDs(rest[1:])
		if err != nil {
			return nil, err
		}
		return nil, c.CreateGroup(ctx, rest[0], ids)
	case "notifications":
		return c.ListNotifications(ctx)
	case "accept", "reject", "dismiss":
		if len(rest) != 1 {
			return nil, usageError(cmd + " <notification-id>")
		}
		switch cmd {
		case "accept":
			return nil, c.AcceptRequest(ctx, rest[0])
		case "reject":
			return nil, c.RejectRequest(ctx, rest[0])
		default:
			return nil, c.DismissNotification(ctx, rest[0])
		}
	case "clear":
		return nil, c.ClearNotifications(ctx)
	case "friend":
		id, err := needID(rest, "friend <user-id>")
		if err != nil {
			return nil, err
		}
		return nil, c.RequestFriend(ctx, id)
	case "join":
		id, err := needID(rest, "join <group-id>")
		if err != nil {
			return nil, err
		}
		return nil, c.RequestJoin(ctx, id)
	case "signout":
		return nil, c.SignOut(ctx)
	default:
		printUsage()
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdWatch(c *api.Client, namespace string) error {
	stream, err := c.WatchEvents(context.Background(), namespace)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		fmt.Printf("%s %-24s %s\n", time.UnixMilli(evt.OccurredAtUnixMs).Format(time.TimeOnly), evt.Kind, evt.Payload)
	}
}

// cmdInit writes the profile configuration, keeping values not given.
func cmdInit(profile string, args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	wsURL := flags.String("ws-url", "", "message server WebSocket URL")
	apiURL := flags.String("api-url", "", "message server REST base URL")
	userID := flags.Int64("user-id", 0, "local user id")
	userName := flags.String("user-name", "", "local user name")
	accessToken := flags.String("access-token", "", "bearer access token")
	refreshToken := flags.String("refresh-token", "", "refresh token")
	logLevel := flags.String("log-level", "", "daemon log level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path := session.ProfilePath(profile)
	prof, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&prof.Server.WSURL, *wsURL)
	set(&prof.Server.APIURL, *apiURL)
	set(&prof.Identity.UserName, *userName)
	set(&prof.Identity.AccessToken, *accessToken)
	set(&prof.Identity.RefreshToken, *refreshToken)
	set(&prof.Log.Level, *logLevel)
	if *userID != 0 {
		prof.Identity.UserID = *userID
	}

	if err := session.EnsureDir(profile); err != nil {
		return err
	}
	if err := config.SaveProfile(path, prof); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func cmdUse(profile string, _ []string) error {
	if err := config.Save(session.ConfigPath(), &config.Config{DefaultProfile: profile}); err != nil {
		return err
	}
	fmt.Printf("Default profile: %s\n", profile)
	return nil
}

func printHuman(v any) {
	switch resp := v.(type) {
	case *api.StatusResponse:
		fmt.Printf("Profile:       %s\n", resp.Profile)
		fmt.Printf("State:         %s\n", resp.State)
		if resp.UserID != 0 {
			fmt.Printf("User:          %s (%d)\n", resp.UserName, resp.UserID)
		}
		if resp.Focused != "" {
			fmt.Printf("Focused:       %s\n", resp.Focused)
		}
		fmt.Printf("Contacts:      %d\n", resp.Contacts)
		fmt.Printf("Notifications: %d\n", resp.Notifications)
		fmt.Printf("Uptime:        %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
	case *api.ContactsResponse:
		if len(resp.Contacts) == 0 {
			fmt.Println("No contacts.")
		}
		for _, c := range resp.Contacts {
			fmt.Printf("%-16s %-20s %s\n", c.Conversation(), c.DisplayName(), contactFlags(c))
		}
	case *api.MembersResponse:
		for _, m := range resp.Members {
			fmt.Printf("%-8d %s\n", m.ID, m.Name)
		}
	case *api.MessagesResponse:
		if len(resp.Messages) == 0 {
			fmt.Println("No messages.")
		}
		for _, m := range resp.Messages {
			fmt.Printf("%s %-12s %s [%s]\n", m.CreatedAt.Local().Format(time.DateTime), m.Sender, m.Content, m.Status)
		}
	case *api.MessageResponse:
		fmt.Printf("%s %s\n", resp.Message.Status, resp.Message.ClientMsgID)
	case *api.NotificationsResponse:
		if len(resp.Notifications) == 0 {
			fmt.Println("No notifications.")
		}
		for _, n := range resp.Notifications {
			fmt.Printf("%s  %-14s %s: %s\n", n.ID, n.Category, n.Title, n.Description)
		}
	default:
		outputJSON(v)
	}
}

func contactFlags(c chat.Contact) string {
	var parts []string
	if c.Online != nil {
		if *c.Online {
			parts = append(parts, "online")
		} else {
			parts = append(parts, "offline")
		}
	}
	if c.Unread > 0 {
		parts = append(parts, strconv.Itoa(c.Unread)+" unread")
	}
	return strings.Join(parts, ", ")
}

func needID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(usage)
	}
	ids, err := parseIDs(args)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func usageError(usage string) error {
	return fmt.Errorf("usage: simctl %s", usage)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chirp/internal/analytics"
	"chirp/internal/apiclient"
	"chirp/internal/cmdlog"
	"chirp/internal/config"
	"chirp/internal/logging"
	"chirp/internal/metrics"
	"chirp/internal/model"
	"chirp/internal/notify"
	"chirp/internal/optimistic"
	"chirp/internal/session"
	"chirp/internal/store/actionlog"
	"chirp/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "login":
		run("login", cmdLogin)
	case "logout":
		run("logout", cmdLogout)
	case "whoami":
		run("whoami", cmdWhoami)
	case "feed":
		run("feed", cmdFeed)
	case "post":
		run("post", cmdPost)
	case "show":
		run("show", cmdShow)
	case "like":
		run("like", cmdLike)
	case "retweet":
		run("retweet", cmdRetweet)
	case "quote":
		run("quote", cmdQuote)
	case "comment":
		run("comment", cmdComment)
	case "reply":
		run("reply", cmdReply)
	case "edit":
		run("edit", cmdEdit)
	case "delete":
		run("delete", cmdDelete)
	case "follow":
		run("follow", cmdFollow)
	case "profile":
		run("profile", cmdProfile)
	case "history":
		run("history", cmdHistory)
	default:
		printHelp()
	}
}

func run(name string, f func() error) {
	if err := cmdlog.Run(name, f); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: chirp <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Create a config file at ~/.chirp/config.yaml")
	fmt.Println("  login     Authenticate and store the session cookie")
	fmt.Println("  logout    Drop the stored session")
	fmt.Println("  whoami    Show the verified current user")
	fmt.Println("  feed      Show the home feed")
	fmt.Println("  post      Publish a post (-text, optional -image)")
	fmt.Println("  show      Show one post with comments (-id)")
	fmt.Println("  like      Toggle like on a post (-id)")
	fmt.Println("  retweet   Retweet a post (-id)")
	fmt.Println("  quote     Quote a post (-id -text, optional -image)")
	fmt.Println("  comment   Comment on a post (-id -text)")
	fmt.Println("  reply     Reply to a comment (-id -comment -text)")
	fmt.Println("  edit      Edit your post (-id -text)")
	fmt.Println("  delete    Delete your post (-id) or a quote (-quote)")
	fmt.Println("  follow    Toggle following a post's author (-id)")
	fmt.Println("  profile   Show a user profile (-user; -tweets -retweets -quotes -followers -following)")
	fmt.Println("  history   Summarize the local action journal")
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chirp", "config.yaml")
}

// app bundles everything a command needs.
type app struct {
	cfg     config.Config
	client  *apiclient.Client
	sess    *session.Session
	journal *actionlog.DB
	queue   *notify.Queue
	yes     bool
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

// commonFlags registers the flags every command shares.
func commonFlags(fs *flag.FlagSet) (cfgPath *string, yes *bool) {
	cfgPath = fs.String("config", defaultConfigPath(), "config path")
	yes = fs.Bool("yes", false, "skip confirmation prompts")
	return
}

func bootstrap(cfgPath string, yes bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
		cfg.ResolveEnv()
	}
	if cfg.API.Root == "" {
		return nil, errors.New("no API root configured; run chirp init and set api.root or CHIRP_API_URL")
	}
	jar, err := session.NewJar(cfg.API.Root, cfg.Session.CookiePath)
	if err != nil {
		return nil, err
	}
	client := apiclient.New(cfg.API.Root, jar)
	client.SetTimeout(time.Duration(cfg.API.TimeoutSeconds) * time.Second)
	if cfg.API.RPS > 0 && cfg.API.Burst > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(cfg.API.RPS), cfg.API.Burst))
	}
	sess, err := session.New(client, jar, cfg.API.Root, cfg.Session.CookiePath)
	if err != nil {
		return nil, err
	}
	var journal *actionlog.DB
	if cfg.Storage.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.JournalPath), 0o755); err == nil {
			journal, _ = actionlog.Open(cfg.Storage.JournalPath)
		}
	}
	metrics.StartServer(cfg.Metrics.Addr)
	queue := notify.New()
	queue.Subscribe(func(e notify.Event) {
		logging.Debug("snapshot_event", map[string]any{"post_id": e.PostID, "seq": e.Seq, "deleted": e.Deleted})
	})
	return &app{cfg: cfg, client: client, sess: sess, journal: journal, queue: queue, yes: yes}, nil
}

// verify resolves the session; most commands tolerate being logged out.
func (a *app) verify(ctx context.Context) {
	_, _ = a.sess.Verify(ctx)
}

// controller fetches the post and wires a mutation controller for it.
func (a *app) controller(ctx context.Context, postID string) (*optimistic.Controller, error) {
	post, err := a.client.FetchPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return optimistic.New(post, optimistic.Deps{
		API:        a.client,
		Session:    a.sess,
		Navigator:  loginHint{},
		Confirmer:  prompter{auto: a.yes},
		Queue:      a.queue,
		Journal:    a.journal,
		RetryDelay: a.cfg.RetryDelay(),
	}), nil
}

// drain flushes queued snapshot events to subscribers.
func (a *app) drain() {
	a.queue.Drain()
}

// loginHint is the CLI's redirect signal.
type loginHint struct{}

func (loginHint) RedirectToLogin() {
	fmt.Println("You are not logged in. Run: chirp login -email <email>")
}

// prompter asks on stdin unless -yes was given.
type prompter struct{ auto bool }

func (p prompter) Confirm(prompt string) bool {
	if p.auto {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	ans := strings.ToLower(strings.TrimSpace(sc.Text()))
	return ans == "y" || ans == "yes"
}

func printPost(p model.Post) {
	name := p.Author.DisplayName
	if name == "" {
		name = p.Author.UserName
	}
	if name == "" {
		name = p.Author.ID
	}
	fmt.Printf("%s  @%s  %s\n", p.ID, name, p.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  %s\n", p.Body)
	fmt.Printf("  likes=%d retweets=%d quotes=%d comments=%d\n", p.LikeCount, p.RetweetCount, p.QuoteCount, len(p.Comments))
}

func printComments(p model.Post) {
	for _, cm := range p.Comments {
		who := cm.User.DisplayName
		if who == "" {
			who = cm.User.UserName
		}
		text := cm.Text
		if cm.IsDeleted {
			text = "(deleted)"
		}
		fmt.Printf("  [%s] %s: %s (likes=%d)\n", cm.ID, who, text, len(cm.Likes))
		for _, r := range cm.Replies {
			fmt.Printf("      ↳ %s: %s\n", r.User.UserName, r.Text)
		}
	}
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath(), "path to write config")
	root := fs.String("root", "", "backend root URL")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	cfg.API.Root = *root
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdLogin() error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted if empty)")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	pw := *password
	if pw == "" {
		fmt.Print("Password: ")
		sc := bufio.NewScanner(os.Stdin)
		if sc.Scan() {
			pw = sc.Text()
		}
	}
	u, err := a.sess.Login(context.Background(), *email, pw)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as @%s (%s)\n", u.UserName, u.ID)
	return nil
}

func cmdLogout() error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	a.sess.Logout()
	fmt.Println("Session cleared.")
	return nil
}

func cmdWhoami() error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	u, err := a.sess.Verify(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("@%s  %s  (%s)\n", u.UserName, u.DisplayName, u.ID)
	return nil
}

func cmdFeed() error {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	a.verify(context.Background())
	posts, err := a.client.GetTweets(context.Background())
	if err != nil {
		return err
	}
	for _, p := range posts {
		printPost(p)
	}
	return nil
}

func cmdPost() error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	text := fs.String("text", "", "post text")
	image := fs.String("image", "", "path to an image to attach")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	a.verify(ctx)
	if strings.TrimSpace(*text) == "" {
		return optimistic.ErrEmptyText
	}
	if *image != "" {
		f, err := os.Open(*image)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = a.client.CreatePostWithImage(ctx, *text, filepath.Base(*image), f)
		return err
	}
	_, err = a.client.CreatePost(ctx, *text)
	return err
}

func cmdShow() error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	id := fs.String("id", "", "post id")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	a.verify(ctx)
	ctl, err := a.controller(ctx, *id)
	if err != nil {
		return err
	}
	post := ctl.ResolveAuthor(ctx)
	a.drain()
	printPost(post)
	printComments(post)
	return nil
}

// withController wraps the fetch-controller-act-drain cycle shared by
// the interaction commands.
func withController(fs *flag.FlagSet, id *string, act func(ctx context.Context, a *app, ctl *optimistic.Controller) error) error {
	cfgPath, yes := commonFlags(fs)
	_ = fs.Parse(os.Args[2:])
	if *id == "" {
		return errors.New("missing -id")
	}
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	a.verify(ctx)
	ctl, err := a.controller(ctx, *id)
	if err != nil {
		return err
	}
	if err := act(ctx, a, ctl); err != nil {
		return err
	}
	a.drain()
	printPost(ctl.Snapshot())
	return nil
}

func cmdLike() error {
	fs := flag.NewFlagSet("like", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		_, err := ctl.ToggleLike(ctx)
		return err
	})
}

func cmdRetweet() error {
	fs := flag.NewFlagSet("retweet", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		_, err := ctl.Retweet(ctx)
		return err
	})
}

func cmdQuote() error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	text := fs.String("text", "", "quote text")
	image := fs.String("image", "", "path to an image to attach")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		if *image != "" {
			f, err := os.Open(*image)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = ctl.SubmitQuoteWithImage(ctx, *text, filepath.Base(*image), f)
			return err
		}
		_, err := ctl.SubmitQuote(ctx, *text)
		return err
	})
}

func cmdComment() error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	text := fs.String("text", "", "comment text")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		_, err := ctl.AddComment(ctx, *text)
		return err
	})
}

func cmdReply() error {
	fs := flag.NewFlagSet("reply", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	comment := fs.String("comment", "", "comment id")
	text := fs.String("text", "", "reply text")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		_, err := ctl.Reply(ctx, *comment, *text)
		return err
	})
}

func cmdEdit() error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	text := fs.String("text", "", "new post text")
	comment := fs.String("comment", "", "comment id (edit a comment instead)")
	del := fs.Bool("delete-comment", false, "soft-delete the comment instead of editing")
	like := fs.Bool("like-comment", false, "toggle like on the comment instead of editing")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		if *comment != "" {
			if *del {
				_, err := ctl.SoftDeleteComment(ctx, *comment)
				return err
			}
			if *like {
				_, err := ctl.ToggleCommentLike(ctx, *comment)
				return err
			}
			_, err := ctl.UpdateComment(ctx, *comment, *text)
			return err
		}
		_, err := ctl.SaveEdit(ctx, *text)
		return err
	})
}

func cmdDelete() error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	id := fs.String("id", "", "post id")
	quoteID := fs.String("quote", "", "quote id (delete a quote instead of a post)")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	a.verify(ctx)
	if *quoteID != "" {
		if !(prompter{auto: a.yes}).Confirm("Delete this quote?") {
			return optimistic.ErrNotConfirmed
		}
		_, err = a.client.DeleteQuote(ctx, *quoteID)
		return err
	}
	if *id == "" {
		return errors.New("missing -id")
	}
	ctl, err := a.controller(ctx, *id)
	if err != nil {
		return err
	}
	if err := ctl.Delete(ctx); err != nil {
		return err
	}
	a.drain()
	fmt.Println("Deleted.")
	return nil
}

func cmdFollow() error {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	id := fs.String("id", "", "post id whose author to toggle")
	return withController(fs, id, func(ctx context.Context, a *app, ctl *optimistic.Controller) error {
		ctl.ResolveAuthor(ctx)
		_, err := ctl.ToggleFollow(ctx)
		return err
	})
}

func cmdProfile() error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	user := fs.String("user", "", "user id")
	tweets := fs.Bool("tweets", false, "also list the user's posts")
	retweets := fs.Bool("retweets", false, "also list the user's retweets")
	quotes := fs.Bool("quotes", false, "also list the user's quotes")
	followers := fs.Bool("followers", false, "also list followers")
	following := fs.Bool("following", false, "also list accounts the user follows")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	a.verify(ctx)
	u, err := a.client.GetUserProfile(ctx, *user)
	if err != nil {
		return err
	}
	followed := "unknown"
	if u.IsFollowed != nil {
		followed = fmt.Sprintf("%v", *u.IsFollowed)
	}
	fmt.Printf("@%s  %s\n  followers=%d following=%d followed=%s\n", u.UserName, u.DisplayName, u.FollowerCount, u.FollowingCount, followed)

	postLists := []struct {
		on    bool
		label string
		get   func(context.Context, string) ([]model.Post, error)
	}{
		{*tweets, "posts", a.client.GetUserTweets},
		{*retweets, "retweets", a.client.GetUserRetweets},
		{*quotes, "quotes", a.client.GetUserQuotes},
	}
	for _, l := range postLists {
		if !l.on {
			continue
		}
		posts, err := l.get(ctx, *user)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", l.label)
		for _, p := range posts {
			printPost(p)
		}
	}
	userLists := []struct {
		on    bool
		label string
		get   func(context.Context, string) ([]model.User, error)
	}{
		{*followers, "followers", a.client.GetFollowers},
		{*following, "following", a.client.GetFollowing},
	}
	for _, l := range userLists {
		if !l.on {
			continue
		}
		users, err := l.get(ctx, *user)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", l.label)
		for _, fu := range users {
			fmt.Printf("  @%s  %s  (%s)\n", fu.UserName, fu.DisplayName, fu.ID)
		}
	}
	return nil
}

// historyCursor marks when history last ran, so the next run can report
// what happened in between.
const historyCursor = "history_last_run"

func cmdHistory() error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath, yes := commonFlags(fs)
	hours := fs.Int("hours", 24, "look-back window in hours")
	_ = fs.Parse(os.Args[2:])
	a, err := bootstrap(*cfgPath, *yes)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.journal == nil {
		return errors.New("journaling is disabled (storage.journalPath is empty)")
	}
	ctx := context.Background()
	now := time.Now().UTC()
	if v, err := a.journal.LoadCursor(ctx, historyCursor); err == nil {
		if last, perr := time.Parse(time.RFC3339, v); perr == nil {
			n, cerr := a.journal.CountWithin(ctx, last, now.Add(time.Hour), "")
			if cerr == nil {
				fmt.Printf("%d actions since last run (%s)\n", n, last.Format("2006-01-02 15:04"))
			}
		}
	}
	actions, err := a.journal.Actions(ctx, now.Add(-time.Duration(*hours)*time.Hour), now.Add(time.Hour), "")
	if err != nil {
		return err
	}
	buckets := analytics.HourlyActions(actions)
	for _, k := range analytics.SortedBucketKeys(buckets) {
		fmt.Printf("%s -> %v\n", k.Format("2006-01-02 15:00"), buckets[k])
	}
	fmt.Println("outcomes:", analytics.OutcomeTotals(actions))
	return a.journal.SaveCursor(ctx, historyCursor, now.Format(time.RFC3339))
}

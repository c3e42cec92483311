package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reels/internal/api"
	"reels/internal/config"
	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/player"
	"reels/internal/progress"
	"reels/internal/service"
	"reels/internal/session"
	"reels/internal/storage"
	"reels/internal/telemetry"
	"reels/internal/ui"
	"reels/internal/web"
)

func main() {
	var (
		webMode bool
		webAddr string
		itemID  string
		open    bool
		engine  string
		debug   bool
	)

	flag.BoolVar(&webMode, "web", false, "Run headless web API server")
	flag.StringVar(&webAddr, "addr", "localhost:8080", "Web server address")
	flag.StringVar(&itemID, "item", "", "Open the feed at this item")
	flag.BoolVar(&open, "open", false, "Open the feed right after loading")
	flag.StringVar(&engine, "engine", "mpv", "Player engine: mpv or memory")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		logging.SetEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, webMode, webAddr, itemID, open, engine); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, webMode bool, webAddr, itemID string, open bool, engineName string) error {
	cfg := config.Load()
	if cfg.Server == "" {
		return errors.New("REELS_SERVER is not set")
	}

	shutdown, err := telemetry.Init(ctx, "reels", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdown(context.WithoutCancel(ctx))

	store, err := storage.New(storage.DefaultPath())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	client, err := initClient(ctx, cfg, store)
	if err != nil {
		return err
	}

	eng, err := newEngine(engineName)
	if err != nil {
		return err
	}

	src := api.NewSource(client, cfg.ParentID)
	board := progress.NewBoard()

	var scroller session.Scroller
	var bridge *ui.Bridge
	headless := &web.Headless{}
	if webMode {
		scroller = headless
	} else {
		bridge = ui.NewBridge()
		scroller = bridge
	}

	ctrl := session.New(session.Options{
		Source: src,
		Engine: eng,
		Query: feed.Query{
			PageSize: cfg.PageSize,
			Order:    cfg.Order,
			OrderBy:  cfg.OrderBy,
			Category: cfg.Category,
		},
		WindowRadius:       cfg.WindowRadius,
		LookaheadThreshold: cfg.LookaheadThreshold,
		WarmUp:             cfg.WarmUp,
		Board:              board,
		Scroller:           scroller,
		Linker:             client,
	})
	headless.Ctrl = ctrl
	if bridge != nil {
		ctrl.Subscribe(bridge)
	}

	lookup := func(id string) (feed.Item, bool) {
		for _, it := range ctrl.Feed() {
			if it.ID == id {
				return it, true
			}
		}
		return feed.Item{}, false
	}
	analytics := service.NewAnalytics(client, store, lookup, config.ProgressReportEvery)
	ctrl.Subscribe(analytics)

	svc := service.NewReelService(ctrl, store, src.PosterURL)
	svc.SetShareLink(client.ShareURL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return analytics.Run(ctx)
	})
	g.Go(func() error {
		// 前端退出后让分析上报收尾
		defer cancel()
		if webMode {
			if _, err := svc.Load(ctx); err != nil {
				return err
			}
			if itemID != "" || open {
				if _, err := svc.Open(ctx, itemID); err != nil {
					return err
				}
			}
			return web.New(svc, nil).Run(ctx, webAddr)
		}
		if !player.Available() && engineName == "mpv" {
			fmt.Println("Warning: mpv not found")
		}
		return ui.Run(ctx, svc, ui.Options{
			Board:     board,
			Bridge:    bridge,
			OpenID:    itemID,
			OpenFirst: open,
			Opener:    openURL,
		})
	})
	return g.Wait()
}

func initClient(ctx context.Context, cfg config.Config, store *storage.Store) (*api.Client, error) {
	client := api.New(cfg.Server, store.DeviceID(uuid.NewString))
	client.UserID, client.Token = store.GetToken(cfg.Server)

	if client.Token != "" && client.VerifyToken(ctx) {
		return client, nil
	}
	if cfg.Username == "" {
		return nil, errors.New("no valid token and REELS_USER is not set")
	}
	if err := client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := store.SetToken(cfg.Server, client.UserID, client.Token); err != nil {
		logging.Warn("token not saved", "err", err)
	}
	return client, nil
}

func newEngine(name string) (player.Engine, error) {
	switch name {
	case "mpv":
		return player.NewMPV(), nil
	case "memory":
		return player.NewMemoryEngine(true), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

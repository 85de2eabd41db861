package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/render"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

const usage = `usage: mudra [flags] [serve | tray | replay <program> <script.json>]

  serve    run the HTTP control surface (default)
  tray     run the control surface with a system tray menu
  replay   run a recorded landmark script through a program and print
           the actuation calls it would make

programs: %s
`

// replayWidth and replayHeight are the screen assumed when replaying control programs.
const replayWidth, replayHeight = 1920, 1080

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("mudra: %v", err)
	}
}

func run(args []string) error {
	cfg, rest, err := config.Load("mudra", args, nil)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, usage, programNames())
		return nil
	}
	if err != nil {
		return err
	}

	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "serve":
		return serve(cfg, false)
	case "tray":
		return serve(cfg, true)
	case "replay":
		if len(rest) != 2 {
			return fmt.Errorf("replay needs a program and a script file")
		}
		return replay(cfg, rest[0], rest[1])
	default:
		fmt.Fprintf(os.Stderr, usage, programNames())
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(cfg *config.Config, withTray bool) error {
	fmt.Println("Mudra - Gesture and Eye Control")

	dbPath, err := storePath(cfg.Store.Path)
	if err != nil {
		return err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	webDir := cfg.Server.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	plugins := plugin.NewManager(cfg.PluginDir)
	if err := plugins.Discover(); err != nil {
		log.Printf("plugins unavailable in %s: %v", cfg.PluginDir, err)
	}
	port := actuate.WithBrightness(
		actuate.NewRobot(),
		actuate.NewPluginBrightness(plugins, plugin.NewExecutor(cfg.Actuation.Timeout)),
	)

	frames := server.NewFrameHub()
	events := server.NewEventHub()
	renderCfg := cfg.Pipeline.Render

	controller := session.NewController(session.Options{
		Config:  *cfg,
		Port:    port,
		Store:   st,
		Sources: session.CameraSources(cfg.Pipeline),
		Renderers: func() (render.Renderer, error) {
			r, err := render.NewGoCV(renderCfg)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		Sink:    frames.Publish,
		OnEvent: events.Publish,
	})
	defer controller.Close()

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Controller: controller,
		Frames:     frames,
		Events:     events,
		Settings:   *cfg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Addr
	fmt.Printf("Starting server on %s\n", addr)
	if !withTray {
		return srv.Run(ctx, addr)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, addr)
		// The tray owns the main thread; a server failure ends it too.
		stop()
	}()

	t := tray.New(controller)
	t.OnSettings(func() { openBrowser(localURL(addr)) })
	t.OnQuit(stop)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	stop()
	return <-errCh
}

func replay(cfg *config.Config, name, path string) error {
	p, err := session.ParseProgram(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	src, err := perception.LoadScript(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	recorder := actuate.NewRecorder(replayWidth, replayHeight)
	s, err := session.New(p, *cfg, session.Deps{
		Source:   src,
		Port:     recorder,
		Renderer: render.NewStub(),
		OnEvent:  func(ev pipeline.TickEvent) { printTick(os.Stdout, ev) },
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats := s.Run(ctx)
	for _, call := range recorder.Calls() {
		fmt.Printf("%+v\n", call)
	}
	fmt.Printf("%s: %d ticks, %d actions, score %d (%s)\n",
		p, stats.Ticks, stats.Actions, stats.Score, stats.Reason)
	return nil
}

// printTick writes ticks that produced a gesture or ended the game.
func printTick(w io.Writer, ev pipeline.TickEvent) {
	if ev.Gesture == string(gesture.Idle) && !ev.GameOver {
		return
	}
	fmt.Fprintf(w, "tick %d: %s score=%d\n", ev.Seq, ev.Gesture, ev.Score)
}

// storePath resolves the database path, defaulting to ~/.mudra/mudra.db.
func storePath(path string) (string, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".mudra", "mudra.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return path, nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func programNames() string {
	names := make([]string, 0, len(session.Programs()))
	for _, p := range session.Programs() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("open %s: %v", url, err)
	}
}

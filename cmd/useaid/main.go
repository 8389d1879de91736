// useaid - Local daemon recording AI-assisted coding sessions
//
//	useaid run                  Run the daemon in the foreground
//	useaid ensure               Make sure a daemon is running, spawning one if needed
//	useaid status               Show daemon liveness and store totals
//	useaid seal-active          Ask the running daemon to seal all live sessions
//	useaid install-autostart    Install the OS autostart unit
//	useaid remove-autostart     Remove the OS autostart unit
//	useaid recover              Clear the OS crash-loop state for the autostart unit
//	useaid tool-config <file>   Register the daemon in an AI client's config file
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"useaid/internal/config"
	"useaid/internal/daemon"
	"useaid/internal/keystore"
	"useaid/internal/logging"
	"useaid/internal/store"
	"useaid/internal/supervisor"
	"useaid/internal/toolconfig"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "ensure":
		cmdEnsure(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "seal-active":
		cmdSealActive(os.Args[2:])
	case "install-autostart":
		cmdInstallAutostart()
	case "remove-autostart":
		cmdRemoveAutostart()
	case "recover":
		cmdRecover()
	case "tool-config":
		cmdToolConfig(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`useaid - Session tracking daemon for AI-assisted coding

USAGE:
    useaid <command> [options]

COMMANDS:
    run                  Run the daemon in the foreground
    ensure               Make sure a daemon is running, spawning one if needed
    status               Show daemon liveness and store totals
    seal-active          Seal every live session via the running daemon
    install-autostart    Install the OS autostart unit (launchd/systemd/Startup)
    remove-autostart     Remove the OS autostart unit
    recover              Clear the OS crash-loop state for the autostart unit
    tool-config <file>   Register the daemon in an AI client's config file
    help                 Show this help message

The data directory defaults to the platform application-data location and
can be overridden with USEAI_HOME.`)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	port := fs.Int("port", daemon.DefaultPort, "listen port")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logOutput := fs.String("log-output", "stderr", "log output: stderr, stdout, file, both")
	fs.Parse(args)

	paths := store.DefaultPaths()
	if err := paths.EnsureLayout(); err != nil {
		fatal("prepare data directory: %v", err)
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fatal("%v", err)
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Output = *logOutput
	logCfg.FilePath = paths.LogFile()
	log, err := logging.New(logCfg)
	if err != nil {
		fatal("set up logging: %v", err)
	}
	logging.SetDefault(log)
	defer log.Close()

	cfg := config.Load(paths)
	watcher, err := config.NewWatcher(paths, cfg, func(*config.Config) {
		log.Info("config reloaded")
	})
	if err != nil {
		log.Warn("live config reload unavailable", "error", err)
	} else if err := watcher.Start(); err != nil {
		log.Warn("live config reload unavailable", "error", err)
		watcher.Stop()
	} else {
		defer watcher.Stop()
	}

	// Signing is best-effort: a keystore that cannot open leaves the
	// daemon in unsigned mode rather than down.
	key, err := keystore.OpenOrCreate(paths.KeystoreFile())
	if err != nil {
		log.Warn("keystore unavailable, running unsigned", "error", err)
		key = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := daemon.NewServer(paths, cfg, key, log, *port)
	if err := server.Run(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			log.Info("daemon already running, exiting")
			return
		}
		fatal("daemon: %v", err)
	}
}

func cmdEnsure(args []string) {
	fs := flag.NewFlagSet("ensure", flag.ExitOnError)
	port := fs.Int("port", daemon.DefaultPort, "daemon port")
	fs.Parse(args)

	execPath, err := os.Executable()
	if err != nil {
		fatal("resolve executable: %v", err)
	}
	paths := store.DefaultPaths()
	if err := daemon.EnsureDaemon(execPath, []string{"run"}, *port, paths.LogFile()); err != nil {
		fatal("%v", err)
	}
	fmt.Println("daemon is running")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	port := fs.Int("port", daemon.DefaultPort, "daemon port")
	fs.Parse(args)

	paths := store.DefaultPaths()
	if pf, ok := daemon.ReadPIDFile(paths); ok {
		fmt.Printf("pid file: pid=%d port=%d started=%s\n", pf.PID, pf.Port, pf.StartedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("pid file: absent")
	}

	h, err := daemon.Probe(*port)
	if err != nil {
		fmt.Printf("daemon:   not responding (%v)\n", err)
	} else {
		fmt.Printf("daemon:   %s version=%s uptime=%ds active_sessions=%d\n",
			h.Status, h.Version, h.UptimeSeconds, h.ActiveSessions)
	}

	seals := paths.LoadSeals()
	milestones := paths.LoadMilestones()
	fmt.Printf("store:    %d sessions, %d milestones, %d bytes on disk\n",
		len(seals), len(milestones), paths.DiskUsage())
}

func cmdSealActive(args []string) {
	fs := flag.NewFlagSet("seal-active", flag.ExitOnError)
	port := fs.Int("port", daemon.DefaultPort, "daemon port")
	fs.Parse(args)

	resp, err := httpPost(fmt.Sprintf("http://127.0.0.1:%d/api/seal-active", *port))
	if err != nil {
		fatal("%v", err)
	}
	switch {
	case resp.status == 204:
		fmt.Println("no active sessions")
	case resp.status == 200:
		var body map[string]int
		if err := json.Unmarshal(resp.body, &body); err == nil {
			fmt.Printf("sealed %d session(s)\n", body["sealed"])
		}
	default:
		fatal("seal-active returned %d: %s", resp.status, resp.body)
	}
}

func cmdInstallAutostart() {
	execPath, err := os.Executable()
	if err != nil {
		fatal("resolve executable: %v", err)
	}
	paths := store.DefaultPaths()
	unitPath, err := supervisor.Install(execPath, paths.LogFile())
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("autostart installed: %s\n", unitPath)
}

func cmdRemoveAutostart() {
	if err := supervisor.Uninstall(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("autostart removed")
}

func cmdRecover() {
	if err := supervisor.Recover(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("crash-loop state cleared")
}

func cmdToolConfig(args []string) {
	fs := flag.NewFlagSet("tool-config", flag.ExitOnError)
	remove := fs.Bool("remove", false, "remove the registration instead of writing it")
	port := fs.Int("port", daemon.DefaultPort, "daemon port")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatal("usage: useaid tool-config [-remove] <client-config-file>")
	}
	path := fs.Arg(0)

	if *remove {
		if err := toolconfig.Remove(path); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("removed registration from %s\n", path)
		return
	}

	execPath, err := os.Executable()
	if err != nil {
		fatal("resolve executable: %v", err)
	}
	entry := toolconfig.Entry{
		Command: execPath,
		Args:    []string{"ensure"},
		URL:     fmt.Sprintf("http://127.0.0.1:%d/mcp", *port),
	}
	if err := toolconfig.Write(path, entry); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("registered daemon in %s\n", path)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "useaid: "+format+"\n", args...)
	os.Exit(1)
}

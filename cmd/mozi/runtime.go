package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// exitCode mirrors spec.md §4.1/§8's CLI exit-code contract: 0 success,
// 1 generic failure, 2 config conflict (CAS mismatch surfaced at the CLI
// boundary per the teacher's "exception for control" translation).
const (
	exitOK             = 0
	exitFailure        = 1
	exitConfigConflict = 2
)

var (
	daemonize  bool
	foreground bool
	logLines   int
	followLogs bool
)

func runtimeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Manage the mozi runtime host process",
	}
	cmd.AddCommand(runtimeStartCmd())
	cmd.AddCommand(runtimeStopCmd())
	cmd.AddCommand(runtimeRestartCmd())
	cmd.AddCommand(runtimeStatusCmd())
	cmd.AddCommand(runtimeInstallCmd())
	cmd.AddCommand(runtimeUninstallCmd())
	cmd.AddCommand(runtimeLogsCmd())
	return cmd
}

func runtimeStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the runtime host",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runStart())
		},
	}
	cmd.Flags().BoolVarP(&daemonize, "daemon", "d", false, "detach and run in the background")
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run attached to the terminal (default unless MOZI_DAEMON is set)")
	return cmd
}

func runtimeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running runtime host",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runStop())
		},
	}
}

func runtimeRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the runtime host",
		Run: func(cmd *cobra.Command, args []string) {
			if code := runStop(); code != exitOK {
				if _, err := readPIDFile(pidFilePath(resolveConfigPath())); err == nil {
					os.Exit(code)
				}
				// No pid file at all — fall through to a plain start.
			}
			os.Exit(runStart())
		},
	}
}

func runtimeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the runtime host is running",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runStatus())
		},
	}
}

func runtimeLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print (and optionally follow) the runtime host's log file",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runLogs())
		},
	}
	cmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of trailing lines to print")
	cmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "keep printing new lines as they are appended")
	return cmd
}

func runStart() int {
	cfgPath := resolveConfigPath()
	pidPath := pidFilePath(cfgPath)

	if pid, err := readPIDFile(pidPath); err == nil && pid != os.Getpid() && processAlive(pid) {
		fmt.Fprintf(os.Stderr, "mozi runtime already running (pid %d)\n", pid)
		return exitFailure
	}

	runDaemon := daemonize || (!foreground && os.Getenv("MOZI_DAEMON") != "")
	if runDaemon && os.Getenv("mozi_runtime_child") == "" {
		return spawnDaemonChild(cfgPath)
	}

	if err := writePIDFile(pidPath, os.Getpid()); err != nil {
		fmt.Fprintf(os.Stderr, "write pid file: %v\n", err)
		return exitFailure
	}
	defer removePIDFile(pidPath)

	logger := newRuntimeLogger(cfgPath, runDaemon)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("runtime: shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := runServe(ctx, cfgPath, logger); err != nil {
		logger.Error("runtime: exited with error", "error", err)
		if code := exitCodeForServeErr(err); code != exitOK {
			return code
		}
		return exitFailure
	}
	return exitOK
}

// spawnDaemonChild re-execs the current binary with the daemon marker env
// var set and its own process group, detaching stdio to the runtime log;
// the parent writes the child's pid to the pid file and returns without
// waiting for the child. There is no fork() in Go; re-exec is the
// idiomatic substitute.
func spawnDaemonChild(cfgPath string) int {
	logPath := logFilePath(cfgPath)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create log dir: %v\n", err)
		return exitFailure
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		return exitFailure
	}
	defer logFile.Close()

	child := exec.Command(os.Args[0], os.Args[1:]...)
	child.Env = append(os.Environ(), "mozi_runtime_child=1")
	child.Stdout = logFile
	child.Stderr = logFile
	child.Stdin = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start daemon child: %v\n", err)
		return exitFailure
	}

	pidPath := pidFilePath(cfgPath)
	if err := writePIDFile(pidPath, child.Process.Pid); err != nil {
		fmt.Fprintf(os.Stderr, "write pid file: %v\n", err)
		return exitFailure
	}

	fmt.Printf("mozi runtime started in background (pid %d)\n", child.Process.Pid)
	return exitOK
}

func runStop() int {
	cfgPath := resolveConfigPath()
	pidPath := pidFilePath(cfgPath)

	pid, err := readPIDFile(pidPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mozi runtime is not running (no pid file)")
		return exitFailure
	}
	if !processAlive(pid) {
		fmt.Fprintf(os.Stderr, "pid file names %d, which is not running; removing stale pid file\n", pid)
		removePIDFile(pidPath)
		return exitFailure
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "find process %d: %v\n", pid, err)
		return exitFailure
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "signal process %d: %v\n", pid, err)
		return exitFailure
	}

	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			removePIDFile(pidPath)
			fmt.Printf("mozi runtime (pid %d) stopped\n", pid)
			return exitOK
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintf(os.Stderr, "mozi runtime (pid %d) did not exit within 5s\n", pid)
	return exitFailure
}

func runStatus() int {
	cfgPath := resolveConfigPath()
	pidPath := pidFilePath(cfgPath)

	pid, err := readPIDFile(pidPath)
	if err != nil {
		fmt.Println("mozi runtime: not running")
		return exitFailure
	}
	if !processAlive(pid) {
		fmt.Printf("mozi runtime: not running (stale pid file for %d)\n", pid)
		return exitFailure
	}
	fmt.Printf("mozi runtime: running (pid %d)\n", pid)
	return exitOK
}

func runLogs() int {
	cfgPath := resolveConfigPath()
	logPath := logFilePath(cfgPath)

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file %s: %v\n", logPath, err)
		return exitFailure
	}
	defer f.Close()

	lines := tailLines(f, logLines)
	for _, line := range lines {
		fmt.Println(line)
	}

	if !followLogs {
		return exitOK
	}

	offset, _ := f.Seek(0, io.SeekEnd)
	for {
		time.Sleep(500 * time.Millisecond)
		info, err := f.Stat()
		if err != nil {
			return exitFailure
		}
		if info.Size() <= offset {
			continue
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return exitFailure
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
		offset, _ = f.Seek(0, io.SeekCurrent)
	}
}

// tailLines returns the last n lines of f without holding the whole file in
// memory at once beyond one scan pass.
func tailLines(f *os.File, n int) []string {
	scanner := bufio.NewScanner(f)
	buf := make([]string, 0, n)
	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if len(buf) > n {
			buf = buf[1:]
		}
	}
	return buf
}

// exitCodeForServeErr translates a serve-time error into spec.md §4.1's
// CLI exit-code contract: CONFLICT surfaces as 2, everything else as a
// plain failure (handled by the caller).
func exitCodeForServeErr(err error) int {
	if isConfigConflict(err) {
		return exitConfigConflict
	}
	return exitOK
}

func newRuntimeLogger(cfgPath string, daemonized bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if daemonized {
		// The daemon child already has stdout/stderr redirected to the log
		// file by its parent (spawnDaemonChild); log straight to stdout.
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

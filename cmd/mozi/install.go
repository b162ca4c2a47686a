package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

// systemdUnitTemplate installs mozi as a user-level systemd service. Not
// grounded on the teacher (goclaw ships no service-manager integration,
// relying on an external Docker/systemd unit the operator writes by hand);
// this is new code following the standard `systemctl --user` unit shape.
const systemdUnitTemplate = `[Unit]
Description=Mozi multi-channel agent dispatch runtime
After=network-online.target

[Service]
Type=simple
ExecStart={{.Exec}} runtime start --foreground --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

func runtimeInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install mozi as a systemd user service",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runInstall())
		},
	}
}

func runtimeUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the mozi systemd user service",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runUninstall())
		},
	}
}

func systemdUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", "mozi.service"), nil
}

func runInstall() int {
	if runtime.GOOS != "linux" {
		fmt.Fprintf(os.Stderr, "runtime install only supports systemd user services on linux (GOOS=%s)\n", runtime.GOOS)
		return exitFailure
	}

	unitPath, err := systemdUnitPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve systemd unit path: %v\n", err)
		return exitFailure
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create systemd user dir: %v\n", err)
		return exitFailure
	}

	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve executable path: %v\n", err)
		return exitFailure
	}

	tmpl := template.Must(template.New("unit").Parse(systemdUnitTemplate))
	f, err := os.Create(unitPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create unit file: %v\n", err)
		return exitFailure
	}
	defer f.Close()

	data := struct{ Exec, Config string }{Exec: exePath, Config: resolveConfigPath()}
	if err := tmpl.Execute(f, data); err != nil {
		fmt.Fprintf(os.Stderr, "render unit file: %v\n", err)
		return exitFailure
	}

	if err := exec.Command("systemctl", "--user", "daemon-reload").Run(); err != nil {
		fmt.Fprintf(os.Stderr, "systemctl --user daemon-reload: %v (unit written to %s anyway)\n", err, unitPath)
		return exitFailure
	}

	fmt.Printf("installed %s — enable with: systemctl --user enable --now mozi\n", unitPath)
	return exitOK
}

func runUninstall() int {
	unitPath, err := systemdUnitPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve systemd unit path: %v\n", err)
		return exitFailure
	}

	_ = exec.Command("systemctl", "--user", "disable", "--now", "mozi").Run()

	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "remove unit file: %v\n", err)
		return exitFailure
	}
	_ = exec.Command("systemctl", "--user", "daemon-reload").Run()

	fmt.Println("mozi systemd user service removed")
	return exitOK
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.design/x/hotkey/mainthread"

	"github.com/yok-tottii/EzCapture/internal/api"
	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/config"
)

var (
	version    = "0.1.0"
	cfgFile    string
	backend    string
	outputPath string
	autoStart  bool
)

var rootCmd = &cobra.Command{
	Use:   "ezcapture",
	Short: "Low-latency microphone capture",
	Long:  `EzCapture - captures microphone audio into fixed-size chunks with WASAPI, PortAudio or miniaudio`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture engine with the HTTP API and hotkey",
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		// hotkey registration on macOS needs the main thread's event loop
		mainthread.Init(func() {
			err = runHeadless()
		})
		return err
	},
}

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Run with a system tray icon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTray()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices of the selected backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkStatus()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("EzCapture v%s (%s/%s, default backend %s)\n",
			version, runtime.GOOS, runtime.GOARCH, audio.DefaultBackend())
	},
}

func init() {
	// macOS cgo calls for the tray and hotkey must run on the main thread
	runtime.LockOSThread()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "audio backend: auto, wasapi, portaudio, malgo")

	for _, cmd := range []*cobra.Command{runCmd, trayCmd} {
		cmd.Flags().StringVarP(&outputPath, "output", "o", "", "append captured PCM to this file")
		cmd.Flags().BoolVar(&autoStart, "start", false, "start capturing immediately")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(trayCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, string, error) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, path, nil
}

func listDevices() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	driver, err := audio.OpenDriver(cfg.Backend)
	if err != nil {
		return err
	}
	defer driver.Close()

	devices, err := driver.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	fmt.Printf("Backend: %s\n", driver.Name())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEFAULT\tNAME")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", d.ID, def, d.Name)
	}
	return w.Flush()
}

func checkStatus() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/status", cfg.HTTPPort))
	if err != nil {
		fmt.Println("Status: Not running")
		return nil
	}
	defer resp.Body.Close()

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Printf("Status: %s\n", status.State)
	fmt.Printf("Backend: %s\n", status.Backend)
	fmt.Printf("Buffer size: %d bytes\n", status.BufferSize)
	if status.Format != nil {
		fmt.Printf("Format: %s\n", status.Format)
	}
	fmt.Printf("Chunks: %d (%d dropped), silent packets: %d, pull errors: %d\n",
		status.Stats.Chunks, status.Stats.ChunksDropped, status.Stats.SilentPackets, status.Stats.PullErrors)
	return nil
}

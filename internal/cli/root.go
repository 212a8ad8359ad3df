// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rangedl/internal/tui"
	"rangedl/pkg/rangedl"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogFile  string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "rangedl",
		Short:         "Multi-threaded range-parallel file downloader",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode: single progress bar, no live table")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose flag (accepted; no command reads it)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Log file path (accepted; no command writes to it)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error (accepted; no command filters by it)")

	downloadCmd := newDownloadCmd(ctx, ro)
	root.AddCommand(downloadCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())

	root.RunE = downloadCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newDownloadCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	task := rangedl.RequestTask{ThreadCount: 4}
	opts := rangedl.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "download [URL]",
		Short: "Download a file, optionally splitting it into parallel byte-range segments",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, &opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			finalTask, err := finalize(args, task)
			if err != nil {
				return err
			}

			var progress rangedl.ProgressFunc
			switch {
			case ro.JSONOut:
				progress = jsonProgress(os.Stdout)
			case ro.Quiet:
				finalTask.ShowProgress = true
				progress = cliProgress(finalTask)
			default:
				finalTask.ShowProgress = true
				ui := tui.NewLiveRenderer(finalTask)
				defer ui.Close()
				progress = ui.Handler()
			}

			_, err = rangedl.Download(ctx, finalTask, opts, progress)
			return err
		},
	}

	cmd.Flags().StringVarP(&task.URL, "url", "u", "", "URL to download. If omitted, positional URL is used")
	cmd.Flags().StringVarP(&task.SaveDir, "output", "o", ".", "Destination directory")
	cmd.Flags().StringVar(&task.SaveFileName, "name", "", "Destination file name (default: derived from the URL)")
	cmd.Flags().IntVarP(&task.ThreadCount, "threads", "n", 4, "Number of parallel range segments")
	cmd.Flags().BoolVarP(&task.MultiThreadOptIn, "multi-thread", "m", true, "Split into parallel segments when the server reports a size")
	cmd.Flags().IntVar(&opts.MaxThreadCount, "max-threads", opts.MaxThreadCount, "Upper bound enforced on --threads")
	cmd.Flags().IntVar(&opts.MaxRedirects, "max-redirects", opts.MaxRedirects, "Maximum redirect chain length to follow")
	cmd.Flags().BoolVar(&opts.InsecureSkipVerify, "insecure", opts.InsecureSkipVerify, "Skip TLS certificate verification")

	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func finalize(args []string, task rangedl.RequestTask) (rangedl.RequestTask, error) {
	t := task
	if t.URL == "" && len(args) > 0 {
		t.URL = args[0]
	}
	if t.URL == "" {
		return t, fmt.Errorf("missing URL. Pass as positional arg or --url")
	}
	if t.MultiThreadOptIn {
		t.Kind = rangedl.KindMTDownload
	} else {
		t.Kind = rangedl.KindDownload
	}
	t.ID = rangedl.NextTaskID()
	return t, nil
}

func applySettingsDefaults(cmd *cobra.Command, dst *rangedl.Options) error {
	path := cmd.Root().PersistentFlags().Lookup("config").Value.String()
	if path == "" {
		home, _ := os.UserHomeDir()
		jsonPath := filepath.Join(home, ".config", "rangedl.json")
		yamlPath := filepath.Join(home, ".config", "rangedl.yaml")
		ymlPath := filepath.Join(home, ".config", "rangedl.yml")

		if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(ymlPath); err == nil {
			path = ymlPath
		}
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("invalid JSON config file: %w", err)
		}
	}

	setInt := func(flagName string, set func(int)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			var x int
			fmt.Sscan(fmt.Sprint(v), &x)
			set(x)
		}
	}
	setBool := func(flagName string, set func(bool)) {
		if cmd.Flags().Changed(flagName) {
			return
		}
		if v, ok := cfg[flagName]; ok && v != nil {
			set(fmt.Sprint(v) == "true")
		}
	}

	setInt("max-threads", func(v int) { dst.MaxThreadCount = v })
	setInt("max-redirects", func(v int) { dst.MaxRedirects = v })
	setBool("insecure", func(v bool) { dst.InsecureSkipVerify = v })

	return nil
}

// cliProgress returns a quiet-mode progress handler backed by a single
// aggregate bar.
func cliProgress(task rangedl.RequestTask) rangedl.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *pb.ProgressBar
	)
	warn := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	ok := color.New(color.FgGreen).SprintFunc()

	return func(ev rangedl.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()

		switch ev.Event {
		case "progress":
			if bar == nil && ev.Total > 0 {
				bar = pb.Full.Start64(ev.Total)
				bar.Set(pb.Bytes, true)
			}
			if bar != nil {
				bar.SetCurrent(ev.Received)
			}
		case "segment_done":
			if ev.Level == "error" {
				fmt.Fprintln(os.Stderr, warn("segment", ev.Segment, "failed:"), ev.Message)
			}
		case "finished":
			if bar != nil {
				bar.Finish()
			}
			if ev.Level == "error" {
				fmt.Fprintln(os.Stderr, fail("download failed:"), ev.Message)
			} else {
				fmt.Println(ok("done:"), task.URL)
			}
		}
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) rangedl.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev rangedl.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

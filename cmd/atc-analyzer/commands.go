package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	atcanalyzer "github.com/menta2k/atc-analyzer"
	"github.com/menta2k/atc-analyzer/internal/config"
	"github.com/menta2k/atc-analyzer/internal/utils"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// flag name -> config key
var flagKeys = map[string]string{
	"model":         "model.path",
	"ort-lib":       "model.shared_library_path",
	"threshold":     "detection.confidence_threshold",
	"iou":           "detection.iou_threshold",
	"jitter":        "scoring.jitter",
	"seed":          "scoring.seed",
	"include-image": "output.include_image",
	"overlay-dir":   "output.overlay_dir",
	"pretty":        "output.pretty",
	"nats":          "events.nats_url",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

type cli struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

func rootCommand() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "atc-analyzer",
		Short:         "Animal Type Classification scoring for dairy cattle photos",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "config file (yaml or json)")
	pf.String("model", "", "path to the ATC ONNX model")
	pf.String("ort-lib", "", "path to the onnxruntime shared library")
	pf.Float64("threshold", 0.25, "detection confidence threshold")
	pf.Float64("iou", 0.45, "NMS IoU threshold")
	pf.Bool("jitter", true, "perturb category scores by up to one point")
	pf.Uint64("seed", 0, "jitter seed, 0 seeds from the clock")
	pf.String("nats", "", "NATS URL to publish analysis events to")
	pf.String("log-level", "info", "log level: trace|debug|info|warn|error")
	pf.String("log-format", "text", "log format: text|json")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return c.init(cmd)
	}

	root.AddCommand(c.analyzeCommand(), c.configCommand(), versionCommand())
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	// A missing .env file is fine; real environment variables still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := c.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := config.Unmarshal(c.v)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}

func (c *cli) analyzeCommand() *cobra.Command {
	var in string
	var showReport bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an image file or every image in a directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runAnalyze(ctx, in, showReport, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "input image or directory (jpg/png/webp)")
	cmd.Flags().BoolVar(&showReport, "report", false, "print the report of the last analysis instead of the results")
	cmd.Flags().Bool("include-image", false, "embed the input image in the result as a data URI")
	cmd.Flags().String("overlay-dir", "", "write annotated overlays to this directory")
	cmd.Flags().Bool("pretty", false, "indent JSON output")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (c *cli) runAnalyze(ctx context.Context, in string, showReport bool, out io.Writer) error {
	files, err := inputFiles(in)
	if err != nil {
		return err
	}

	a, err := atcanalyzer.NewWithConfig(c.cfg, atcanalyzer.Options{
		Logger:     c.logger,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if dir := c.cfg.Output.OverlayDir; dir != "" {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	results := make([]*types.AnalysisResult, 0, len(files))
	var failed int
	for _, path := range files {
		log := c.logger.WithField("file", path)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		mime := utils.MimeType(path)

		result, err := a.Analyze(ctx, data, mime, filepath.Base(path))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("Analysis failed")
			failed++
			continue
		}
		results = append(results, result)

		if dir := c.cfg.Output.OverlayDir; dir != "" && len(result.Annotations) > 0 {
			overlay := utils.GenerateOutputFilename(path, dir, "_annotated", "png")
			if err := a.SaveOverlay(data, mime, result, overlay, "png"); err != nil {
				log.WithError(err).Warn("Failed to save overlay")
			} else {
				log.WithField("overlay", overlay).Info("Overlay saved")
			}
		}
	}

	var payload any = results
	if len(files) == 1 && len(results) == 1 {
		payload = results[0]
	}
	if showReport {
		report, err := a.LatestReport()
		if err != nil {
			return err
		}
		payload = report
	}
	if err := writeJSON(out, payload, c.cfg.Output.Pretty); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(files))
	}
	return nil
}

func (c *cli) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), c.cfg, true)
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atc-analyzer %s\n", atcanalyzer.GetVersion())
		},
	}
}

func inputFiles(in string) ([]string, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if !info.IsDir() {
		return []string{in}, nil
	}
	files, err := utils.ListImageFiles(in)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found in %s", in)
	}
	return files, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

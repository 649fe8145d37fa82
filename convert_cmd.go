package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tartil/internal/convert"
)

var (
	convertOut     string
	convertWorkers int
	convertPublish string
	convertBucket  bool

	convertCmd = &cobra.Command{
		Use:   "convert INPUT_DIR",
		Short: "Convert legacy timestamp files to JSON timing assets",
		Long: paragraph(fmt.Sprintf(
			"\n%s a directory of NNN.txt files, one millisecond boundary per line, into surah_NNN.json assets plus an aggregate timings.json. With --bucket the assets are uploaded to the S3 bucket named by TARTIL_S3_* variables.",
			keyword("Convert"),
		)),
		Example: paragraph("tartil convert ./timings\ntartil convert ./timings --out ./assets --publish /var/www/timings"),
		Args:    cobra.ExactArgs(1),
		RunE:    runConvert,
	}
)

func runConvert(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)

	opts := convert.Options{
		InputDir:  expandPath(args[0]),
		OutputDir: expandPath(convertOut),
		Workers:   convertWorkers,
	}

	var bucket *convert.BucketPublisher
	switch {
	case convertBucket && convertPublish != "":
		return errors.New("use either --publish or --bucket")
	case convertBucket:
		cfg, err := env.ParseAs[convert.BucketConfig]()
		if err != nil {
			return fmt.Errorf("error parsing bucket config: %w", err)
		}
		if bucket, err = convert.NewBucketPublisher(cfg); err != nil {
			return err
		}
		opts.Publisher = bucket
	case convertPublish != "":
		opts.Publisher = convert.DirPublisher{Dir: expandPath(convertPublish)}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := convert.Run(ctx, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var total int64
	for _, c := range report.Converted {
		total += c.Bytes
	}
	fmt.Fprintf(out, "Converted %d surahs (%d verses, %s) into %s\n",
		len(report.Converted), report.Verses(), humanize.Bytes(uint64(total)), report.OutputDir) //nolint:gosec
	if a := report.Aggregate; a.File != "" {
		fmt.Fprintf(out, "Aggregate %s (%s)\n", a.File, humanize.Bytes(uint64(a.Bytes))) //nolint:gosec
	}
	for _, s := range report.Skipped {
		if s.Err != nil {
			fmt.Fprintf(out, "  %s %s: %v\n", keyword("✗"), s.File, s.Err)
		} else {
			fmt.Fprintf(out, "  skipped %s: %s\n", s.File, s.Reason)
		}
	}
	if bucket != nil {
		fmt.Fprintf(out, "Published; point timings.source at %s\n", bucket.BaseURL())
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d files could not be converted", len(failed))
	}
	return nil
}

func init() {
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "output directory (default INPUT_DIR/"+convert.DefaultOutputDir+")")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "j", 0, "parallel conversions (default GOMAXPROCS)")
	convertCmd.Flags().StringVar(&convertPublish, "publish", "", "also copy the assets into this directory")
	convertCmd.Flags().BoolVar(&convertBucket, "bucket", false, "upload the assets to the configured S3 bucket")
}

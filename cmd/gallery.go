package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/matching"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the enrollment gallery",
}

var galleryVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Decode every reference image of a section gallery",
	Long: `Decode every reference image a scan of the section would submit and report
subjects whose image cannot be decoded. Such subjects cost an oracle call on
every scan without ever matching.`,
	RunE: runGalleryVerify,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryVerifyCmd)

	galleryVerifyCmd.Flags().String("section", "", "Section id (required)")
	galleryVerifyCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel decoders")
	_ = galleryVerifyCmd.MarkFlagRequired("section")
}

func runGalleryVerify(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sec, err := catalog.Lookup(mustGetString(cmd, "section"))
	if err != nil {
		return err
	}

	b, err := openBackends(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	gallery, err := database.GetGalleryReader(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Verifying "+sec.Name+" gallery"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("subjects"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	report, err := matching.VerifyGallery(ctx, gallery, sec.Attribute, mustGetInt(cmd, "concurrency"), func() {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Checked %d subjects, %d without image, %d problems\n",
		report.Checked, report.Missing, len(report.Problems))
	for _, p := range report.Problems {
		fmt.Printf("  #%d %s: %s\n", p.SubjectID, p.Name, p.Reason)
	}
	if len(report.Problems) > 0 {
		return fmt.Errorf("%d subjects have unusable reference images", len(report.Problems))
	}
	return nil
}

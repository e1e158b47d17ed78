package matching

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
)

// ImageProblem is a gallery subject whose reference image would waste an oracle call.
type ImageProblem struct {
	SubjectID int64
	Name      string
	Reason    string
}

// VerifyReport summarises a gallery check.
type VerifyReport struct {
	Checked  int
	Missing  int
	Problems []ImageProblem
}

// VerifyGallery decodes every reference image of the section gallery using up to
// concurrency workers. onChecked, if set, is called once per subject.
func VerifyGallery(
	ctx context.Context, gallery database.GalleryReader, attribute string, concurrency int, onChecked func(),
) (*VerifyReport, error) {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrency
	}

	report := &VerifyReport{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for subject, err := range gallery.Gallery(gctx, attribute) {
		if err != nil {
			g.Wait()
			return nil, fmt.Errorf("load gallery: %w", err)
		}
		g.Go(func() error {
			problem := checkImage(subject)
			mu.Lock()
			report.Checked++
			if problem != nil {
				if problem.Reason == reasonMissing {
					report.Missing++
				}
				report.Problems = append(report.Problems, *problem)
			}
			mu.Unlock()
			if onChecked != nil {
				onChecked()
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(report.Problems, func(a, b ImageProblem) int {
		return cmp.Compare(a.SubjectID, b.SubjectID)
	})
	return report, nil
}

const reasonMissing = "no reference image"

func checkImage(s database.Subject) *ImageProblem {
	if !s.HasReferenceImage() {
		return &ImageProblem{SubjectID: s.ID, Name: s.Name, Reason: reasonMissing}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(s.ReferenceImage))
	if err != nil {
		return &ImageProblem{SubjectID: s.ID, Name: s.Name, Reason: "undecodable: " + err.Error()}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return &ImageProblem{SubjectID: s.ID, Name: s.Name, Reason: "empty image"}
	}
	return nil
}

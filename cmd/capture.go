package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/checkpoint/internal/capture"
	"github.com/kozaktomas/checkpoint/internal/scanclient"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the checkpoint capture loop against a server",
	Long: `Log in as section staff, open a camera and submit a frame on every tick.
The camera is an HTTP snapshot URL (IP camera) or a directory of images that
is cycled in name order. Press Ctrl+C to stop and release the camera.`,
	Example: `  checkpoint capture --server http://localhost:8080 --section gym \
    --username gymop --camera http://10.0.0.12/snapshot.jpg`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("server", "http://localhost:8080", "Checkpoint server URL")
	captureCmd.Flags().String("section", "", "Section to scan for (required)")
	captureCmd.Flags().String("username", "", "Staff username")
	captureCmd.Flags().String("session", "", "Existing session id instead of logging in")
	captureCmd.Flags().String("camera", "", "Snapshot URL or image directory (required)")
	captureCmd.Flags().Duration("timeout", 2*time.Minute, "Request timeout per probe")
	_ = captureCmd.MarkFlagRequired("section")
	_ = captureCmd.MarkFlagRequired("camera")
}

func openCamera(source string, timeout time.Duration) capture.Camera {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return capture.NewSnapshotCamera(source, timeout)
	}
	return capture.NewDirectoryCamera(source)
}

// printEvent renders a capture event on the operator terminal.
func printEvent(ev capture.Event) {
	ts := time.Now().Format("15:04:05")
	switch ev.Kind {
	case capture.EventStateChanged:
		fmt.Printf("%s  [%s]\n", ts, ev.State)
	case capture.EventMatched:
		r := ev.Result
		visit := "not recorded"
		if r.VisitID != nil {
			visit = fmt.Sprintf("visit #%d", *r.VisitID)
		}
		fmt.Printf("%s  MATCH  %s (%s)  %s  confidence %.1f  %s\n",
			ts, r.SubjectName, r.StudentID, r.Category, r.Confidence, visit)
	case capture.EventSuppressed:
		fmt.Printf("%s  seen   %s (already confirmed)\n", ts, ev.Result.SubjectName)
	case capture.EventNoMatch:
		msg := ev.Result.Message
		if msg == "" {
			msg = fmt.Sprintf("best %.1f < %.1f", ev.Result.Confidence, ev.Result.Threshold)
		}
		fmt.Printf("%s  ---    no match (%s)\n", ts, msg)
	case capture.EventError:
		fmt.Printf("%s  error  %v\n", ts, ev.Err)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	sectionID := mustGetString(cmd, "section")
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sec, err := catalog.Lookup(sectionID)
	if err != nil {
		return err
	}

	client, err := scanclient.New(mustGetString(cmd, "server"), mustGetDuration(cmd, "timeout"))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if session := mustGetString(cmd, "session"); session != "" {
		client.SetSession(session)
	} else {
		username := mustGetString(cmd, "username")
		password := os.Getenv("CHECKPOINT_PASSWORD")
		if username == "" || password == "" {
			return errors.New("--username and CHECKPOINT_PASSWORD are required unless --session is given")
		}
		if err := client.Login(ctx, username, password, sec.ID); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	opts := capture.OptionsFromConfig(cfg.Capture)
	opts.OnEvent = printEvent
	opts.Logger = log.With("component", "capture", "section", sec.ID)
	camera := openCamera(mustGetString(cmd, "camera"), mustGetDuration(cmd, "timeout"))
	session := capture.NewSession(camera, &scanclient.Submitter{Client: client, Section: sec.ID}, opts)

	fmt.Printf("Scanning for %s. Press Ctrl+C to stop.\n", sec.Name)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	select {
	case <-ctx.Done():
		session.Stop()
	case <-session.Done():
	}
	<-session.Done()
	return nil
}

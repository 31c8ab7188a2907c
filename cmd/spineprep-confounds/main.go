package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpinePrep/SpinePrep/pkg/config"
	"github.com/SpinePrep/SpinePrep/pkg/confounds"
	"github.com/SpinePrep/SpinePrep/pkg/crop"
	"github.com/SpinePrep/SpinePrep/pkg/report"
)

func main() {
	// Parse command line arguments
	motionTSV := flag.String("motion", "", "Motion parameters TSV (trans_x..rot_z columns)")
	outTSV := flag.String("out", "confounds.tsv", "Output confounds TSV path")
	sidecar := flag.String("sidecar", "", "Output JSON sidecar path (default: TSV path with .json)")
	cropJSON := flag.String("crop-json", "", "Output crop window JSON path (optional)")
	reportHTML := flag.String("report", "", "Output QC report HTML path (optional)")
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	fdThr := flag.Float64("fd-thr", 0, "Override spike FD threshold in mm")
	dvarsZ := flag.Float64("dvars-z", 0, "Override spike DVARS z-score threshold")
	radius := flag.Float64("radius", 0, "Override FD rotation radius in mm")
	verbose := flag.Bool("verbose", true, "Print per-step progress")
	flag.Parse()

	// Validate inputs
	if *motionTSV == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *fdThr > 0 {
		cfg.Motion.SpikeFDThr = *fdThr
	}
	if *dvarsZ > 0 {
		cfg.Motion.SpikeDVARSZ = *dvarsZ
	}
	if *radius > 0 {
		cfg.Motion.RadiusMM = *radius
	}

	fmt.Println("================================")
	fmt.Println("SPINEPREP CONFOUND ENGINE")
	fmt.Println("================================")

	motion, err := confounds.ReadMotionTSV(*motionTSV)
	if err != nil {
		log.Fatalf("Failed to read motion parameters: %v", err)
	}
	fmt.Printf("Loaded %d timepoints from %s\n", motion.T, *motionTSV)

	processor := confounds.NewProcessor(&confounds.Params{
		Motion:  motion,
		Config:  cfg,
		Verbose: *verbose,
	})

	res, err := processor.Process()
	if err != nil {
		log.Fatalf("Confound computation failed: %v", err)
	}

	if err := res.Table.WriteTSV(*outTSV); err != nil {
		log.Fatalf("Failed to write confounds TSV: %v", err)
	}
	fmt.Printf("Confounds TSV written: %s (%d volumes)\n", *outTSV, res.Table.NRows())

	sidecarPath := *sidecar
	if sidecarPath == "" {
		sidecarPath = strings.TrimSuffix(*outTSV, filepath.Ext(*outTSV)) + ".json"
	}
	meta := confounds.DefaultSidecarMeta(cfg.Motion.RadiusMM, cfg.Motion.SpikeFDThr, cfg.Motion.SpikeDVARSZ)
	if err := confounds.WriteSidecarJSON(sidecarPath, meta); err != nil {
		log.Fatalf("Failed to write sidecar JSON: %v", err)
	}
	fmt.Printf("Sidecar JSON written: %s\n", sidecarPath)

	if *cropJSON != "" {
		if err := crop.WriteSidecar(*cropJSON, res.Crop); err != nil {
			log.Fatalf("Failed to write crop JSON: %v", err)
		}
		fmt.Printf("Crop window written: %s\n", *cropJSON)
	}

	if *reportHTML != "" {
		label := strings.TrimSuffix(filepath.Base(*motionTSV), filepath.Ext(*motionTSV))
		if err := report.Write(*reportHTML, label, res); err != nil {
			log.Printf("Warning: Failed to write QC report: %v", err)
		} else {
			fmt.Printf("QC report written: %s\n", *reportHTML)
		}
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Spikes flagged: %d\n", sum(res.Spike))
	fmt.Printf("  Frames censored: %d/%d\n", res.Censor.NCensored, motion.T)
	fmt.Printf("  Kept segments: %d\n", len(res.Censor.KeptSegments))
	fmt.Printf("  Crop window: [%d, %d) of %d (%s)\n", res.Crop.From, res.Crop.To, res.Crop.NVols, res.Crop.Reason)
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

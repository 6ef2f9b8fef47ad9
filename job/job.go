// Package job defines the unit of work that flows through the convert and
// send pipeline: one uploaded PDF, its converted artifact, and the printers
// it should be dispatched to.
package job

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job as it moves through the pipeline.
type Status string

const (
	StatusEnqueued     Status = "enqueued"
	StatusConverting   Status = "converting"
	StatusConverted    Status = "converted"
	StatusConvertError Status = "convert_failed"
	StatusSending      Status = "sending"
	StatusSent         Status = "sent"
	StatusSendError    Status = "send_failed"
)

// IsTerminal reports whether s is one of the four outcomes a Job can retire
// on: converted, convert_failed, sent, send_failed. Enqueued, converting,
// and sending are all transient and never a Job's final state.
func IsTerminal(s Status) bool {
	switch s {
	case StatusConverted, StatusConvertError, StatusSent, StatusSendError:
		return true
	default:
		return false
	}
}

// Job is the single record that travels Intake -> Qc -> Converter -> Qs -> Sender.
// It is owned by exactly one stage at a time; ownership transfers with the
// queue hand-off. Nothing past intake mutates InputPath, OutputPath, GSArgs,
// FormatLabel, Printers, or CreatedAt -- only Status and Err are updated in
// place by the owning stage.
type Job struct {
	ID          string
	InputPath   string
	OutputPath  string
	FormatLabel string
	GSArgs      []string
	Printers    []string

	Status    Status
	CreatedAt time.Time
	Err       string
}

// deviceFormat maps a Ghostscript device name to the short extension/label
// this service uses for the output file. The set is exhaustive by design --
// anything else is rejected by the caller before a Job is ever constructed.
var deviceFormat = map[string]string{
	"pxlmono":  "pcl",
	"pxlcolor": "pcl",
	"pcl3":     "pcl",
	"pclm":     "pcl",
	"pclm8":    "pcl",

	"png16m":   "png",
	"png16":    "png",
	"png48":    "png",
	"pngalpha": "png",
	"pnggray":  "png",
	"pngmono":  "png",

	"jpeg":     "jpg",
	"jpeggray": "jpg",
	"jpegcmyk": "jpg",
}

// FormatForDevice resolves the output extension/format label for a
// Ghostscript device name. ok is false for any device outside the supported
// set, in which case the caller must reject the request with 400.
func FormatForDevice(device string) (format string, ok bool) {
	format, ok = deviceFormat[strings.ToLower(device)]
	return format, ok
}

// New constructs a Job from its already-validated inputs. filesDir, baseName
// and device are assumed to have been checked by the caller (intake); New
// itself only derives paths and assembles gsArgs in the order the engine
// requires: [...extra args..., -sDEVICE=, -sOutputFile=, inputPath].
func New(filesDir, baseName, device string, extraArgs, printers []string) (*Job, error) {
	format, ok := FormatForDevice(device)
	if !ok {
		return nil, fmt.Errorf("unsupported device %q", device)
	}

	base := filepath.Base(baseName)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	inputPath := filepath.Join(filesDir, base+".pdf")
	outputPath := filepath.Join(filesDir, base+"."+format)

	if inputPath == outputPath {
		return nil, fmt.Errorf("input and output path collide: %s", inputPath)
	}

	gsArgs := make([]string, 0, len(extraArgs)+3)
	gsArgs = append(gsArgs, extraArgs...)
	gsArgs = append(gsArgs,
		"-sDEVICE="+device,
		"-sOutputFile="+outputPath,
		inputPath,
	)

	return &Job{
		ID:          uuid.NewString(),
		InputPath:   inputPath,
		OutputPath:  outputPath,
		FormatLabel: strings.ToUpper(format),
		GSArgs:      gsArgs,
		Printers:    printers,
		Status:      StatusEnqueued,
		CreatedAt:   time.Now(),
	}, nil
}

// Validate checks the structural invariants a Job must hold before it is
// handed to the Converter: non-empty, distinct paths, and gsArgs ending in
// exactly one -sDEVICE=, followed by exactly one -sOutputFile=, followed by
// the input path. It is defensive: intake's own construction path (New)
// already satisfies these, but any job built by a test or a future caller
// is checked the same way.
func (j *Job) Validate() error {
	if j.InputPath == "" || j.OutputPath == "" {
		return fmt.Errorf("job %s: missing input or output path", j.ID)
	}
	if j.InputPath == j.OutputPath {
		return fmt.Errorf("job %s: input and output path must differ", j.ID)
	}
	if len(j.GSArgs) == 0 {
		return fmt.Errorf("job %s: gsArgs must not be empty", j.ID)
	}

	var deviceCount, outputCount int
	for _, a := range j.GSArgs {
		if strings.HasPrefix(a, "-sDEVICE=") {
			deviceCount++
		}
		if strings.HasPrefix(a, "-sOutputFile=") {
			outputCount++
		}
	}
	if deviceCount != 1 {
		return fmt.Errorf("job %s: expected exactly one -sDEVICE=, found %d", j.ID, deviceCount)
	}
	if outputCount != 1 {
		return fmt.Errorf("job %s: expected exactly one -sOutputFile=, found %d", j.ID, outputCount)
	}
	last := j.GSArgs[len(j.GSArgs)-1]
	if last != j.InputPath {
		return fmt.Errorf("job %s: gsArgs must end with the input path", j.ID)
	}
	secondToLast := ""
	if len(j.GSArgs) >= 2 {
		secondToLast = j.GSArgs[len(j.GSArgs)-2]
	}
	if !strings.HasPrefix(secondToLast, "-sOutputFile=") {
		return fmt.Errorf("job %s: gsArgs must place -sOutputFile= immediately before the input path", j.ID)
	}
	thirdToLast := ""
	if len(j.GSArgs) >= 3 {
		thirdToLast = j.GSArgs[len(j.GSArgs)-3]
	}
	if !strings.HasPrefix(thirdToLast, "-sDEVICE=") {
		return fmt.Errorf("job %s: gsArgs must place -sDEVICE= immediately before -sOutputFile=", j.ID)
	}
	return nil
}

// ParsePrinters splits a raw "print" query value on commas and semicolons,
// trims whitespace, and drops empty tokens. Order is preserved and
// duplicates are not collapsed -- callers that care about a distinct
// printer set should dedupe themselves.
func ParsePrinters(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	printers := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			printers = append(printers, f)
		}
	}
	return printers
}

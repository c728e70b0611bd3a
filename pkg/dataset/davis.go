package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/bfvos/pkg/mask"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
)

// DavisOptions locate a DAVIS dataset and describe how to sample it
type DavisOptions struct {
	BaseDir   string // Directory containing ImageSets, JPEGImages, Annotations
	Width     int    // Frames and masks are resized to Width x Height
	Height    int    //
	Year      int    // eg 2016
	Phase     string // eg "train" or "val"
	Randomize bool   // Randomize triplets
	Seed      int64  // Seed for randomized triplets
}

// DavisFrame is one line of an image set file
type DavisFrame struct {
	Sequence   string
	Image      string // Relative to BaseDir, eg /JPEGImages/480p/bear/00000.jpg
	Annotation string // Relative to BaseDir, eg /Annotations/480p/bear/00000.png
}

// Davis reads the DAVIS video object segmentation dataset
type Davis struct {
	Frames  []DavisFrame
	log     logs.Log
	opt     DavisOptions
	sampler *TripletSampler
}

// ImageSetPath is the list of frames for a year and phase, eg ImageSets/2016/train.txt
func ImageSetPath(baseDir string, year int, phase string) string {
	return filepath.Join(baseDir, "ImageSets", strconv.Itoa(year), phase+".txt")
}

func NewDavis(log logs.Log, opt DavisOptions) (*Davis, error) {
	if opt.Width <= 0 || opt.Height <= 0 {
		return nil, fmt.Errorf("Invalid DAVIS image size %v x %v", opt.Width, opt.Height)
	}
	frames, err := readImageSet(ImageSetPath(opt.BaseDir, opt.Year, opt.Phase))
	if err != nil {
		return nil, err
	}

	var sequences [][]int
	seqIndex := map[string]int{}
	for i, f := range frames {
		s, ok := seqIndex[f.Sequence]
		if !ok {
			s = len(sequences)
			seqIndex[f.Sequence] = s
			sequences = append(sequences, nil)
		}
		sequences[s] = append(sequences[s], i)
	}

	d := &Davis{
		Frames:  frames,
		log:     log,
		opt:     opt,
		sampler: NewTripletSampler(sequences, opt.Randomize, opt.Seed),
	}
	log.Infof("DAVIS %v %v: %v frames in %v sequences", opt.Year, opt.Phase, len(frames), len(sequences))
	return d, nil
}

func readImageSet(filename string) ([]DavisFrame, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames := []DavisFrame{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%v:%v: Expected image and annotation path, but got '%v'", filename, lineNo, line)
		}
		seq := sequenceName(fields[0])
		if seq == "" {
			return nil, fmt.Errorf("%v:%v: Unable to determine sequence of '%v'", filename, lineNo, fields[0])
		}
		frames = append(frames, DavisFrame{
			Sequence:   seq,
			Image:      fields[0],
			Annotation: fields[1],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// The sequence is the name of the directory that contains the frame
func sequenceName(imagePath string) string {
	dir := filepath.Dir(filepath.FromSlash(imagePath))
	name := filepath.Base(dir)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func (d *Davis) Triplets(epoch int) ([]Triplet, error) {
	return d.sampler.Triplets(epoch)
}

func (d *Davis) Load(t Triplet) (*Sample, error) {
	s := &Sample{}
	for i, idx := range t.Indices() {
		if idx < 0 || idx >= len(d.Frames) {
			return nil, fmt.Errorf("DAVIS frame index %v out of range [0, %v)", idx, len(d.Frames))
		}
		frame, err := d.LoadFrame(idx)
		if err != nil {
			return nil, err
		}
		m, err := d.LoadMask(idx)
		if err != nil {
			return nil, err
		}
		s.Frames[i] = frame
		s.Masks[i] = m
	}
	return s, nil
}

// LoadFrame decodes, resizes, and normalizes a JPEG frame
func (d *Davis) LoadFrame(idx int) (*Frame, error) {
	filename := filepath.Join(d.opt.BaseDir, d.Frames[idx].Image)
	img, err := cimg.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read frame %v: %w", filename, err)
	}
	rgb := img.ToRGB()
	if rgb.Width != d.opt.Width || rgb.Height != d.opt.Height {
		rgb = cimg.ResizeNew(rgb, d.opt.Width, d.opt.Height, nil)
	}
	frame, err := FromRGB(rgb.Width, rgb.Height, rgb.Stride, rgb.Pixels)
	if err != nil {
		return nil, err
	}
	frame.Normalize()
	return frame, nil
}

// LoadMask decodes a PNG annotation, resizes it with nearest neighbour sampling, and binarizes it
func (d *Davis) LoadMask(idx int) (mask.Mask, error) {
	filename := filepath.Join(d.opt.BaseDir, d.Frames[idx].Annotation)
	img, err := imaging.Open(filename)
	if err != nil {
		return mask.Mask{}, fmt.Errorf("Failed to read annotation %v: %w", filename, err)
	}
	resized := imaging.Resize(img, d.opt.Width, d.opt.Height, imaging.NearestNeighbor)
	return mask.FromImage(resized), nil
}

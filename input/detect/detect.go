// Package detect opens the right frame sequence for a set of input paths.
package detect

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vidoxide/vidoxide-go/input"
	"github.com/vidoxide/vidoxide-go/input/imagelist"
	"github.com/vidoxide/vidoxide-go/input/ser"
)

// Opts are options passed to the opened sequence.
type Opts struct {
	Verbose bool
}

var imageExts = map[string]bool{
	".bmp":  true,
	".gif":  true,
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// Kind returns the kind of input for paths: a single .ser file, or one or more
// image files. Mixed or unrecognized lists are KindUnknown.
func Kind(paths []string) input.Kind {
	if len(paths) == 0 {
		return input.KindUnknown
	}
	if len(paths) == 1 && strings.EqualFold(filepath.Ext(paths[0]), ".ser") {
		return input.KindSER
	}
	for _, p := range paths {
		if !imageExts[strings.ToLower(filepath.Ext(p))] {
			return input.KindUnknown
		}
	}
	return input.KindImageList
}

// Open opens paths as a sequence of the detected kind.
func Open(paths []string, opts *Opts) (input.Sequence, error) {
	var xopts Opts
	if opts != nil {
		xopts = *opts
	}
	switch kind := Kind(paths); kind {
	case input.KindSER:
		v, err := ser.Open(paths[0], &ser.Opts{Verbose: xopts.Verbose})
		if err != nil {
			return nil, err
		}
		return v, nil
	case input.KindImageList:
		l, err := imagelist.New(paths, &imagelist.Opts{AutoOrientation: true, Verbose: xopts.Verbose})
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}
	return nil, fmt.Errorf("cannot detect input kind of %s", strings.Join(paths, ", "))
}

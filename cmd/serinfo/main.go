// Command serinfo prints the header of a SER video and a histogram summary of
// its frames.
//
// Example:
//
//	# Header and the first 10 frames.
//	serinfo -n 10 jupiter.ser
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vidoxide/vidoxide-go/histogram"
	"github.com/vidoxide/vidoxide-go/input/ser"
)

var (
	numFrames int
	verbose   bool
)

func init() {
	flag.IntVar(&numFrames, "n", -1, "number of frames to summarize, -1 for all")
	flag.BoolVar(&verbose, "verbose", false, "print verbose output")
}

func usage() {
	log.Println("usage: serinfo [-n frames] file.ser")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		usage()
	}
	os.Exit(main0(args[0]))
}

func main0(path string) int {
	video, err := ser.Open(path, &ser.Opts{Verbose: verbose})
	if err != nil {
		log.Printf("opening %s: %v", path, err)
		return 1
	}
	defer video.Close()

	h := video.Header()
	fmt.Printf("signature   %q\n", ser.Text(h.Signature[:]))
	fmt.Printf("camera      %d\n", h.CameraSeriesID)
	fmt.Printf("color       %v\n", h.ColorID)
	fmt.Printf("endianness  %d (little-endian samples: %v)\n", h.Endianness, h.LittleEndianSamples())
	fmt.Printf("size        %dx%d, %d bits per channel\n", h.Width, h.Height, h.BitsPerChannel)
	fmt.Printf("frames      %d\n", h.FrameCount)
	fmt.Printf("format      %v\n", video.PixelFormat())
	fmt.Printf("observer    %q\n", ser.Text(h.Observer[:]))
	fmt.Printf("instrument  %q\n", ser.Text(h.Instrument[:]))
	fmt.Printf("telescope   %q\n", ser.Text(h.Telescope[:]))
	if t, ok := ser.Time(h.DateTimeUTC); ok {
		fmt.Printf("recorded    %s\n", t.UTC().Format("2006-01-02 15:04:05.000 MST"))
	}

	n := video.NumImages()
	if numFrames >= 0 && numFrames < n {
		n = numFrames
	}
	status := 0
	for i := 0; i < n; i++ {
		f, err := video.Image(i)
		if err != nil {
			log.Printf("%v", err)
			status = 1
			continue
		}
		hist, err := histogram.Calculate(f, nil)
		if err != nil {
			log.Printf("frame %d: %v", i, err)
			status = 1
			continue
		}
		if hist.IsRGB {
			fmt.Printf("frame %d: mean R %.1f G %.1f B %.1f, max R %d G %d B %d\n", i,
				hist.Mean(histogram.Red), hist.Mean(histogram.Green), hist.Mean(histogram.Blue),
				hist.Max(histogram.Red), hist.Max(histogram.Green), hist.Max(histogram.Blue))
		} else {
			fmt.Printf("frame %d: mean %.1f, max %d\n", i, hist.Mean(histogram.Red), hist.Max(histogram.Red))
		}
	}
	return status
}

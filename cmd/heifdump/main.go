// Command heifdump prints a HEIF container's box tree and item/property
// graph: a metadata inspection tool, not a decoder (see the original
// program's main.cc, which drove SDL/libjpeg/libde265 display — all of
// that is out of scope here).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-heif/heifcore"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <file.heic>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}

func run(path string) error {
	s, err := heifcore.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	fmt.Print(s.DebugDumpBoxes())

	fmt.Printf("\n%d top-level image(s):\n", s.ImageCount())
	for _, id := range s.TopLevelItemIDs() {
		item, err := s.ItemByID(id)
		if err != nil {
			return err
		}
		fmt.Printf("  item %d: type=%s %dx%d thumbnails=%v\n", item.ID, item.Type, item.Width, item.Height, item.Thumbnails)

		if alpha, ok := s.AlphaOf(id); ok {
			fmt.Printf("    alpha: item %d\n", alpha)
		}
		if depth, ok := s.DepthOf(id); ok {
			fmt.Printf("    depth: item %d\n", depth)
			if info, ok := s.DepthInfo(depth); ok {
				fmt.Printf("      representation_type=%d z_near=%v z_far=%v\n", info.RepresentationType, info.ZNear, info.ZFar)
			}
		}

		switch item.Type {
		case heifcore.Kind("grid"):
			grid, err := s.GridInfo(id)
			if err != nil {
				return err
			}
			fmt.Printf("    grid: %dx%d tiles, output %dx%d, tiles=%v\n",
				grid.Rows, grid.Columns, grid.OutputWidth, grid.OutputHeight, grid.TileIDs)
		case heifcore.Kind("iovl"):
			overlay, err := s.OverlayInfo(id)
			if err != nil {
				return err
			}
			fmt.Printf("    overlay: canvas %dx%d, images=%v\n", overlay.CanvasWidth, overlay.CanvasHeight, overlay.ImageIDs)
		}
	}

	primary, err := s.PrimaryImageIndex()
	if err != nil {
		return err
	}
	fmt.Printf("\nprimary image index: %d\n", primary)
	return nil
}

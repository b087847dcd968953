// Command-line tool for converting RINEX observation files to and from the
// Succinct Observation Container format.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/de-bkg/gosoc/pkg/rinex"
	"github.com/de-bkg/gosoc/pkg/soc"
	"github.com/de-bkg/gosoc/pkg/stream"
	"github.com/mholt/archiver/v3"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		HelpName: "socgo",
		Usage:    "RINEX observation data in a succinct binary container",
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Convert a RINEX observation file to a container",
				ArgsUsage: "rinexfile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file"},
					&cli.StringFlag{Name: "chunk-digest", Value: "crc32c", Usage: "per-chunk digest: none, crc32c, sha256"},
					&cli.StringFlag{Name: "file-digest", Value: "none", Usage: "whole-file digest: none, crc32c, sha256"},
					&cli.BoolFlag{Name: "dir", Usage: "write an SDIR chunk directory"},
				},
				Action: encodeAction,
			},
			{
				Name:      "decode",
				Usage:     "Convert a container back to RINEX text",
				ArgsUsage: "socfile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file"},
				},
				Action: decodeAction,
			},
			{
				Name:      "scan",
				Usage:     "Validate a container and print a summary",
				ArgsUsage: "socfile...",
				Action:    scanAction,
			},
			{
				Name:      "nobs",
				Usage:     "Count observations per satellite and type",
				ArgsUsage: "rinexfile...",
				Action:    nobsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openRinex opens a possibly compressed RINEX file as a stream source.
func openRinex(path string) (stream.Source, error) {
	if path == "-" {
		return stream.Stdin(), nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".gz" || ext == ".bz2" || ext == ".xz" {
		tmp, err := os.CreateTemp("", "socgo-*"+filepath.Ext(strings.TrimSuffix(path, ext)))
		if err != nil {
			return nil, err
		}
		tmp.Close()
		if err := archiver.DecompressFile(path, tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("decompress %s: %v", path, err)
		}
		defer os.Remove(tmp.Name())
		return stream.OpenFile(tmp.Name())
	}
	return stream.OpenFile(path)
}

func encodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowCommandHelpAndExit(c, "encode", 1)
	}
	path := c.Args().Get(0)

	src, err := openRinex(path)
	if err != nil {
		return fmt.Errorf("encode failed: %v", err)
	}
	r, err := rinex.NewObsReader(src)
	if err != nil {
		return fmt.Errorf("encode failed: %v", err)
	}
	defer r.Close()

	w, err := soc.NewWriter(&r.Header, soc.WriterOptions{
		ChunkDigest: c.String("chunk-digest"),
		FileDigest:  c.String("file-digest"),
		Directory:   c.Bool("dir"),
	})
	if err != nil {
		return err
	}
	for r.Next() {
		if err := w.AddRecord(r.Record()); err != nil {
			return fmt.Errorf("encode failed: %v", err)
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("encode failed in line %d: %v", r.InputLine(), err)
	}

	img, err := w.Bytes()
	if err != nil {
		return fmt.Errorf("encode failed: %v", err)
	}
	out := c.String("out")
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".soc"
	}
	return os.WriteFile(out, img, 0o644)
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowCommandHelpAndExit(c, "decode", 1)
	}
	path := c.Args().Get(0)

	r, err := soc.Open(path)
	if err != nil {
		return fmt.Errorf("decode failed: %v", err)
	}
	defer r.Close()

	out := c.String("out")
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".rnx"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := rinex.NewObsWriter(f, r.Header())
	if err != nil {
		return fmt.Errorf("decode failed: %v", err)
	}
	err = r.EachRecord(func(rec *rinex.Record) error {
		return w.WriteRecord(rec)
	})
	if err != nil {
		return fmt.Errorf("decode failed: %v", err)
	}
	return nil
}

func scanAction(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelpAndExit(c, "scan", 1)
	}
	for _, path := range c.Args().Slice() {
		r, err := soc.Open(path)
		if err != nil {
			fmt.Printf("%s: scan failed: %v\n", path, err)
			continue
		}

		major, minor := r.Version()
		fmt.Printf("%s: container v%d.%d, RINEX %.2f\n", path, major, minor, r.Header().Version)

		if epochs, err := r.Epochs(); err == nil {
			fmt.Printf("  %d epochs", len(epochs))
			if len(epochs) > 0 {
				first, last := epochs[0], epochs[len(epochs)-1]
				fmt.Printf(", %08d %04d:%010.7f .. %08d %04d:%010.7f",
					first.Date, first.HourMin, float64(first.SecE7)/1e7,
					last.Date, last.HourMin, float64(last.SecE7)/1e7)
			}
			fmt.Println()
		}
		sats, err := r.Satellites()
		if err != nil {
			fmt.Printf("  satellites: scan failed: %v\n", err)
			r.Close()
			continue
		}
		fmt.Printf("  %d satellites\n", len(sats))
		nEvents := 0
		for {
			if _, err := r.NextEvent(); err != nil {
				break
			}
			nEvents++
		}
		if nEvents > 0 {
			fmt.Printf("  %d events\n", nEvents)
		}
		r.Close()
	}
	return nil
}

func nobsAction(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelpAndExit(c, "nobs", 1)
	}
	for _, path := range c.Args().Slice() {
		src, err := openRinex(path)
		if err != nil {
			fmt.Printf("%s: nobs failed: %v\n", path, err)
			continue
		}
		r, err := rinex.NewObsReader(src)
		if err != nil {
			src.Close()
			fmt.Printf("%s: nobs failed: %v\n", path, err)
			continue
		}

		counts := map[string]map[string]int{}
		for r.Next() {
			rec := r.Record()
			if rec.Epoch.IsEvent() {
				continue
			}
			cur := 0
			for cur < len(rec.Presence) {
				letter, num := rec.Presence[cur], rec.Presence[cur+1]
				codes := r.Header.ObsTypes(letter)
				bitmap := rec.Presence[cur+2 : cur+2+(len(codes)+7)/8]
				name := fmt.Sprintf("%c%02d", letter, num)
				if counts[name] == nil {
					counts[name] = map[string]int{}
				}
				for i := range codes {
					if bitmap[i/8]&(1<<(i%8)) != 0 {
						counts[name][codes[i].String()]++
					}
				}
				cur += 2 + (len(codes)+7)/8
			}
		}
		if err := r.Err(); err != nil {
			fmt.Printf("%s: nobs failed in line %d: %v\n", path, r.InputLine(), err)
		} else {
			fmt.Printf("%s:\n", path)
			for _, name := range sortedKeys(counts) {
				fmt.Printf("  %s:", name)
				for _, code := range sortedKeys(counts[name]) {
					fmt.Printf(" %s=%d", code, counts[name][code])
				}
				fmt.Println()
			}
		}
		r.Close()
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package main

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"tractor.dev/toolkit-go/engine/cli"

	"github.com/progrium/tapedeck/tape"
)

func genCmd() *cli.Command {
	cmd := &cli.Command{
		Usage:  "gen <out.tape|out.db> [seconds] [hz]",
		Short:  "write a synthetic telemeter recording",
		Args:   cli.MinArgs(1),
		Hidden: true,
		Run: func(ctx *cli.Context, args []string) {
			seconds, hz := 60, 10
			var err error
			if len(args) > 1 {
				if seconds, err = strconv.Atoi(args[1]); err != nil {
					log.Fatal("seconds: ", err)
				}
			}
			if len(args) > 2 {
				if hz, err = strconv.Atoi(args[2]); err != nil {
					log.Fatal("hz: ", err)
				}
			}
			if seconds <= 0 || hz <= 0 {
				log.Fatal("seconds and hz must be positive")
			}

			records := synthesize(time.Now().UnixMicro(), seconds, hz)
			out := args[0]
			if filepath.Ext(out) == tape.Ext {
				err = tape.WriteFile(out, records)
			} else {
				err = writeSQLite(out, "telemeter", records)
			}
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("wrote %d records to %s\n", len(records), out)
		},
	}
	return cmd
}

// synthesize produces scans of a 181-beam telemeter sweeping past a wall
// that slowly moves away.
func synthesize(start int64, seconds, hz int) []*tape.Record {
	period := int64(time.Second/time.Microsecond) / int64(hz)
	n := seconds * hz
	records := make([]*tape.Record, 0, n)
	for i := 0; i < n; i++ {
		samples := make([]float32, tape.MaxSamples)
		dist := 5 + float64(i)/float64(n)*10
		for b := range samples {
			angle := float64(b-90) * math.Pi / 180
			samples[b] = float32(dist / math.Max(math.Cos(angle), 0.05))
		}
		records = append(records, &tape.Record{
			Timestamp: start + int64(i)*period,
			TimeRange: int32(period),
			Samples:   samples,
		})
	}
	return records
}

func writeSQLite(path, stream string, records []*tape.Record) error {
	db, err := tape.OpenSQLite(path, stream)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.CreateSchema(); err != nil {
		return err
	}
	for _, rec := range records {
		if err := db.Insert(rec); err != nil {
			return err
		}
	}
	return nil
}

/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"
	"github.com/launix-de/tlog/tlog"
	"github.com/launix-de/tlog/tlog/remote"
	"github.com/launix-de/tlog/tlog/stream"
)

const newprompt = "\033[32mtlogctl>\033[0m "

func main() {
	fmt.Print(`tlogctl Copyright (C) 2026
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	dir := flag.String("dir", "", "tlog directory")
	prefix := flag.String("prefix", "translog", "file name prefix")
	fresh := flag.Bool("fresh", false, "open fresh, discarding any existing contents of -dir")
	expectGen := flag.Uint64("expect-generation", 0, "expected last committed generation when recovering")

	listen := flag.String("listen", "", "if set, serve a live view snapshot stream over websocket at this address (e.g. :8088)")

	archiveBucket := flag.String("archive-bucket", "", "S3-compatible bucket to archive sealed generations to; enables the 'archive' REPL command")
	archiveEndpoint := flag.String("archive-endpoint", "", "custom S3 endpoint (MinIO/S3-compatible), empty for AWS default")
	archiveRegion := flag.String("archive-region", "", "S3 region")
	archiveAccessKey := flag.String("archive-access-key", "", "S3 access key id")
	archiveSecretKey := flag.String("archive-secret-key", "", "S3 secret access key")
	archivePrefix := flag.String("archive-prefix", "", "key prefix under -archive-bucket")
	archivePathStyle := flag.Bool("archive-path-style", false, "use path-style S3 addressing, required by most MinIO setups")
	archiveCodec := flag.String("archive-codec", "lz4", "compression codec for archived generations: lz4 or xz")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "tlogctl: -dir is required")
		os.Exit(1)
	}

	cfg := tlog.Config{Dir: *dir, Prefix: *prefix}

	var log *tlog.Log
	var err error
	if *fresh {
		log, err = tlog.OpenFresh(cfg, tlog.UnassignedGlobalCheckpoint)
	} else {
		log, err = tlog.OpenRecover(cfg, tlog.NilTlogUUID, tlog.Generation(*expectGen))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tlogctl: open: %v\n", err)
		os.Exit(1)
	}

	onexit.Register(func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "tlogctl: close on exit: %v\n", err)
		}
	})

	var archiver *remote.Archiver
	if *archiveBucket != "" {
		codec := remote.CodecLZ4
		if *archiveCodec == "xz" {
			codec = remote.CodecXZ
		}
		archiver = remote.NewArchiver(remote.BucketConfig{
			AccessKeyID:     *archiveAccessKey,
			SecretAccessKey: *archiveSecretKey,
			Region:          *archiveRegion,
			Endpoint:        *archiveEndpoint,
			Bucket:          *archiveBucket,
			Prefix:          *archivePrefix,
			ForcePathStyle:  *archivePathStyle,
		}, codec)
	}

	if *listen != "" {
		http.HandleFunc("/stream", stream.Handler(log))
		go func() {
			if err := http.ListenAndServe(*listen, nil); err != nil {
				fmt.Fprintf(os.Stderr, "tlogctl: stream server: %v\n", err)
			}
		}()
		fmt.Printf("streaming view snapshots at ws://%s/stream\n", *listen)
	}

	inspect(log, *dir, *prefix, archiver)
}

// inspect runs a small REPL offering the handful of commands an operator
// needs to look inside a live or recovered tlog directory; all are read-only
// except "sync", which fsyncs the writer and rewrites the live checkpoint,
// and "archive". archiver
// is nil unless -archive-bucket was set, in which case "archive <gen>"
// uploads that sealed generation off-host.
func inspect(log *tlog.Log, dir, prefix string, archiver *remote.Archiver) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".tlogctl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch fields := strings.Fields(line); fields[0] {
		case "stats":
			printStats(log)
		case "views":
			fmt.Printf("open views: %d\n", log.Stats().ViewCount)
		case "snapshot":
			printSnapshot(log)
		case "sync":
			ok, err := log.Sync()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("did io:", ok)
		case "archive":
			if archiver == nil {
				fmt.Println("archive: no -archive-bucket configured at startup")
				continue
			}
			if len(fields) != 2 {
				fmt.Println("usage: archive <generation>")
				continue
			}
			gen, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				fmt.Println("archive: invalid generation:", err)
				continue
			}
			if err := archiver.ArchiveGeneration(context.Background(), dir, prefix, gen); err != nil {
				fmt.Println("archive: error:", err)
				continue
			}
			fmt.Printf("archived generation %d\n", gen)
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: stats, views, snapshot, sync, archive <gen>, quit")
		}
	}
}

func printStats(log *tlog.Log) {
	s := log.Stats()
	fmt.Printf("generation=%d last_committed=%d readers=%d views=%d ops=%d size=%s\n",
		s.CurrentGeneration, s.LastCommittedGeneration, s.ReaderCount, s.ViewCount,
		s.TotalOperations, s.HumanSize())
}

func printSnapshot(log *tlog.Log) {
	snap, err := log.NewSnapshot()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("total operations:", snap.TotalOperations())
	n := 0
	for {
		op, loc, ok, err := snap.Next()
		if err != nil {
			fmt.Println("error during iteration:", err)
			return
		}
		if !ok {
			break
		}
		fmt.Printf("  [%d] %s seq=%d term=%d\n", n, loc, op.SeqNo(), op.PrimaryTerm())
		n++
	}
}

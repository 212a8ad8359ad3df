// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package rangedl is a client-side HTTP(S) request engine whose hard
// engineering problem is a multi-threaded, range-parallel file
// downloader: it HEADs a resource to learn its size, splits it into N
// byte ranges, fetches them concurrently, writes each into one
// pre-sized destination file at a fixed offset, aggregates per-range
// progress into one monotonic total, and reacts to redirects,
// per-range failures and caller-driven aborts with correct resource
// release.
//
// Kind values beyond KindDownload and KindMTDownload are accepted by
// Dispatch but immediately fail with ErrUnsupportedKind: this engine
// only implements the download path, leaving upload/get/post/put and
// friends to an external collaborator built on the same RequestTask
// shape.
//
// A caller that only needs the finished task, not a running handle,
// uses Download directly:
//
//	task := rangedl.RequestTask{
//		ID:               rangedl.NextTaskID(),
//		Kind:             rangedl.KindMTDownload,
//		URL:              "https://example.com/archive.tar.gz",
//		SaveDir:          "/tmp/out",
//		ThreadCount:      4,
//		MultiThreadOptIn: true,
//		ShowProgress:     true,
//	}
//	result, err := rangedl.Download(context.Background(), task, rangedl.DefaultOptions(), func(ev rangedl.ProgressEvent) {
//		if ev.Event == "progress" {
//			fmt.Printf("\r%d/%d", ev.Received, ev.Total)
//		}
//	})
package rangedl

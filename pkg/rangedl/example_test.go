// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"rangedl/pkg/rangedl"
)

func ExampleDownload() {
	data := bytes.Repeat([]byte("a"), 256)
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
			return
		}
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir, err := os.MkdirTemp("", "rangedl-example")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	task := rangedl.RequestTask{
		ID:           rangedl.NextTaskID(),
		Kind:         rangedl.KindDownload,
		URL:          srv.URL + "/file",
		SaveDir:      dir,
		SaveFileName: "out.bin",
	}

	result, err := rangedl.Download(context.Background(), task, rangedl.DefaultOptions(), nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("error text:", result.ErrorText == "")

	got, _ := os.ReadFile(filepath.Join(dir, "out.bin"))
	fmt.Println("bytes match:", bytes.Equal(got, data))
	// Output:
	// error text: true
	// bytes match: true
}

// mockserver is a stand-in origin for exercising the proxy by hand. It
// serves files from ./files with the Last-Modified and Content-Length
// headers the proxy keys on, and accepts PUTs back into the same tree.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

var (
	flagPort int
	flagDir  string
)

func init() {
	flag.IntVar(&flagPort, "p", 8000, "usage port")
	flag.StringVar(&flagDir, "d", "./files", "file root")

	log.SetPrefix(fmt.Sprintf("mockserver(%d): ", os.Getpid()))
}

func main() {
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("received request: %s %s", r.Method, r.URL.String())

		name := filepath.Join(flagDir, filepath.Clean("/"+r.URL.Path))

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			// ServeFile emits Last-Modified and Content-Length
			http.ServeFile(w, r, name)
		case http.MethodPut:
			f, err := os.Create(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer f.Close()
			if _, err := io.Copy(f, r.Body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		default:
			http.Error(w, "method not supported", http.StatusBadRequest)
		}
	})

	addr := fmt.Sprintf(":%d", flagPort)

	log.Printf("HTTP origin listener on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
